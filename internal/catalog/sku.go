package catalog

import (
	"regexp"
	"strings"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// GenerateVariantSKU builds SKU-COLOR-SIZE, uppercased, with whitespace runs turned into dashes.
func GenerateVariantSKU(sku, color, size string) string {
	joined := strings.Join([]string{strings.TrimSpace(sku), strings.TrimSpace(color), strings.TrimSpace(size)}, "-")
	return reWhitespace.ReplaceAllString(strings.ToUpper(joined), "-")
}
