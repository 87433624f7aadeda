package util

import (
	"regexp"
	"strconv"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeHeaderCell trims and lowercases textual header cells. Other cells pass through.
func NormalizeHeaderCell(cell any) any {
	s, ok := cell.(string)
	if !ok {
		return cell
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeSKU(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// CellString renders a decoded cell the way it would read in the sheet.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case interface{ String() string }:
		return t.String()
	default:
		return ""
	}
}
