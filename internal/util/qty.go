package util

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotNumeric = errors.New("not a numeric value")

	reNonNumeric   = regexp.MustCompile(`[^0-9.,\-]`)
	reDotThousands = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	reComThousands = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
)

// ParseLocaleCurrency reads marketplace money text such as "Rp 1.250.000", "1,250.50" or "12,5".
func ParseLocaleCurrency(input string) (decimal.Decimal, error) {
	line := strings.Trim(reNonNumeric.ReplaceAllString(input, ""), ".,")
	if !strings.ContainsAny(line, "0123456789") {
		return decimal.Zero, ErrNotNumeric
	}
	d, err := decimal.NewFromString(normalizeNumericToken(line))
	if err != nil {
		return decimal.Zero, ErrNotNumeric
	}
	return d, nil
}

// ParseNumber accepts numeric cells as-is and runs text through ParseLocaleCurrency.
func ParseNumber(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, ErrNotNumeric
		}
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		return ParseLocaleCurrency(t)
	default:
		return decimal.Zero, ErrNotNumeric
	}
}

// ParseQuantity truncates fractional quantities toward zero.
func ParseQuantity(v any) (int, error) {
	d, err := ParseNumber(v)
	if err != nil {
		return 0, err
	}
	return int(d.IntPart()), nil
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	lastDot := strings.LastIndex(compact, ".")
	lastComma := strings.LastIndex(compact, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			compact = strings.ReplaceAll(compact, ".", "")
			return strings.Replace(compact, ",", ".", 1)
		}
		return strings.ReplaceAll(compact, ",", "")
	case reDotThousands.MatchString(compact):
		return strings.ReplaceAll(compact, ".", "")
	case reComThousands.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	case lastComma >= 0:
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
