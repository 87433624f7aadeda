package pipeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const excelEpochDays = 25569

var (
	reSerialDate   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	reDayFirstDate = regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)
	reDateSplit    = regexp.MustCompile(`[- :]`)
)

// ParseDate reads spreadsheet serials, DD-MM-YYYY[ HH:MM] text, or anything dateparse knows.
// Unreadable input yields nil.
func ParseDate(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case float64:
		return fromSerial(t)
	case int:
		return fromSerial(float64(t))
	case int64:
		return fromSerial(float64(t))
	case string:
		return parseDateText(strings.TrimSpace(t))
	default:
		return nil
	}
}

func parseDateText(s string) *time.Time {
	if s == "" {
		return nil
	}
	if reSerialDate.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return fromSerial(f)
	}
	if reDayFirstDate.MatchString(s) {
		return parseDayFirst(s)
	}
	parsed, err := dateparse.ParseLocal(s)
	if err != nil {
		return nil
	}
	return &parsed
}

func fromSerial(v float64) *time.Time {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	ms := math.Round((v - excelEpochDays) * 86400 * 1000)
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

func parseDayFirst(s string) *time.Time {
	parts := reDateSplit.Split(s, -1)
	if len(parts) < 3 {
		return nil
	}
	// day, month, year, hour, minute
	var nums [5]int
	for i := 0; i < len(nums) && i < len(parts); i++ {
		if i >= 3 && parts[i] == "" {
			continue
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return nil
		}
		nums[i] = n
	}
	t := time.Date(nums[2], time.Month(nums[1]), nums[0], nums[3], nums[4], 0, 0, time.Local)
	return &t
}
