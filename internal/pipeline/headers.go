package pipeline

import (
	"omnistock/internal"
	"omnistock/internal/util"
)

// NormalizeHeaders trims and lowercases textual header cells; other cells are kept as-is.
func NormalizeHeaders(cells []any) []any {
	out := make([]any, len(cells))
	for i, cell := range cells {
		out[i] = util.NormalizeHeaderCell(cell)
	}
	return out
}

// BuildRawRows keys every data row by the normalized header of the first row.
// Missing trailing cells read as "".
func BuildRawRows(rows [][]any) []internal.RawRow {
	if len(rows) == 0 {
		return nil
	}
	headers := NormalizeHeaders(rows[0])
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = util.CellString(h)
	}

	out := make([]internal.RawRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		values := make(map[string]any, len(keys))
		for c, key := range keys {
			if key == "" {
				continue
			}
			if _, taken := values[key]; taken {
				continue
			}
			var v any = ""
			if c < len(row) && row[c] != nil {
				v = row[c]
			}
			values[key] = v
		}
		out = append(out, internal.RawRow{Number: i + 2, Values: values})
	}
	return out
}
