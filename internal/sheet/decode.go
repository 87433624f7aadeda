package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"omnistock/internal/util"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns a spreadsheet export into rows of cells, header row first.
func Decode(fileName string, content []byte) ([][]any, error) {
	switch DetectFormat(fileName, content) {
	case FormatXLSX:
		return decodeXLSX(content)
	case FormatHTML:
		return decodeHTMLTable(content)
	case FormatCSV:
		return decodeCSV(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
}

// DetectFormat trusts content over extension: marketplaces ship HTML tables named .xls.
func DetectFormat(fileName string, content []byte) Format {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, utf8BOM))
	if bytes.HasPrefix(trimmed, []byte("PK")) {
		return FormatXLSX
	}
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return FormatHTML
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX
	case ".html", ".htm":
		return FormatHTML
	case ".csv", ".txt", "":
		return FormatCSV
	default:
		return ""
	}
}

func decodeXLSX(content []byte) ([][]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	// Raw values keep date cells as serial numbers for the date parser.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	out := make([][]any, 0, len(rows))
	for r, row := range rows {
		cells := toCells(row)
		for c, v := range row {
			n, ok, err := numericCell(f, sheets[0], c+1, r+1, v)
			if err != nil {
				return nil, err
			}
			if ok {
				cells[c] = n
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// numericCell reports the float value of an untyped or numeric xlsx cell.
// Integers too large for a float64 stay text so long order ids survive.
func numericCell(f *excelize.File, sheet string, col, row int, raw string) (float64, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return 0, false, err
	}
	typ, err := f.GetCellType(sheet, ref)
	if err != nil {
		return 0, false, err
	}
	if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber {
		return 0, false, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) >= maxExactInt {
		return 0, false, nil
	}
	return n, true, nil
}

func decodeCSV(content []byte) ([][]any, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = sniffDelimiter(content)

	var out [][]any
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, toCells(record))
	}
	return out, nil
}

func decodeHTMLTable(content []byte) ([][]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil
	}

	var out [][]any
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, util.CollapseSpaces(cell.Text()))
		})
		if len(cells) == 0 {
			return
		}
		out = append(out, toCells(cells))
	})
	return out, nil
}

func sniffDelimiter(content []byte) rune {
	firstLine := content
	if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	best, bestCount := ',', bytes.Count(firstLine, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(firstLine, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func toCells(row []string) []any {
	cells := make([]any, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
