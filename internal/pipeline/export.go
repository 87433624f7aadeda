package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "summary"

// ExportPreviewToXLSX writes preview rows to the first sheet and totals plus missing SKUs to a second one.
func ExportPreviewToXLSX(p Preview, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"row", "order_sn", "sku", "variation", "quantity",
		"matched_sku", "tier", "product_status", "duplicate_status", "problem",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range p.Rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, row.Row)
		set(2, row.OrderSN)
		set(3, row.SKU)
		set(4, row.Variation)
		set(5, row.Quantity)
		set(6, row.MatchedSKU)
		set(7, string(row.Tier))
		set(8, string(row.Product))
		set(9, string(row.Duplicate))
		set(10, string(row.Problem))
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	summary := [][]any{
		{"platform", string(p.Platform)},
		{"new_orders", p.NewOrders},
		{"skipped", p.Skipped},
		{"invalid", p.Invalid},
		{"missing_skus", len(p.MissingSKUs)},
	}
	for _, sku := range p.MissingSKUs {
		summary = append(summary, []any{"missing", sku})
	}
	for i, pair := range summary {
		for j, v := range pair {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			_ = f.SetCellValue(summarySheet, cell, v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
