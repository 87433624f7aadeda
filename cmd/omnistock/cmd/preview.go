package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"omnistock/internal/pipeline"
)

var (
	previewPlatform string
	previewOut      string
)

var previewCmd = &cobra.Command{
	Use:   "preview FILE",
	Short: "Show how an order export would be ingested",
	Long:  "Matches every row against the catalog and flags duplicates without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewPlatform, "platform", "", "shopee, lazada, tiktok or an alias")
	previewCmd.Flags().StringVar(&previewOut, "out", "", "also write the preview to this xlsx file")
}

func runPreview(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Ingest.Preview(ctx, pipeline.IngestRequest{
		UserID:   userID,
		FileName: filepath.Base(args[0]),
		Content:  content,
		Platform: previewPlatform,
	})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Row", "Order", "SKU", "Variation", "Qty", "Matched", "Tier", "Product", "Order Status"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range p.Rows {
		table.Append([]string{
			strconv.Itoa(r.Row),
			r.OrderSN,
			r.SKU,
			r.Variation,
			strconv.Itoa(r.Quantity),
			r.MatchedSKU,
			string(r.Tier),
			productLabel(r.Product),
			string(r.Duplicate),
		})
	}
	table.Render()

	fmt.Printf("\nPlatform: %s  new orders: %d  skipped: %d  invalid: %d\n", p.Platform, p.NewOrders, p.Skipped, p.Invalid)
	if len(p.MissingSKUs) > 0 {
		color.Yellow("Missing from catalog: %v", p.MissingSKUs)
	}

	if previewOut != "" {
		if err := pipeline.ExportPreviewToXLSX(p, previewOut); err != nil {
			return err
		}
		color.Green("✓ Wrote %s", previewOut)
	}
	return nil
}

func productLabel(s pipeline.ProductStatus) string {
	switch s {
	case pipeline.ProductOK:
		return color.GreenString(string(s))
	case pipeline.ProductAmbiguous:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}
