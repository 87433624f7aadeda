package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"omnistock/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Product catalog commands",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import catalog variants from a spreadsheet",
	Long: `Upserts variants by generated SKU. Expected headers: sku, name, color, size,
cost_price, category and an optional stock column. Stock only applies to new variants.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog variants and their stock",
	RunE:  runCatalogList,
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
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

	var bar *progressbar.ProgressBar
	res, err := a.Catalog.Import(ctx, catalog.ImportRequest{
		UserID:   userID,
		FileName: filepath.Base(args[0]),
		Content:  content,
		OnProgress: func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Importing"),
					progressbar.OptionShowCount(),
				)
			}
			_ = bar.Set(done)
		},
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	color.Green("✓ Catalog import complete")
	fmt.Printf("  Rows:    %d\n", res.TotalRows)
	fmt.Printf("  Created: %d\n", res.Created)
	fmt.Printf("  Updated: %d\n", res.Updated)
	if res.Failed > 0 {
		color.Yellow("  Failed:  %d", res.Failed)
		for _, e := range res.Errors {
			fmt.Printf("    row %d %s: %s\n", e.Row, e.SKU, e.Message)
		}
	}
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	variants, err := a.Catalog.List(ctx, userID)
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		color.Yellow("No variants for %s", userID)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Variant SKU", "Name", "Color", "Size", "Cost", "Stock"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, v := range variants {
		stock := strconv.Itoa(v.Stock)
		if v.Stock < 0 {
			stock = color.RedString(stock)
		}
		table.Append([]string{v.SKUVariant, v.Name, v.Color, v.Size, v.CostPrice.StringFixed(2), stock})
	}
	table.Render()
	fmt.Printf("\n%d variants\n", len(variants))
	return nil
}
