package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"omnistock/internal"
	"omnistock/internal/stock"
)

var (
	adjustType   string
	adjustQty    int
	adjustReason string
	adjustNotes  string
	historyLimit int
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Manual stock movements",
}

var stockAdjustCmd = &cobra.Command{
	Use:   "adjust SKU",
	Short: "Add or remove stock for a variant",
	Args:  cobra.ExactArgs(1),
	RunE:  runStockAdjust,
}

var stockHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the stock movement ledger, newest first",
	RunE:  runStockHistory,
}

func init() {
	stockCmd.AddCommand(stockAdjustCmd)
	stockCmd.AddCommand(stockHistoryCmd)

	stockAdjustCmd.Flags().StringVar(&adjustType, "type", "", "in or out")
	stockAdjustCmd.Flags().IntVar(&adjustQty, "qty", 0, "quantity to move, greater than zero")
	stockAdjustCmd.Flags().StringVar(&adjustReason, "reason", "", "why stock moved")
	stockAdjustCmd.Flags().StringVar(&adjustNotes, "notes", "", "free-form notes")
	_ = stockAdjustCmd.MarkFlagRequired("type")
	_ = stockAdjustCmd.MarkFlagRequired("qty")

	stockHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "number of movements to show")
}

func runStockAdjust(cmd *cobra.Command, args []string) error {
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

	mv, err := a.Stock.Adjust(ctx, stock.Adjustment{
		UserID:   userID,
		SKU:      args[0],
		Type:     internal.MovementType(adjustType),
		Quantity: adjustQty,
		Reason:   adjustReason,
		Notes:    adjustNotes,
	})
	if err != nil {
		return err
	}
	color.Green("✓ %s %s %d: %d → %d", mv.SKUVariant, mv.Type, mv.Quantity, mv.PreviousStock, mv.NewStock)
	return nil
}

func runStockHistory(cmd *cobra.Command, args []string) error {
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

	movements, err := a.Stock.History(ctx, userID, historyLimit)
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		color.Yellow("No stock movements for %s", userID)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"When", "SKU", "Type", "Qty", "Before", "After", "Reason", "Notes"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range movements {
		table.Append([]string{
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			m.SKUVariant,
			string(m.Type),
			strconv.Itoa(m.Quantity),
			strconv.Itoa(m.PreviousStock),
			strconv.Itoa(m.NewStock),
			m.Reason,
			m.Notes,
		})
	}
	table.Render()
	fmt.Println()
	return nil
}
