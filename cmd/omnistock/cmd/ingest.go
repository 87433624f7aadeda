package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnistock/internal"
	"omnistock/internal/pipeline"
)

var (
	ingestPlatform    string
	ingestAccountID   string
	ingestAccountName string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Ingest a marketplace order export",
	Long: `Reads an xlsx, xls or csv order export, stores the orders that are new for the
user and subtracts the sold quantities from variant stock. The platform is
detected from the file name unless --platform is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPlatform, "platform", "", "shopee, lazada, tiktok or an alias")
	ingestCmd.Flags().StringVar(&ingestAccountID, "account-id", "", "marketplace store account id")
	ingestCmd.Flags().StringVar(&ingestAccountName, "account-name", "", "marketplace store account name")
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	res, err := a.Ingest.Ingest(ctx, pipeline.IngestRequest{
		UserID:   userID,
		FileName: filepath.Base(args[0]),
		Content:  content,
		Platform: ingestPlatform,
		Account:  internal.StoreAccount{ID: ingestAccountID, Name: ingestAccountName},
	})

	var stockErr *pipeline.StockReconciliationError
	if err != nil && !errors.As(err, &stockErr) {
		return err
	}

	color.Green("✓ Ingested %s as %s", filepath.Base(args[0]), res.Platform)
	fmt.Printf("  Trace:      %s\n", res.TraceID)
	if res.UploadID != "" {
		fmt.Printf("  Upload:     %s\n", res.UploadID)
	}
	fmt.Printf("  New orders: %d\n", res.NewOrders)
	fmt.Printf("  Skipped:    %d\n", res.Skipped)
	fmt.Printf("  Invalid:    %d\n", res.Invalid)

	if stockErr != nil {
		color.Yellow("\n! Stock was not updated for %d variants:", len(stockErr.Failed))
		for _, sku := range stockErr.SKUs() {
			fmt.Printf("  • %s: %v\n", sku, stockErr.Failed[sku])
		}
		return fmt.Errorf("stock reconciliation incomplete")
	}
	return nil
}
