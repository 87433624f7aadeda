package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnistock/internal/app"
	"omnistock/internal/config"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "omnistock",
	Short: "Marketplace order ingestion and stock keeping",
	Long: color.New(color.FgGreen, color.Bold).Sprint(`
                       _     _             _
  ___  _ __ ___  _ __ (_)___| |_ ___   ___| | __
 / _ \| '_ ' _ \| '_ \| / __| __/ _ \ / __| |/ /
| (_) | | | | | | | | | \__ \ || (_) | (__|   <
 \___/|_| |_| |_|_| |_|_|___/\__\___/ \___|_|\_\
`) + `
Ingest Shopee, Lazada and TikTok order exports, keep the product
catalog in sync and reconcile variant stock.`,
	SilenceUsage: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		color.Red("✗ %v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("OMNISTOCK_USER_ID"), "user that owns the catalog and orders")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(stockCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(dbCmd)
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(ctx, cfg)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required (or set OMNISTOCK_USER_ID)")
	}
	return nil
}
