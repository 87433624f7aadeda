package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"omnistock/internal/config"
	"omnistock/internal/storage"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	Long:  "Runs the embedded migrations against DATABASE_URL. The SQLite schema is created on open and needs no migration.",
	RunE:  runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database connection and table statistics",
	RunE:  runDBStatus,
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
}

func openPostgres(ctx context.Context) (*storage.Postgres, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
		return nil, err
	}
	fmt.Println("Connecting to PostgreSQL...")
	return storage.OpenPostgres(ctx, cfg.DatabaseURL)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := openPostgres(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()
	color.Green("✓ Connected to database")

	if err := client.RunMigrations(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, err := client.MigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	fmt.Printf("Migration version: %d", version)
	if dirty {
		color.Yellow(" (dirty)")
	}
	fmt.Println()
	color.Green("✓ Schema up to date")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBDriver != storage.DriverPostgres && cfg.DBDriver != "pgx" {
		db, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			color.Red("✗ Cannot open %s: %v", cfg.DBPath, err)
			return nil
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			color.Red("✗ Ping failed: %v", err)
			return nil
		}
		color.Green("✓ SQLite database at %s", cfg.DBPath)
		return nil
	}

	client, err := openPostgres(ctx)
	if err != nil {
		color.Red("✗ Connection failed: %v", err)
		return nil
	}
	defer client.Close()
	color.Green("✓ Connected")

	version, dirty, err := client.MigrationVersion()
	if err != nil {
		fmt.Printf("  Migration:   %s\n", color.YellowString("not initialized"))
	} else {
		status := fmt.Sprintf("v%d", version)
		if dirty {
			status += color.YellowString(" (dirty)")
		}
		fmt.Printf("  Migration:   %s\n", status)
	}

	stats, err := client.TableStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get table stats: %w", err)
	}
	if len(stats) > 0 {
		fmt.Println("\n" + color.CyanString("Table Statistics"))
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Table", "Rows", "Size"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, s := range stats {
			table.Append([]string{s.TableName, fmt.Sprintf("%d", s.RowCount), s.Size})
		}
		table.Render()
	}
	return nil
}
