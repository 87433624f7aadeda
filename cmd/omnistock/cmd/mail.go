package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Order exports received by email",
	Long:  "Fetch marketplace report emails over Gmail or IMAP and ingest their attachments for LISTENER_USER_ID",
}

var mailFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch new messages and store them raw",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Listener.Fetch(ctx)
		if err != nil {
			return err
		}
		color.Green("✓ Fetched %d: %d pending, %d already handled", res.Fetched, res.Pending, res.Settled)
		return nil
	},
}

var mailProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Ingest attachments of fetched messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Listener.ProcessPending(ctx, a.Config.MailListenerProcessBatch)
		if err != nil {
			return err
		}
		color.Green("✓ Processed %d", summary.Processed)
		fmt.Printf("  Skipped:  %d\n  Failed:   %d\n  Deferred: %d\n", summary.Skipped, summary.Failed, summary.Deferred)
		return nil
	},
}

var mailListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Fetch and process on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		color.Cyan("Listening on %s every %s (Ctrl-C to stop)", a.Config.MailListenerProvider, a.Config.ListenerInterval())
		return a.Listener.Run(ctx)
	},
}

func init() {
	mailCmd.AddCommand(mailFetchCmd)
	mailCmd.AddCommand(mailProcessCmd)
	mailCmd.AddCommand(mailListenCmd)
}
