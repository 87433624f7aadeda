package connectors

import (
	"context"
	"path/filepath"
	"strings"

	"omnistock/internal"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

var orderFileExts = map[string]bool{".xlsx": true, ".xls": true, ".csv": true}

// IsOrderFileName reports whether an attachment name looks like a marketplace order export.
func IsOrderFileName(name string) bool {
	return orderFileExts[strings.ToLower(filepath.Ext(strings.TrimSpace(name)))]
}
