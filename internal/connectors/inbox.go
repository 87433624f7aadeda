package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"omnistock/internal"
	"omnistock/internal/storage"
)

// Inbox mirrors a mail folder into the mailbox table. Raw messages land on disk
// once per content digest and a message that was already handled keeps its status.
type Inbox struct {
	connector MailConnector
	mailbox   storage.Mailbox
	rawDir    string
}

type SyncResult struct {
	Fetched int `json:"fetched"`
	Pending int `json:"pending"`
	Settled int `json:"settled"`
}

func NewInbox(mailbox storage.Mailbox, rawDir string, connector MailConnector) *Inbox {
	return &Inbox{connector: connector, mailbox: mailbox, rawDir: rawDir}
}

// Sync pulls up to max messages from label. Pending counts messages still
// waiting for order processing; Settled counts ones processed earlier.
func (in *Inbox) Sync(ctx context.Context, label string, max int) (SyncResult, error) {
	messages, err := in.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}
	res := SyncResult{Fetched: len(messages)}
	if len(messages) == 0 {
		return res, nil
	}
	if err := os.MkdirAll(in.rawDir, 0o755); err != nil {
		return res, fmt.Errorf("raw mail dir: %w", err)
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, err := in.record(ctx, msg)
		if err != nil {
			return res, fmt.Errorf("record %s %s: %w", msg.Provider, msg.MessageID, err)
		}
		if row.Status == internal.EmailFetched {
			res.Pending++
		} else {
			res.Settled++
		}
	}
	return res, nil
}

func (in *Inbox) record(ctx context.Context, msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	sum := sha256.Sum256(msg.Raw)
	digest := hex.EncodeToString(sum[:])
	rawRef := filepath.Join(in.rawDir, digest+".eml")
	if err := writeOnce(rawRef, msg.Raw); err != nil {
		return internal.EmailRow{}, err
	}
	return in.mailbox.UpsertEmail(ctx, msg, digest, rawRef, internal.EmailFetched)
}

// writeOnce writes through a temp file so a crash never leaves a truncated .eml
// under its final name.
func writeOnce(path string, raw []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".eml-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
