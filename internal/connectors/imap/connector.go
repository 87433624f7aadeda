package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"omnistock/internal"
	"omnistock/internal/config"
	"omnistock/internal/connectors"
)

const provider = "imap"

type Connector struct {
	addr       string
	serverName string
	useTLS     bool
	user       string
	password   string
	markSeen   bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ key, value string }{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req.key, req.value); err != nil {
			return nil, err
		}
	}
	return &Connector{
		addr:       fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		serverName: cfg.IMAPHost,
		useTLS:     cfg.IMAPSecure,
		user:       cfg.IMAPUser,
		password:   cfg.IMAPPassword,
		markSeen:   cfg.IMAPMarkSeen,
	}, nil
}

// FetchInbox downloads the newest max unseen messages of label that carry an
// order spreadsheet. Messages without one are left untouched on the server.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.open()
	if err != nil {
		return nil, err
	}
	defer client.Logout()
	stop := context.AfterFunc(ctx, func() { _ = client.Terminate() })
	defer stop()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("imap login %s: %w", c.user, err)
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", label, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	wanted, err := withOrderFiles(client, uids)
	if err != nil || len(wanted) == 0 {
		return nil, err
	}

	out, err := download(client, wanted)
	if err != nil {
		return nil, err
	}
	if c.markSeen {
		set := new(imap.SeqSet)
		set.AddNum(wanted...)
		if err := client.UidStore(set, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil); err != nil {
			return out, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	return out, nil
}

func (c *Connector) open() (*imapclient.Client, error) {
	var (
		client *imapclient.Client
		err    error
	)
	if c.useTLS {
		client, err = imapclient.DialTLS(c.addr, &tls.Config{ServerName: c.serverName})
	} else {
		client, err = imapclient.Dial(c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", c.addr, err)
	}
	return client, nil
}

// withOrderFiles narrows uids to messages whose structure names a spreadsheet part.
func withOrderFiles(client *imapclient.Client, uids []uint32) ([]uint32, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(set, []imap.FetchItem{imap.FetchUid, imap.FetchBodyStructure}, ch) }()

	var keep []uint32
	for msg := range ch {
		if msg != nil && hasOrderFile(msg.BodyStructure) {
			keep = append(keep, msg.Uid)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch structure: %w", err)
	}
	return keep, nil
}

func hasOrderFile(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if connectors.IsOrderFileName(partName(bs)) {
		return true
	}
	for _, child := range bs.Parts {
		if hasOrderFile(child) {
			return true
		}
	}
	return false
}

func partName(bs *imap.BodyStructure) string {
	for _, params := range []map[string]string{bs.DispositionParams, bs.Params} {
		for k, v := range params {
			if strings.EqualFold(k, "filename") || strings.EqualFold(k, "name") {
				return v
			}
		}
	}
	return ""
}

func download(client *imapclient.Client, uids []uint32) ([]internal.FetchedMailMessage, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(set, items, ch) }()

	out := make([]internal.FetchedMailMessage, 0, len(uids))
	var readErr error
	for msg := range ch {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = fmt.Errorf("imap read uid %d: %w", msg.Uid, err)
			continue
		}
		out = append(out, toFetched(msg, raw))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch bodies: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	received := msg.InternalDate
	if received.IsZero() {
		received = time.Now()
	}
	fetched := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: received.UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if env := msg.Envelope; env != nil {
		if id := strings.TrimSpace(env.MessageId); id != "" {
			fetched.MessageID = id
		}
		fetched.Subject = env.Subject
		fetched.From = senders(env.From)
	}
	return fetched
}

func senders(addrs []*imap.Address) string {
	var parts []string
	for _, a := range addrs {
		if a == nil {
			continue
		}
		mailbox := a.MailboxName
		if a.HostName != "" {
			mailbox += "@" + a.HostName
		}
		if a.PersonalName == "" {
			parts = append(parts, mailbox)
			continue
		}
		parts = append(parts, a.PersonalName+" <"+mailbox+">")
	}
	return strings.Join(parts, ", ")
}
