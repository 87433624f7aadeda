package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func TestSenders(t *testing.T) {
	got := senders([]*imap.Address{
		{PersonalName: "Seller Center", MailboxName: "noreply", HostName: "shopee.co.id"},
		nil,
		{MailboxName: "ops", HostName: "example.com"},
	})
	want := "Seller Center <noreply@shopee.co.id>, ops@example.com"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if senders(nil) != "" {
		t.Fatal("nil addresses should format empty")
	}
}

func TestToFetched(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	msg := &imap.Message{Uid: 42, InternalDate: when}
	got := toFetched(msg, []byte("raw"))
	if got.MessageID != "imap-42" || got.Provider != "imap" {
		t.Fatalf("fetched = %+v", got)
	}
	if got.ReceivedAt != "2024-03-01T03:00:00Z" {
		t.Fatalf("received = %q", got.ReceivedAt)
	}

	msg.Envelope = &imap.Envelope{MessageId: "<abc@mail>", Subject: "Pesanan"}
	got = toFetched(msg, nil)
	if got.MessageID != "<abc@mail>" || got.Subject != "Pesanan" {
		t.Fatalf("envelope not used: %+v", got)
	}
}

func TestHasOrderFile(t *testing.T) {
	cases := []struct {
		name string
		bs   *imap.BodyStructure
		want bool
	}{
		{"nil", nil, false},
		{"plain text", &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}, false},
		{"xlsx attachment", &imap.BodyStructure{
			MIMEType: "multipart", MIMESubType: "mixed",
			Parts: []*imap.BodyStructure{
				{MIMEType: "text", MIMESubType: "html"},
				{MIMEType: "application", MIMESubType: "octet-stream", DispositionParams: map[string]string{"filename": "Order.all.20240101.xlsx"}},
			},
		}, true},
		{"csv named by content type", &imap.BodyStructure{MIMEType: "text", MIMESubType: "csv", Params: map[string]string{"name": "tiktok.CSV"}}, true},
		{"pdf invoice", &imap.BodyStructure{
			MIMEType: "multipart", MIMESubType: "mixed",
			Parts: []*imap.BodyStructure{{MIMEType: "application", MIMESubType: "pdf", DispositionParams: map[string]string{"filename": "invoice.pdf"}}},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasOrderFile(tc.bs); got != tc.want {
				t.Fatalf("hasOrderFile = %v, want %v", got, tc.want)
			}
		})
	}
}
