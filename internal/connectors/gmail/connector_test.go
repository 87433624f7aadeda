package gmail

import (
	"encoding/base64"
	"testing"
)

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte("Subject: orders\r\n\r\nhello?>")
	for name, enc := range map[string]string{
		"raw":    base64.RawURLEncoding.EncodeToString(raw),
		"padded": base64.URLEncoding.EncodeToString(raw),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeBase64URL(enc)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(got) != string(raw) {
				t.Fatalf("got %q", got)
			}
		})
	}
	if _, err := decodeBase64URL("***"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestReceivedAt(t *testing.T) {
	cases := map[string]string{
		"Mon, 02 Jan 2006 15:04:05 +0700": "2006-01-02T08:04:05Z",
		"Thu, 4 Jan 2018 17:53:36 +0000":  "2018-01-04T17:53:36Z",
	}
	for in, want := range cases {
		if got := receivedAt(in); got != want {
			t.Fatalf("receivedAt(%q) = %q, want %q", in, got, want)
		}
	}
	if receivedAt("") == "" {
		t.Fatal("empty header should fall back to now")
	}
}
