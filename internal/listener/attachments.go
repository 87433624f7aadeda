package listener

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"omnistock/internal/connectors"
)

type Attachment struct {
	FileName string
	Content  []byte
}

// ExtractOrderAttachments returns spreadsheet attachments of a raw RFC 822 message.
// Inline parts with a spreadsheet file name count too.
func ExtractOrderAttachments(raw []byte) ([]Attachment, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	var out []Attachment
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, part := range parts {
		name := strings.TrimSpace(part.FileName)
		if name == "" || !connectors.IsOrderFileName(name) {
			continue
		}
		if len(part.Content) == 0 {
			continue
		}
		out = append(out, Attachment{FileName: name, Content: part.Content})
	}
	return out, nil
}
