package gmail

import (
	"encoding/base64"
	"strings"
)

// OutboundMessage is a single HTML email. Header values are used as given.
type OutboundMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"messageHtml"`
}

// Complete reports whether all three fields are set.
func (m OutboundMessage) Complete() bool {
	return m.To != "" && m.Subject != "" && m.HTMLBody != ""
}

// BuildRaw assembles the RFC 2822 message: To, Subject, MIME-Version and
// Content-Type headers, a blank line, then the HTML body, joined with CRLF.
func BuildRaw(m OutboundMessage) string {
	lines := []string{
		"To: " + m.To,
		"Subject: " + m.Subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		m.HTMLBody,
	}
	return strings.Join(lines, "\r\n")
}

// EncodeRaw returns the message as unpadded base64url, the form Gmail
// expects in Message.Raw.
func EncodeRaw(m OutboundMessage) string {
	return base64.RawURLEncoding.EncodeToString([]byte(BuildRaw(m)))
}
