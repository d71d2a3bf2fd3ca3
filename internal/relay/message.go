package relay

import (
	"bytes"
	"fmt"
	"mime"
	"time"
)

// FormatMessage assembles the RFC 5322 wire form of one HTML email. Bodies
// arrive fully rendered; this only adds the envelope headers.
func FormatMessage(from, to, subject, htmlBody string) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// AppendSignature adds the identity's signature block below the body, the
// same way the settings screen previews it.
func AppendSignature(body, signature string) string {
	if signature == "" {
		return body
	}
	return body + "<br><br>" + signature
}
