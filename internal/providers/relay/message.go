package relay

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"

	"blast/internal/util"
)

// Message is the transport-independent email to deliver. From and To are
// bare addresses; FromName is rendered into the From header.
type Message struct {
	From      string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
	PlainBody string
	ReplyTo   string
	Headers   map[string]string
}

// build renders the RFC-822 payload as multipart/alternative with plain
// before html, quoted-printable encoded. Returns the payload and the
// generated Message-ID value.
func (m Message) build() ([]byte, string) {
	token := util.NewToken()
	messageID := fmt.Sprintf("%s@%s", token, domainOf(m.From))
	boundary := "=_" + token

	var b bytes.Buffer
	if m.FromName != "" {
		b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", m.FromName), m.From))
	} else {
		b.WriteString(fmt.Sprintf("From: %s\r\n", m.From))
	}
	b.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject)))
	b.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	if m.ReplyTo != "" {
		b.WriteString(fmt.Sprintf("Reply-To: %s\r\n", m.ReplyTo))
	}
	for k, v := range m.Headers {
		switch strings.ToLower(k) {
		case "from", "to", "subject", "message-id", "mime-version", "content-type":
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	b.WriteString("\r\n")

	if m.PlainBody != "" {
		writePart(&b, boundary, "text/plain", m.PlainBody)
	}
	if m.HTMLBody != "" {
		writePart(&b, boundary, "text/html", m.HTMLBody)
	}
	b.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return b.Bytes(), messageID
}

func writePart(b *bytes.Buffer, boundary, contentType, body string) {
	b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	b.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	qp := quotedprintable.NewWriter(b)
	_, _ = qp.Write([]byte(body))
	_ = qp.Close()
	b.WriteString("\r\n")
}

func domainOf(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "localhost"
}
