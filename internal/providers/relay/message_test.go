package relay

import (
	"strings"
	"testing"
)

func TestMessageBuild(t *testing.T) {
	payload, id := Message{
		From:      "sender@example.com",
		FromName:  "Käthe",
		To:        "rcpt@example.com",
		Subject:   "Grüße",
		PlainBody: "hello",
		HTMLBody:  "<p>hello</p>",
		ReplyTo:   "replies@example.com",
		Headers:   map[string]string{"X-Campaign": "camp-1", "Subject": "ignored"},
	}.build()
	body := string(payload)

	if !strings.HasSuffix(id, "@example.com") {
		t.Fatalf("message id %q must use the sender domain", id)
	}
	if !strings.Contains(body, "Message-ID: <"+id+">") {
		t.Fatalf("message id header missing")
	}
	// non-ascii header values are encoded, never raw
	if strings.Contains(body, "Grüße") || !strings.Contains(body, "=?utf-8?q?") {
		t.Fatalf("subject not q-encoded:\n%s", body)
	}
	if !strings.Contains(body, "multipart/alternative") {
		t.Fatalf("content type missing")
	}
	// plain part renders before the html part
	plainAt := strings.Index(body, "text/plain")
	htmlAt := strings.Index(body, "text/html")
	if plainAt < 0 || htmlAt < 0 || plainAt > htmlAt {
		t.Fatalf("part order wrong: plain=%d html=%d", plainAt, htmlAt)
	}
	if !strings.Contains(body, "X-Campaign: camp-1") {
		t.Fatalf("extra header dropped")
	}
	if strings.Contains(body, "Subject: ignored") {
		t.Fatalf("reserved header must not be overridable")
	}
	if !strings.Contains(body, "Reply-To: replies@example.com") {
		t.Fatalf("reply-to missing")
	}
	if !strings.HasSuffix(body, "--\r\n") {
		t.Fatalf("closing boundary missing")
	}
}

func TestDotStuff(t *testing.T) {
	in := []byte(".leading dot\r\nmiddle . dot\r\n.\r\nend")
	out := string(dotStuff(in))
	if !strings.HasPrefix(out, "..leading dot") {
		t.Fatalf("first line not stuffed: %q", out)
	}
	if !strings.Contains(out, "\r\n..\r\n") {
		t.Fatalf("bare dot line not stuffed: %q", out)
	}
	if strings.Contains(out, "middle .. dot") {
		t.Fatalf("mid-line dots must not change: %q", out)
	}
}

func TestDomainOf(t *testing.T) {
	if got := domainOf("a@b.example"); got != "b.example" {
		t.Fatalf("got %q", got)
	}
	if got := domainOf("no-at"); got != "localhost" {
		t.Fatalf("got %q", got)
	}
}
