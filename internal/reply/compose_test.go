package reply

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func TestSubject(t *testing.T) {
	tests := map[string]string{
		"Facade quote":     "Re: Facade quote",
		"Re: Facade quote": "Re: Facade quote",
		"RE: hello":        "RE: hello",
		"":                 "Re: ",
		"Reroofing":        "Re: Reroofing",
	}
	for in, want := range tests {
		if got := Subject(in); got != want {
			t.Fatalf("Subject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTMLBodyEscapesAndBreaksLines(t *testing.T) {
	c, err := NewComposer("")
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	out, err := c.HTMLBody("Hello <b>there</b>\nLine two")
	if err != nil {
		t.Fatalf("html body: %v", err)
	}
	if !strings.Contains(out, "Hello &lt;b&gt;there&lt;/b&gt;<br>Line two") {
		t.Fatalf("body not escaped or line breaks missing:\n%s", out)
	}
	if !strings.Contains(out, "KrystenTrade") {
		t.Fatalf("branded wrapper missing")
	}
}

func TestCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.html")
	if err := os.WriteFile(good, []byte("<div>{{.Content}}</div>"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := NewComposer(good)
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	out, err := c.HTMLBody("a\nb")
	if err != nil || out != "<div>a<br>b</div>" {
		t.Fatalf("got %q, %v", out, err)
	}

	bad := filepath.Join(dir, "bad.html")
	if err := os.WriteFile(bad, []byte("<div>no slot</div>"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewComposer(bad); err == nil {
		t.Fatalf("expected error for template without placeholder")
	}
}

func TestCompose(t *testing.T) {
	c, err := NewComposer("")
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	raw, err := c.Compose(Draft{
		To:        "jana@example.cz",
		Subject:   "Facade quote",
		InReplyTo: "<orig-123@mail.example.com>",
		Body:      "Dobrý den,\nwe can help.",
		Date:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("read composed message: %v", err)
	}
	defer mr.Close()

	if subj, _ := mr.Header.Subject(); subj != "Re: Facade quote" {
		t.Fatalf("subject %q", subj)
	}
	if got := mr.Header.Get("In-Reply-To"); got != "<orig-123@mail.example.com>" {
		t.Fatalf("In-Reply-To %q", got)
	}
	if got := mr.Header.Get("References"); got != "<orig-123@mail.example.com>" {
		t.Fatalf("References %q", got)
	}
	to, err := mr.Header.AddressList("To")
	if err != nil || len(to) != 1 || to[0].Address != "jana@example.cz" {
		t.Fatalf("To %v, %v", to, err)
	}
	if ct, _, _ := mr.Header.ContentType(); ct != "multipart/alternative" {
		t.Fatalf("content type %q", ct)
	}

	parts := map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			t.Fatalf("unexpected attachment part")
		}
		ct, _, _ := h.ContentType()
		body, _ := io.ReadAll(p.Body)
		// quoted-printable text parts come back with CRLF line endings
		parts[ct] = strings.ReplaceAll(string(body), "\r\n", "\n")
	}
	if parts["text/plain"] != "Dobrý den,\nwe can help." {
		t.Fatalf("plain part %q", parts["text/plain"])
	}
	if !strings.Contains(parts["text/html"], "Dobrý den,<br>we can help.") {
		t.Fatalf("html part missing body:\n%s", parts["text/html"])
	}
}

func TestComposeRequiresRecipient(t *testing.T) {
	c, err := NewComposer("")
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	if _, err := c.Compose(Draft{Body: "hi"}); err == nil {
		t.Fatalf("expected error without recipient")
	}
	if _, err := c.Compose(Draft{To: "not an address", Body: "hi"}); err == nil {
		t.Fatalf("expected error for malformed recipient")
	}
}
