// Package reply renders outbound answers as multipart/alternative MIME.
package reply

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

//go:embed template.html
var defaultTemplate string

// Draft is everything needed to render one reply.
type Draft struct {
	From      string // optional; the provider fills in the mailbox owner
	To        string
	Subject   string // subject of the original message
	InReplyTo string // Message-ID of the original message, angle brackets included
	Body      string // plain text
	Date      time.Time
}

// Composer renders drafts with a branded HTML wrapper.
type Composer struct {
	tmpl *template.Template
}

// NewComposer parses the HTML wrapper at path, or the built-in one when path
// is empty. The wrapper must reference {{.Content}} exactly where the body
// goes.
func NewComposer(path string) (*Composer, error) {
	src := defaultTemplate
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path) // #nosec G304 - operator supplied path
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
		src = string(b)
	}
	if !strings.Contains(src, "{{.Content}}") {
		return nil, errors.New("reply template has no {{.Content}} placeholder")
	}
	tmpl, err := template.New("reply").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse reply template: %w", err)
	}
	return &Composer{tmpl: tmpl}, nil
}

// Subject prefixes "Re: " unless the subject already starts with it.
func Subject(original string) string {
	trimmed := strings.TrimSpace(original)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// HTMLBody escapes text, turns newlines into <br> and wraps it.
func (c *Composer) HTMLBody(text string) (string, error) {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	var buf bytes.Buffer
	// escaped is already safe; the template must not escape it again
	if err := c.tmpl.Execute(&buf, struct{ Content template.HTML }{template.HTML(escaped)}); err != nil { // #nosec G203
		return "", fmt.Errorf("render reply template: %w", err)
	}
	return buf.String(), nil
}

// Compose renders d as RFC 5322 bytes: multipart/alternative with a
// text/plain part and the branded text/html part.
func (c *Composer) Compose(d Draft) ([]byte, error) {
	if strings.TrimSpace(d.To) == "" {
		return nil, errors.New("reply has no recipient")
	}
	to, err := mail.ParseAddress(d.To)
	if err != nil {
		return nil, fmt.Errorf("parse recipient %q: %w", d.To, err)
	}
	htmlBody, err := c.HTMLBody(d.Body)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	date := d.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("To", []*mail.Address{to})
	if d.From != "" {
		from, err := mail.ParseAddress(d.From)
		if err != nil {
			return nil, fmt.Errorf("parse sender %q: %w", d.From, err)
		}
		h.SetAddressList("From", []*mail.Address{from})
	}
	h.SetSubject(Subject(d.Subject))
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	if d.InReplyTo != "" {
		h.Set("In-Reply-To", d.InReplyTo)
		h.Set("References", d.InReplyTo)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mime writer: %w", err)
	}
	if err := writePart(w, "text/plain", d.Body); err != nil {
		return nil, err
	}
	if err := writePart(w, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := w.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close %s part: %w", contentType, err)
	}
	return nil
}
