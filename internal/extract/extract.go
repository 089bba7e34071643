// Package extract pulls the plain-text body out of a message part tree.
package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

const (
	plainText       = "text/plain"
	defaultMaxDepth = 64
)

// Extractor walks body trees. The zero value is usable.
type Extractor struct {
	Log      *slog.Logger
	MaxDepth int
}

// PlainText returns the decoded payload of the first text/plain leaf in
// depth-first, left-to-right order, or "" when there is none. Decoding
// problems are logged and yield "".
func (e Extractor) PlainText(root *gmail.Part) string {
	leaf := e.find(root, 0)
	if leaf == nil {
		return ""
	}
	text, err := decode(leaf)
	if err != nil {
		e.logger().Warn("could not decode text/plain part", "charset", leaf.Charset, "error", err)
		return ""
	}
	return text
}

func (e Extractor) find(p *gmail.Part, depth int) *gmail.Part {
	if p == nil {
		return nil
	}
	if depth > e.maxDepth() {
		e.logger().Warn("body tree too deep, giving up", "depth", depth)
		return nil
	}
	if p.IsLeaf() {
		if strings.EqualFold(p.MimeType, plainText) && p.Data != "" {
			return p
		}
		return nil
	}
	for _, child := range p.Parts {
		if found := e.find(child, depth+1); found != nil {
			return found
		}
	}
	return nil
}

func (e Extractor) maxDepth() int {
	if e.MaxDepth <= 0 {
		return defaultMaxDepth
	}
	return e.MaxDepth
}

func (e Extractor) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

func decode(p *gmail.Part) (string, error) {
	raw, err := decodeBase64URL(p.Data)
	if err != nil {
		return "", err
	}
	cs := strings.ToLower(strings.TrimSpace(p.Charset))
	if cs != "" && cs != "utf-8" && cs != "utf8" && cs != "us-ascii" {
		r, err := charset.Reader(cs, bytes.NewReader(raw))
		if err != nil {
			return "", err
		}
		if raw, err = io.ReadAll(r); err != nil {
			return "", err
		}
	}
	if !utf8.Valid(raw) {
		return "", errInvalidUTF8
	}
	return string(raw), nil
}

// decodeBase64URL accepts both padded and unpadded base64url input.
func decodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	return base64.RawURLEncoding.DecodeString(data)
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

const errInvalidUTF8 = decodeError("payload is not valid UTF-8")
