// internal/gmail/types.go
package gmail

import (
	"strings"
	"time"
)

type (
	MessageID string
	ThreadID  string
	LabelID   string
)

// LabelUnread is the provider-owned sentinel carried by unread messages.
const LabelUnread LabelID = "UNREAD"

// Part is one node of a message body tree. A leaf carries a MIME type and a
// base64url payload; an internal node carries ordered child parts.
type Part struct {
	MimeType string
	Charset  string // charset parameter of the part's Content-Type, if any
	Data     string // base64url encoded body, as returned by the provider
	Parts    []*Part
}

// IsLeaf reports whether the part has no children.
func (p *Part) IsLeaf() bool { return len(p.Parts) == 0 }

type Message struct {
	ID       MessageID
	ThreadID ThreadID
	Labels   []LabelID
	Headers  map[string]string // From, To, Subject, Message-ID, Date, etc.
	Body     *Part
	Received time.Time
}

// HasLabel reports whether the message currently carries id.
func (m Message) HasLabel(id LabelID) bool {
	for _, l := range m.Labels {
		if l == id {
			return true
		}
	}
	return false
}

// Header returns the value of the named header, matched case-insensitively.
func (m Message) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Label is a provider label as listed by the mailbox.
type Label struct {
	ID   LabelID
	Name string
}

type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Empty reports whether the operation would not change anything.
func (o ModifyOps) Empty() bool { return len(o.AddLabels) == 0 && len(o.RemoveLabels) == 0 }

type Query struct {
	Raw string // Gmail query string, already formed (e.g., `in:inbox is:unread -label:"Bot Read"`)
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// OutgoingMessage is a fully rendered RFC 5322 message sent inside a thread.
type OutgoingMessage struct {
	Raw      []byte
	ThreadID ThreadID
}
