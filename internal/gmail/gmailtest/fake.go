// Package gmailtest provides an in-memory mailbox implementing gmail.Client.
package gmailtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected failure")

// Mailbox stores messages and labels and applies modifications to them.
type Mailbox struct {
	mu sync.Mutex

	Messages map[gmail.MessageID]*gmail.Message
	Threads  map[gmail.ThreadID]int
	Labels   []gmail.Label
	// ListResult is returned by List regardless of the query.
	ListResult []gmail.MessageID

	Queries  []string
	Modifies []Modify
	Sent     []gmail.OutgoingMessage
	Created  []string

	FailList   error
	FailGet    map[gmail.MessageID]error
	FailThread map[gmail.ThreadID]error
	FailSend   error
	// FailModify fails the nth (1-based) Modify call; zero disables it.
	FailModify int
	FailLabels error

	nextLabel int
}

// Modify records one label mutation call.
type Modify struct {
	ID  gmail.MessageID
	Ops gmail.ModifyOps
}

// New returns an empty mailbox with no labels.
func New() *Mailbox {
	return &Mailbox{
		Messages:   map[gmail.MessageID]*gmail.Message{},
		Threads:    map[gmail.ThreadID]int{},
		FailGet:    map[gmail.MessageID]error{},
		FailThread: map[gmail.ThreadID]error{},
	}
}

// Add stores msg and lists it as a candidate. The thread size defaults to 1.
func (m *Mailbox) Add(msg gmail.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := msg
	cp.Labels = append([]gmail.LabelID(nil), msg.Labels...)
	m.Messages[msg.ID] = &cp
	if _, ok := m.Threads[msg.ThreadID]; !ok {
		m.Threads[msg.ThreadID] = 1
	}
	m.ListResult = append(m.ListResult, msg.ID)
}

// LabelsOf returns the sorted label ids of a message.
func (m *Mailbox) LabelsOf(id gmail.MessageID) []gmail.LabelID {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.Messages[id]
	if !ok {
		return nil
	}
	out := append([]gmail.LabelID(nil), msg.Labels...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Mailbox) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = ctx
	_ = pageToken
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, q.Raw)
	if m.FailList != nil {
		return gmail.ListPage{}, m.FailList
	}
	ids := append([]gmail.MessageID(nil), m.ListResult...)
	if pageSize > 0 && len(ids) > pageSize {
		ids = ids[:pageSize]
	}
	return gmail.ListPage{IDs: ids}, nil
}

func (m *Mailbox) Get(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailGet[id]; err != nil {
		return gmail.Message{}, err
	}
	msg, ok := m.Messages[id]
	if !ok {
		return gmail.Message{}, fmt.Errorf("message %s not found", id)
	}
	cp := *msg
	cp.Labels = append([]gmail.LabelID(nil), msg.Labels...)
	return cp, nil
}

func (m *Mailbox) ThreadSize(ctx context.Context, id gmail.ThreadID) (int, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailThread[id]; err != nil {
		return 0, err
	}
	return m.Threads[id], nil
}

func (m *Mailbox) Modify(ctx context.Context, id gmail.MessageID, ops gmail.ModifyOps) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Modifies = append(m.Modifies, Modify{ID: id, Ops: ops})
	if m.FailModify > 0 && len(m.Modifies) == m.FailModify {
		return ErrInjected
	}
	msg, ok := m.Messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	kept := msg.Labels[:0]
	for _, l := range msg.Labels {
		if !hasID(ops.RemoveLabels, l) {
			kept = append(kept, l)
		}
	}
	msg.Labels = kept
	for _, l := range ops.AddLabels {
		if !hasID(msg.Labels, l) {
			msg.Labels = append(msg.Labels, l)
		}
	}
	return nil
}

func (m *Mailbox) Send(ctx context.Context, msg gmail.OutgoingMessage) (gmail.MessageID, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend != nil {
		return "", m.FailSend
	}
	m.Sent = append(m.Sent, msg)
	return gmail.MessageID(fmt.Sprintf("sent-%d", len(m.Sent))), nil
}

func (m *Mailbox) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLabels != nil {
		return nil, m.FailLabels
	}
	return append([]gmail.Label(nil), m.Labels...), nil
}

func (m *Mailbox) CreateLabel(ctx context.Context, name string) (gmail.LabelID, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLabel++
	id := gmail.LabelID(fmt.Sprintf("Label_%d", m.nextLabel))
	m.Labels = append(m.Labels, gmail.Label{ID: id, Name: name})
	m.Created = append(m.Created, name)
	return id, nil
}

func hasID(ids []gmail.LabelID, id gmail.LabelID) bool {
	for _, l := range ids {
		if l == id {
			return true
		}
	}
	return false
}

var _ gmail.Client = (*Mailbox)(nil)
