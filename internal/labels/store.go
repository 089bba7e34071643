// Package labels keeps the automation's only persistent state: the set of
// automation-owned labels attached to each message.
package labels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// Default label names. They are display names in the mailbox, matched by
// exact string.
const (
	BotRead             = "Bot Read"
	BotAnswered         = "Bot Answered"
	BotDismissed        = "Bot Dismissed"
	NeedsHumanAttention = "Needs Human Attention"
)

// Unread is the provider sentinel, addressed by name like the others.
const Unread = string(gmail.LabelUnread)

// Names maps the automation roles to mailbox label names.
type Names struct {
	BotRead             string
	BotAnswered         string
	BotDismissed        string
	NeedsHumanAttention string
}

// DefaultNames returns the label names used when none are configured.
func DefaultNames() Names {
	return Names{
		BotRead:             BotRead,
		BotAnswered:         BotAnswered,
		BotDismissed:        BotDismissed,
		NeedsHumanAttention: NeedsHumanAttention,
	}
}

func (n Names) all() []string {
	return []string{n.BotRead, n.BotAnswered, n.BotDismissed, n.NeedsHumanAttention}
}

// Mutation is a combined add/remove of label names applied in one call.
type Mutation struct {
	Add    []string
	Remove []string
}

// Empty reports whether the mutation changes nothing.
func (m Mutation) Empty() bool { return len(m.Add) == 0 && len(m.Remove) == 0 }

// Merge combines two mutations. A name added by either side wins over a
// removal.
func (m Mutation) Merge(o Mutation) Mutation {
	out := Mutation{Add: appendUnique(append([]string(nil), m.Add...), o.Add...)}
	for _, r := range appendUnique(append([]string(nil), m.Remove...), o.Remove...) {
		if !contains(out.Add, r) {
			out.Remove = append(out.Remove, r)
		}
	}
	return out
}

// MarkBotRead records that the automation has taken the message.
func (n Names) MarkBotRead() Mutation {
	return Mutation{Add: []string{n.BotRead}, Remove: []string{Unread}}
}

// Escalate flags the message for a person and reopens it.
func (n Names) Escalate() Mutation {
	return Mutation{Add: []string{n.NeedsHumanAttention, Unread}}
}

func (n Names) MarkAnswered() Mutation {
	return Mutation{Add: []string{n.BotAnswered}}
}

func (n Names) MarkDismissed() Mutation {
	return Mutation{Add: []string{n.BotDismissed}}
}

// Store resolves label names to provider ids and applies mutations.
type Store struct {
	Client gmail.Client
	Names  Names
	Log    *slog.Logger

	mu  sync.Mutex
	ids map[string]gmail.LabelID
}

// NewStore constructs a Store; Ensure must run before Apply or Has.
func NewStore(client gmail.Client, names Names, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Client: client, Names: names, Log: logger}
}

// Ensure lists mailbox labels once and creates the automation labels that
// are missing. Calling it again returns the cached mapping.
func (s *Store) Ensure(ctx context.Context) (map[string]gmail.LabelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids != nil {
		return copyIDs(s.ids), nil
	}

	existing, err := s.Client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	byName := make(map[string]gmail.LabelID, len(existing))
	for _, l := range existing {
		byName[l.Name] = l.ID
	}

	ids := map[string]gmail.LabelID{Unread: gmail.LabelUnread}
	for _, name := range s.Names.all() {
		if id, ok := byName[name]; ok {
			ids[name] = id
			continue
		}
		id, err := s.Client.CreateLabel(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("ensure label %q: %w", name, err)
		}
		s.Log.InfoContext(ctx, "label created", "name", name, "id", id)
		ids[name] = id
	}
	s.ids = ids
	return copyIDs(ids), nil
}

// ID returns the provider id of a label name resolved by Ensure.
func (s *Store) ID(name string) (gmail.LabelID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[name]
	return id, ok
}

// Has reports whether msg carries the named label.
func (s *Store) Has(msg gmail.Message, name string) bool {
	id, ok := s.ID(name)
	if !ok {
		return false
	}
	return msg.HasLabel(id)
}

// HasUnread reports whether msg is still unread.
func (s *Store) HasUnread(msg gmail.Message) bool {
	return msg.HasLabel(gmail.LabelUnread)
}

// Apply sends a single modify call for m. Empty mutations make no call. The
// provider does not apply adds and removes atomically with other calls, so a
// failure leaves earlier mutations in place.
func (s *Store) Apply(ctx context.Context, id gmail.MessageID, m Mutation) error {
	if m.Empty() {
		return nil
	}
	ops, err := s.resolve(m)
	if err != nil {
		return err
	}
	if err := s.Client.Modify(ctx, id, ops); err != nil {
		return fmt.Errorf("modify labels on %s: %w", id, err)
	}
	return nil
}

func (s *Store) resolve(m Mutation) (gmail.ModifyOps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		return gmail.ModifyOps{}, fmt.Errorf("labels not ensured")
	}
	var ops gmail.ModifyOps
	for _, name := range m.Add {
		id, ok := s.ids[name]
		if !ok {
			return gmail.ModifyOps{}, fmt.Errorf("unknown label %q", name)
		}
		ops.AddLabels = append(ops.AddLabels, id)
	}
	for _, name := range m.Remove {
		id, ok := s.ids[name]
		if !ok {
			return gmail.ModifyOps{}, fmt.Errorf("unknown label %q", name)
		}
		ops.RemoveLabels = append(ops.RemoveLabels, id)
	}
	return ops, nil
}

func copyIDs(in map[string]gmail.LabelID) map[string]gmail.LabelID {
	out := make(map[string]gmail.LabelID, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		if !contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
