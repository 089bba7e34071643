package triage

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/labels"
	"github.com/joshsymonds/mailtriage/internal/reply"
)

// Outcome is the terminal result of dispatching a decision.
type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeEscalated
	OutcomeDismissed
	OutcomeSendFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeEscalated:
		return "escalated"
	case OutcomeDismissed:
		return "dismissed"
	case OutcomeSendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

// Dispatcher carries out a decision and records it in the message labels.
type Dispatcher struct {
	Client   gmail.Client
	Labels   *labels.Store
	Composer *reply.Composer
	Log      *slog.Logger
	From     string // optional From header for replies
	DryRun   bool
}

// Dispatch executes d for msg. Send failures escalate the message and are not
// returned; only label mutation failures are.
func (p *Dispatcher) Dispatch(ctx context.Context, msg gmail.Message, d classify.Decision) (Outcome, error) {
	names := p.Labels.Names
	switch d.Kind {
	case classify.KindAnswer:
		return p.answer(ctx, msg, d)
	case classify.KindIgnore:
		// ignore still surfaces to a person
		return OutcomeDismissed, p.apply(ctx, msg.ID, names.MarkDismissed().Merge(names.Escalate()))
	default:
		return OutcomeEscalated, p.apply(ctx, msg.ID, names.Escalate())
	}
}

func (p *Dispatcher) answer(ctx context.Context, msg gmail.Message, d classify.Decision) (Outcome, error) {
	names := p.Labels.Names
	to := Recipient(d, msg.Header("From"))
	if to == "" {
		p.Log.WarnContext(ctx, "no recipient for answer, escalating", "id", msg.ID, "from", msg.Header("From"))
		return OutcomeSendFailed, p.apply(ctx, msg.ID, names.Escalate())
	}

	raw, err := p.Composer.Compose(reply.Draft{
		From:      p.From,
		To:        to,
		Subject:   msg.Header("Subject"),
		InReplyTo: msg.Header("Message-ID"),
		Body:      d.Response,
	})
	if err != nil {
		p.Log.WarnContext(ctx, "compose reply failed, escalating", "id", msg.ID, "error", err)
		return OutcomeSendFailed, p.apply(ctx, msg.ID, names.Escalate())
	}

	if p.DryRun {
		p.Log.InfoContext(ctx, "dry-run: would send reply", "id", msg.ID, "to", to, "bytes", len(raw))
		return OutcomeAnswered, p.apply(ctx, msg.ID, names.MarkAnswered())
	}
	sentID, err := p.Client.Send(ctx, gmail.OutgoingMessage{Raw: raw, ThreadID: msg.ThreadID})
	if err != nil {
		p.Log.WarnContext(ctx, "send reply failed, escalating", "id", msg.ID, "to", to, "error", err)
		return OutcomeSendFailed, p.apply(ctx, msg.ID, names.Escalate())
	}
	p.Log.InfoContext(ctx, "reply sent", "id", msg.ID, "to", to, "sent_id", sentID)
	return OutcomeAnswered, p.apply(ctx, msg.ID, names.MarkAnswered())
}

func (p *Dispatcher) apply(ctx context.Context, id gmail.MessageID, m labels.Mutation) error {
	if p.DryRun {
		p.Log.InfoContext(ctx, "dry-run: would modify labels", "id", id, "add", m.Add, "remove", m.Remove)
		return nil
	}
	if err := p.Labels.Apply(ctx, id, m); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Recipient resolves who an answer goes to: the classifier's address when it
// found one in the email body, otherwise the sender.
func Recipient(d classify.Decision, from string) string {
	if addr := strings.TrimSpace(d.ResponseAddress); addr != "" {
		return addr
	}
	return SenderAddress(from)
}

// SenderAddress extracts the bare address from a From header value.
func SenderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	// tolerate headers net/mail rejects, e.g. unquoted commas in the name
	if i := strings.LastIndex(from, "<"); i >= 0 {
		rest := from[i+1:]
		if j := strings.Index(rest, ">"); j >= 0 {
			rest = rest[:j]
		}
		if strings.Contains(rest, "@") {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	if strings.Contains(from, "@") && !strings.ContainsAny(from, " \t") {
		return from
	}
	return ""
}
