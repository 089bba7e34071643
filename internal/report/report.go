// Package report summarizes what the triage bot has done recently, counted
// from the automation labels it leaves on messages.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/labels"
	"github.com/joshsymonds/mailtriage/internal/rate"
)

const (
	defaultPageSize   = 500
	defaultSample     = 50
	defaultTopSenders = 10
	subjectLimit      = 60
)

// Options controls a report run.
type Options struct {
	Days     int
	PageSize int
	// Sample bounds how many awaiting messages are fetched for sender stats.
	Sample int
	TopN   int
}

// Service counts labelled messages in a lookback window.
type Service struct {
	Client  gmail.Client
	Names   labels.Names
	Limiter rate.Limiter
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, names labels.Names, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Client: client, Names: names, Limiter: limiter, Logger: logger, Clock: time.Now}
}

// Report is the result of one run.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Days        int          `json:"days"`
	Labels      []LabelCount `json:"labels"`
	Awaiting    int          `json:"awaiting_human"`
	Senders     []SenderStat `json:"awaiting_senders"`
}

// LabelCount is how many messages carry one automation label.
type LabelCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SenderStat ranks sender domains among messages still waiting for a person.
type SenderStat struct {
	Domain         string `json:"domain"`
	Count          int    `json:"count"`
	PreviewSubject string `json:"preview_subject"`
}

// Query selects messages carrying label within the window.
func Query(label string, days int) gmail.Query {
	return gmail.Query{Raw: fmt.Sprintf(`label:"%s" newer_than:%dd`, label, daysFromWindow(days))}
}

// AwaitingQuery selects escalated messages nobody has opened yet.
func AwaitingQuery(label string, days int) gmail.Query {
	return gmail.Query{Raw: fmt.Sprintf(`label:"%s" is:unread newer_than:%dd`, label, daysFromWindow(days))}
}

// Run counts every automation label and samples the senders awaiting a human.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	days := daysFromWindow(opts.Days)
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	sample := opts.Sample
	if sample <= 0 {
		sample = defaultSample
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopSenders
	}
	s.Logger.InfoContext(ctx, "building label report", "days", days)

	rep := Report{GeneratedAt: s.Clock(), Days: days}
	for _, name := range []string{s.Names.BotRead, s.Names.BotAnswered, s.Names.BotDismissed, s.Names.NeedsHumanAttention} {
		ids, err := s.collect(ctx, Query(name, days), pageSize)
		if err != nil {
			return Report{}, fmt.Errorf("count %q: %w", name, err)
		}
		rep.Labels = append(rep.Labels, LabelCount{Name: name, Count: len(ids)})
	}

	awaiting, err := s.collect(ctx, AwaitingQuery(s.Names.NeedsHumanAttention, days), pageSize)
	if err != nil {
		return Report{}, fmt.Errorf("count awaiting: %w", err)
	}
	rep.Awaiting = len(awaiting)
	if len(awaiting) > sample {
		awaiting = awaiting[:sample]
	}

	senders := map[string]*SenderStat{}
	for _, id := range awaiting {
		if err := s.wait(ctx); err != nil {
			return Report{}, err
		}
		msg, err := s.Client.Get(ctx, id)
		if err != nil {
			s.Logger.WarnContext(ctx, "skip message in report", "id", id, "error", err)
			continue
		}
		domain := domainOf(msg.Header("From"))
		if domain == "" {
			continue
		}
		st := senders[domain]
		if st == nil {
			st = &SenderStat{Domain: domain}
			senders[domain] = st
		}
		st.Count++
		if st.PreviewSubject == "" {
			st.PreviewSubject = msg.Header("Subject")
		}
	}
	rep.Senders = rankSenders(senders, topN)
	return rep, nil
}

func (s *Service) collect(ctx context.Context, q gmail.Query, pageSize int) ([]gmail.MessageID, error) {
	var (
		ids   []gmail.MessageID
		token string
	)
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.Client.List(ctx, q, token, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", q.Raw, err)
		}
		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" {
			return ids, nil
		}
		token = page.NextPageToken
	}
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return ctx.Err()
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("report interrupted: %w", err)
	}
	return nil
}

func rankSenders(m map[string]*SenderStat, topN int) []SenderStat {
	out := make([]SenderStat, 0, len(m))
	for _, st := range m {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// PrintHuman writes a readable report to the provided writer.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var b strings.Builder
	fmt.Fprintf(&b, "mailtriage report, last %d day(s)\n\n", rep.Days)
	for _, lc := range rep.Labels {
		fmt.Fprintf(&b, "  %-30s %5d\n", lc.Name, lc.Count)
	}
	fmt.Fprintf(&b, "\nAwaiting a human: %d\n", rep.Awaiting)
	if len(rep.Senders) > 0 {
		b.WriteString("\nTop senders awaiting a human:\n")
		for _, st := range rep.Senders {
			fmt.Fprintf(&b, "  %-30s %4d %s\n", st.Domain, st.Count, truncate(st.PreviewSubject, subjectLimit))
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
