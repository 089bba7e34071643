// Package triage decides, message by message, whether the bot answers an
// email, hands it to a person, or dismisses it.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/extract"
	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/labels"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/reply"
)

// DefaultMaxMessages bounds one run to stay inside provider quotas.
const DefaultMaxMessages = 10

// Classifier is the part of classify.Classifier the service depends on.
type Classifier interface {
	Classify(ctx context.Context, content string) classify.Decision
}

// Spec controls a single run.
type Spec struct {
	MaxMessages int
	StaleAfter  time.Duration
	DryRun      bool
	From        string
}

// Summary counts what a run did.
type Summary struct {
	Candidates       int
	HumanHandled     int
	AlreadyProcessed int
	Stale            int
	FollowUps        int
	Answered         int
	Escalated        int
	Dismissed        int
	SendFailed       int
	Errors           int
}

// Service polls for candidates and walks each through the automaton.
type Service struct {
	Client     gmail.Client
	Labels     *labels.Store
	Classifier Classifier
	Composer   *reply.Composer
	Extractor  extract.Extractor
	Limiter    rate.Limiter
	Logger     *slog.Logger
	Clock      func() time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(
	client gmail.Client,
	store *labels.Store,
	classifier Classifier,
	composer *reply.Composer,
	limiter rate.Limiter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:     client,
		Labels:     store,
		Classifier: classifier,
		Composer:   composer,
		Extractor:  extract.Extractor{Log: logger},
		Limiter:    limiter,
		Logger:     logger,
		Clock:      time.Now,
	}
}

// CandidateQuery selects unread inbox mail the bot has not taken yet.
func CandidateQuery(botRead string) gmail.Query {
	return gmail.Query{Raw: fmt.Sprintf(`in:inbox is:unread -label:"%s"`, botRead)}
}

// Run processes at most spec.MaxMessages candidates, strictly one after the
// other. Errors on a single message are logged and skip that message; only
// setup failures and cancellation end the run early.
func (s *Service) Run(ctx context.Context, spec Spec) (Summary, error) {
	var sum Summary
	logger := s.Logger.With("run_id", uuid.NewString())
	if spec.MaxMessages <= 0 {
		spec.MaxMessages = DefaultMaxMessages
	}
	if spec.StaleAfter <= 0 {
		spec.StaleAfter = DefaultStaleAfter
	}

	if _, err := s.Labels.Ensure(ctx); err != nil {
		return sum, fmt.Errorf("ensure labels: %w", err)
	}

	page, err := s.Client.List(ctx, CandidateQuery(s.Labels.Names.BotRead), "", spec.MaxMessages)
	if err != nil {
		return sum, fmt.Errorf("list candidates: %w", err)
	}
	ids := page.IDs
	if len(ids) > spec.MaxMessages {
		ids = ids[:spec.MaxMessages]
	}
	sum.Candidates = len(ids)
	if len(ids) == 0 {
		logger.InfoContext(ctx, "no unread messages to process")
		return sum, nil
	}
	logger.InfoContext(ctx, "processing candidates", "count", len(ids), "dry_run", spec.DryRun)

	dispatcher := &Dispatcher{
		Client:   s.Client,
		Labels:   s.Labels,
		Composer: s.Composer,
		Log:      logger,
		From:     spec.From,
		DryRun:   spec.DryRun,
	}
	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			return sum, err
		}
		if err := s.process(ctx, logger.With("id", id), dispatcher, id, spec, &sum); err != nil {
			sum.Errors++
			logger.ErrorContext(ctx, "message abandoned for this run", "id", id, "error", err)
		}
	}
	logSummary(ctx, logger, sum)
	return sum, nil
}

func (s *Service) process(
	ctx context.Context,
	logger *slog.Logger,
	dispatcher *Dispatcher,
	id gmail.MessageID,
	spec Spec,
	sum *Summary,
) error {
	msg, err := s.Client.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	logger = logger.With("thread", msg.ThreadID)
	names := s.Labels.Names

	state := Assess(Facts{
		Unread:  s.Labels.HasUnread(msg),
		BotRead: s.Labels.Has(msg, names.BotRead),
		Age:     s.Clock().Sub(msg.Received),
	}, spec.StaleAfter)

	switch state {
	case StateHumanHandled:
		sum.HumanHandled++
		logger.InfoContext(ctx, "already read by a human, skipping")
		return nil
	case StateAlreadyProcessed:
		sum.AlreadyProcessed++
		logger.InfoContext(ctx, "already taken by the bot, skipping")
		return nil
	case StateStale:
		sum.Stale++
		logger.InfoContext(ctx, "too old to answer, escalating", "received", msg.Received)
		return s.enter(ctx, logger, dispatcher, msg.ID, state)
	}

	// the processed marker lands before anything else can fail
	if err := s.enter(ctx, logger, dispatcher, msg.ID, StateNewCandidate); err != nil {
		return err
	}

	size, err := s.Client.ThreadSize(ctx, msg.ThreadID)
	if err != nil {
		return fmt.Errorf("get thread: %w", err)
	}
	if Route(size) == StateFollowUp {
		sum.FollowUps++
		logger.InfoContext(ctx, "follow-up in existing thread, escalating", "thread_size", size)
		return s.enter(ctx, logger, dispatcher, msg.ID, StateFollowUp)
	}

	content := s.Extractor.PlainText(msg.Body)
	decision := s.Classifier.Classify(ctx, content)
	logger.InfoContext(ctx, "classified", "decision", decision.Kind.String(), "reason", decision.Reason)

	outcome, err := dispatcher.Dispatch(ctx, msg, decision)
	switch outcome {
	case OutcomeAnswered:
		sum.Answered++
	case OutcomeDismissed:
		sum.Dismissed++
	case OutcomeSendFailed:
		sum.SendFailed++
	default:
		sum.Escalated++
	}
	return err
}

func (s *Service) enter(ctx context.Context, logger *slog.Logger, dispatcher *Dispatcher, id gmail.MessageID, state State) error {
	m := Transition(state, s.Labels.Names)
	if err := dispatcher.apply(ctx, id, m); err != nil {
		return fmt.Errorf("enter %s: %w", state, err)
	}
	logger.DebugContext(ctx, "state entered", "state", state.String(), "add", m.Add, "remove", m.Remove)
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return ctx.Err()
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("run interrupted: %w", err)
		}
		return err
	}
	return nil
}

func logSummary(ctx context.Context, logger *slog.Logger, sum Summary) {
	logger.InfoContext(ctx, "run complete",
		slog.Int("candidates", sum.Candidates),
		slog.Int("human_handled", sum.HumanHandled),
		slog.Int("already_processed", sum.AlreadyProcessed),
		slog.Int("stale", sum.Stale),
		slog.Int("follow_ups", sum.FollowUps),
		slog.Int("answered", sum.Answered),
		slog.Int("escalated", sum.Escalated),
		slog.Int("dismissed", sum.Dismissed),
		slog.Int("send_failed", sum.SendFailed),
		slog.Int("errors", sum.Errors),
	)
}
