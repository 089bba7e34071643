package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Completer sends one system instruction and one user message to a
// completion service and returns the completion text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// breakerTrips is the number of consecutive completion failures after which
// the rest of a run skips the service.
const breakerTrips = 3

// Classifier turns extracted email text into a Decision. It never fails:
// every problem becomes a forward-to-human decision.
type Classifier struct {
	Completer Completer
	System    string
	Log       *slog.Logger

	breaker *gobreaker.CircuitBreaker
}

// NewClassifier wires a completer behind a circuit breaker.
func NewClassifier(completer Completer, system string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if system == "" {
		system = defaultPrompt
	}
	c := &Classifier{Completer: completer, System: system, Log: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			// a canceled run says nothing about the service
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Classify asks the completion service about content. There are no retries.
func (c *Classifier) Classify(ctx context.Context, content string) Decision {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.Completer.Complete(ctx, c.System, UserMessage(content))
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Forward("completion service unavailable: " + err.Error())
	case err != nil:
		c.Log.WarnContext(ctx, "completion failed", "error", err)
		return Forward(fmt.Sprintf("completion failed: %v", err))
	}
	text, _ := out.(string)
	if strings.TrimSpace(text) == "" {
		return Forward("completion service returned an empty reply")
	}
	d := Parse(text)
	c.Log.DebugContext(ctx, "classified", "decision", d.Kind.String(), "reason", d.Reason)
	return d
}
