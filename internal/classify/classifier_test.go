package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeCompleter struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	_ = ctx
	f.calls++
	f.system = system
	f.user = user
	return f.reply, f.err
}

func TestClassifyAnswer(t *testing.T) {
	fake := &fakeCompleter{reply: "<Type>: answer\n<Response>: We can do it.\n<Reason>: facade"}
	c := NewClassifier(fake, "SYSTEM", slogDiscard())

	d := c.Classify(context.Background(), "Can you insulate my facade?")
	if d.Kind != KindAnswer || d.Response != "We can do it." {
		t.Fatalf("unexpected decision %+v", d)
	}
	if fake.system != "SYSTEM" {
		t.Fatalf("system prompt not passed through: %q", fake.system)
	}
	if fake.user != "Generate response for: Can you insulate my facade?" {
		t.Fatalf("unexpected user message %q", fake.user)
	}
}

func TestClassifyDefaultsPrompt(t *testing.T) {
	fake := &fakeCompleter{reply: "<Type>: ignore\n<Reason>: x"}
	c := NewClassifier(fake, "", slogDiscard())
	c.Classify(context.Background(), "")
	if !strings.Contains(fake.system, "<Response email>") {
		t.Fatalf("expected the built-in prompt to describe the output format")
	}
}

func TestClassifyTransportFailureForwards(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("connection refused")}
	c := NewClassifier(fake, "S", slogDiscard())
	d := c.Classify(context.Background(), "hello")
	if d.Kind != KindForwardToHuman {
		t.Fatalf("expected forward, got %s", d.Kind)
	}
	if !strings.Contains(d.Reason, "connection refused") {
		t.Fatalf("reason should describe failure: %q", d.Reason)
	}
	if fake.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", fake.calls)
	}
}

func TestClassifyEmptyReplyForwards(t *testing.T) {
	c := NewClassifier(&fakeCompleter{reply: "  \n"}, "S", slogDiscard())
	if d := c.Classify(context.Background(), "x"); d.Kind != KindForwardToHuman {
		t.Fatalf("expected forward, got %s", d.Kind)
	}
}

func TestClassifyBreakerOpens(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("503")}
	c := NewClassifier(fake, "S", slogDiscard())
	for i := 0; i < breakerTrips; i++ {
		c.Classify(context.Background(), "x")
	}
	d := c.Classify(context.Background(), "x")
	if fake.calls != breakerTrips {
		t.Fatalf("expected breaker to stop calls after %d failures, got %d calls", breakerTrips, fake.calls)
	}
	if d.Kind != KindForwardToHuman || !strings.Contains(d.Reason, "unavailable") {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestOpenAICompleterRoundTrip(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"m",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"<Type>: ignore"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	comp, err := NewOpenAICompleter("secret", srv.URL+"/v1", "test-model", 50)
	if err != nil {
		t.Fatalf("new completer: %v", err)
	}
	out, err := comp.Complete(context.Background(), "SYS", "USER")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "<Type>: ignore" {
		t.Fatalf("unexpected completion %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 50 {
		t.Fatalf("unexpected request model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "USER" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAICompleterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	comp, err := NewOpenAICompleter("k", srv.URL, "", 0)
	if err != nil {
		t.Fatalf("new completer: %v", err)
	}
	if _, err := comp.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCompletersRequireKey(t *testing.T) {
	if _, err := NewOpenAICompleter("", "", "", 0); err == nil {
		t.Fatalf("expected error for missing openai key")
	}
	if _, err := NewGeminiCompleter(context.Background(), "", "", 0); err == nil {
		t.Fatalf("expected error for missing gemini key")
	}
}

func TestLoadPrompt(t *testing.T) {
	p, err := LoadPrompt("")
	if err != nil || p != DefaultPrompt() {
		t.Fatalf("expected default prompt, err=%v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("custom"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if p, err := LoadPrompt(path); err != nil || p != "custom" {
		t.Fatalf("got %q, %v", p, err)
	}
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPrompt(empty); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
