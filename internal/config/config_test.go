package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/credential"
	"github.com/joshsymonds/mailtriage/internal/labels"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DEEPSEEK_API_KEY",
		"GMAIL_TOKEN_JSON",
		"MAILTRIAGE_COMPLETION_API_KEY",
		"MAILTRIAGE_GMAIL_TOKEN_JSON",
		"MAILTRIAGE_TRIAGE_MAX_MESSAGES",
		"MAILTRIAGE_COMPLETION_PROVIDER",
	} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Completion.Provider != ProviderOpenAI || cfg.Completion.Model != classify.DefaultOpenAIModel {
		t.Fatalf("unexpected completion defaults: %+v", cfg.Completion)
	}
	if cfg.Completion.BaseURL != classify.DefaultOpenAIBaseURL || cfg.Completion.MaxTokens != classify.DefaultMaxTokens {
		t.Fatalf("unexpected completion defaults: %+v", cfg.Completion)
	}
	wantTriage := TriageConfig{MaxMessages: 10, Delay: time.Second, StaleAfter: 24 * time.Hour}
	if diff := cmp.Diff(wantTriage, cfg.Triage); diff != "" {
		t.Fatalf("triage defaults mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(labels.DefaultNames(), cfg.Labels.Names()); diff != "" {
		t.Fatalf("label defaults mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
completion:
  provider: Gemini
  max_tokens: 500
triage:
  max_messages: 4
  delay: 3s
  stale_after: 12h
  dry_run: true
labels:
  needs_human_attention: "Escalated"
log:
  level: debug
`)
	t.Setenv("DEEPSEEK_API_KEY", "sk-env")
	t.Setenv("GMAIL_TOKEN_JSON", `{"type":"authorized_user"}`)
	t.Setenv("MAILTRIAGE_TRIAGE_MAX_MESSAGES", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Completion.Provider != ProviderGemini || cfg.Completion.Model != classify.DefaultGeminiModel {
		t.Fatalf("provider not applied: %+v", cfg.Completion)
	}
	if cfg.Completion.APIKey != "sk-env" || cfg.Gmail.TokenJSON == "" {
		t.Fatalf("env secrets not applied: key=%q token=%q", cfg.Completion.APIKey, cfg.Gmail.TokenJSON)
	}
	want := TriageConfig{MaxMessages: 7, Delay: 3 * time.Second, StaleAfter: 12 * time.Hour, DryRun: true}
	if diff := cmp.Diff(want, cfg.Triage); diff != "" {
		t.Fatalf("triage mismatch (-want +got):\n%s", diff)
	}
	if cfg.Labels.NeedsHumanAttention != "Escalated" || cfg.Labels.BotRead != labels.BotRead {
		t.Fatalf("labels mismatch: %+v", cfg.Labels)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "provider", mutate: func(c *Config) { c.Completion.Provider = "claude" }, want: "completion.provider"},
		{name: "max tokens", mutate: func(c *Config) { c.Completion.MaxTokens = 0 }, want: "max_tokens"},
		{name: "max messages", mutate: func(c *Config) { c.Triage.MaxMessages = 0 }, want: "max_messages"},
		{name: "delay", mutate: func(c *Config) { c.Triage.Delay = -time.Second }, want: "delay"},
		{name: "stale", mutate: func(c *Config) { c.Triage.StaleAfter = 0 }, want: "stale_after"},
		{name: "label", mutate: func(c *Config) { c.Labels.BotRead = " " }, want: "labels.bot_read"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveSecrets(t *testing.T) {
	keyring := map[string]string{
		credential.CompletionAPIKey: "sk-ring",
		credential.GmailTokenJSON:   `{"refresh_token":"r"}`,
	}
	lookup := func(key string) (string, error) {
		if v, ok := keyring[key]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	}
	empty := func(string) (string, error) { return "", errors.New("not found") }

	t.Run("keyring fallback", func(t *testing.T) {
		cfg := &Config{}
		if err := cfg.ResolveSecrets(lookup, true); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if cfg.Completion.APIKey != "sk-ring" || cfg.Gmail.TokenJSON == "" {
			t.Fatalf("secrets not filled: %+v", cfg)
		}
	})
	t.Run("configured values win", func(t *testing.T) {
		cfg := &Config{Completion: CompletionConfig{APIKey: "sk-cfg"}, Gmail: GmailConfig{CredentialsFile: "c.json", TokenFile: "t.json"}}
		if err := cfg.ResolveSecrets(lookup, true); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if cfg.Completion.APIKey != "sk-cfg" || cfg.Gmail.TokenJSON != "" {
			t.Fatalf("configured secrets overridden: %+v", cfg)
		}
	})
	t.Run("missing api key", func(t *testing.T) {
		cfg := &Config{Gmail: GmailConfig{TokenJSON: "{}"}}
		if err := cfg.ResolveSecrets(empty, true); !errors.Is(err, ErrMissingCredential) {
			t.Fatalf("expected ErrMissingCredential, got %v", err)
		}
	})
	t.Run("api key not needed", func(t *testing.T) {
		cfg := &Config{Gmail: GmailConfig{TokenJSON: "{}"}}
		if err := cfg.ResolveSecrets(empty, false); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	})
	t.Run("missing gmail token", func(t *testing.T) {
		cfg := &Config{Completion: CompletionConfig{APIKey: "k"}, Gmail: GmailConfig{TokenFile: "t.json"}}
		err := cfg.ResolveSecrets(empty, true)
		if !errors.Is(err, ErrMissingCredential) || !strings.Contains(err.Error(), "gmail token") {
			t.Fatalf("expected missing gmail token, got %v", err)
		}
	})
}
