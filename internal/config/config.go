// Package config loads mailtriage settings from a YAML file, the
// environment, and the OS keyring.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/credential"
	"github.com/joshsymonds/mailtriage/internal/labels"
	"github.com/joshsymonds/mailtriage/internal/triage"
)

// ErrMissingCredential is returned when a required secret is not configured
// anywhere.
var ErrMissingCredential = errors.New("missing credential")

// Completion providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// CompletionConfig selects and configures the completion service.
type CompletionConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	PromptFile string `mapstructure:"prompt_file"`
}

// GmailConfig holds mailbox credentials. TokenJSON is an authorized-user
// token; CredentialsFile and TokenFile are the installed-app alternative.
type GmailConfig struct {
	TokenJSON       string `mapstructure:"token_json"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// TriageConfig bounds one run.
type TriageConfig struct {
	MaxMessages int           `mapstructure:"max_messages"`
	Delay       time.Duration `mapstructure:"delay"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	DryRun      bool          `mapstructure:"dry_run"`
	From        string        `mapstructure:"from"`
}

// LabelsConfig names the automation labels.
type LabelsConfig struct {
	BotRead             string `mapstructure:"bot_read"`
	BotAnswered         string `mapstructure:"bot_answered"`
	BotDismissed        string `mapstructure:"bot_dismissed"`
	NeedsHumanAttention string `mapstructure:"needs_human_attention"`
}

// Names converts the configuration into label names.
func (l LabelsConfig) Names() labels.Names {
	return labels.Names{
		BotRead:             l.BotRead,
		BotAnswered:         l.BotAnswered,
		BotDismissed:        l.BotDismissed,
		NeedsHumanAttention: l.NeedsHumanAttention,
	}
}

// ReplyConfig customizes outgoing replies.
type ReplyConfig struct {
	TemplateFile string `mapstructure:"template_file"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	Completion CompletionConfig `mapstructure:"completion"`
	Gmail      GmailConfig      `mapstructure:"gmail"`
	Triage     TriageConfig     `mapstructure:"triage"`
	Labels     LabelsConfig     `mapstructure:"labels"`
	Reply      ReplyConfig      `mapstructure:"reply"`
	Log        LogConfig        `mapstructure:"log"`
}

// DefaultPath returns $HOME/.config/mailtriage/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailtriage", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	names := labels.DefaultNames()
	v.SetDefault("completion.provider", ProviderOpenAI)
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", classify.DefaultOpenAIBaseURL)
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.max_tokens", classify.DefaultMaxTokens)
	v.SetDefault("completion.prompt_file", "")
	v.SetDefault("gmail.token_json", "")
	v.SetDefault("gmail.credentials_file", "")
	v.SetDefault("gmail.token_file", "")
	v.SetDefault("triage.max_messages", triage.DefaultMaxMessages)
	v.SetDefault("triage.delay", time.Second)
	v.SetDefault("triage.stale_after", triage.DefaultStaleAfter)
	v.SetDefault("triage.dry_run", false)
	v.SetDefault("triage.from", "")
	v.SetDefault("labels.bot_read", names.BotRead)
	v.SetDefault("labels.bot_answered", names.BotAnswered)
	v.SetDefault("labels.bot_dismissed", names.BotDismissed)
	v.SetDefault("labels.needs_human_attention", names.NeedsHumanAttention)
	v.SetDefault("reply.template_file", "")
	v.SetDefault("log.level", "info")
}

// Load reads configuration from path, falling back to DefaultPath when path
// is empty. A missing file is not an error. Environment variables prefixed
// MAILTRIAGE_ override the file, as do DEEPSEEK_API_KEY and GMAIL_TOKEN_JSON.
func Load(path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("MAILTRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("completion.api_key", "MAILTRIAGE_COMPLETION_API_KEY", "DEEPSEEK_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("gmail.token_json", "MAILTRIAGE_GMAIL_TOKEN_JSON", "GMAIL_TOKEN_JSON"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &pathErr) && !explicit:
		case errors.As(err, &notFound) && !explicit:
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Completion.Provider = strings.ToLower(strings.TrimSpace(cfg.Completion.Provider))
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = defaultModel(cfg.Completion.Provider)
	}
	return &cfg, nil
}

func defaultModel(provider string) string {
	if provider == ProviderGemini {
		return classify.DefaultGeminiModel
	}
	return classify.DefaultOpenAIModel
}

// Validate checks value ranges. Secrets are checked by ResolveSecrets.
func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("completion.provider %q must be %q or %q", c.Completion.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion.max_tokens must be positive, got %d", c.Completion.MaxTokens)
	}
	if c.Triage.MaxMessages <= 0 {
		return fmt.Errorf("triage.max_messages must be positive, got %d", c.Triage.MaxMessages)
	}
	if c.Triage.Delay < 0 {
		return fmt.Errorf("triage.delay must not be negative, got %s", c.Triage.Delay)
	}
	if c.Triage.StaleAfter <= 0 {
		return fmt.Errorf("triage.stale_after must be positive, got %s", c.Triage.StaleAfter)
	}
	l := c.Labels
	for key, name := range map[string]string{
		"labels.bot_read":              l.BotRead,
		"labels.bot_answered":          l.BotAnswered,
		"labels.bot_dismissed":         l.BotDismissed,
		"labels.needs_human_attention": l.NeedsHumanAttention,
	} {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	return nil
}

// Lookup fetches a secret by key, typically credential.Get.
type Lookup func(key string) (string, error)

// ResolveSecrets fills missing secrets from lookup and fails with
// ErrMissingCredential when a required one is absent everywhere. needAPIKey
// is false for commands that never call the completion service.
func (c *Config) ResolveSecrets(lookup Lookup, needAPIKey bool) error {
	if lookup == nil {
		lookup = credential.Get
	}
	if needAPIKey && strings.TrimSpace(c.Completion.APIKey) == "" {
		if v, err := lookup(credential.CompletionAPIKey); err == nil {
			c.Completion.APIKey = strings.TrimSpace(v)
		}
		if c.Completion.APIKey == "" {
			return fmt.Errorf("%w: completion API key (set DEEPSEEK_API_KEY, completion.api_key, or keyring %q)",
				ErrMissingCredential, credential.CompletionAPIKey)
		}
	}
	g := &c.Gmail
	if strings.TrimSpace(g.TokenJSON) != "" {
		return nil
	}
	if g.CredentialsFile != "" && g.TokenFile != "" {
		return nil
	}
	if v, err := lookup(credential.GmailTokenJSON); err == nil && strings.TrimSpace(v) != "" {
		g.TokenJSON = v
		return nil
	}
	return fmt.Errorf("%w: gmail token (set GMAIL_TOKEN_JSON, gmail.token_json, or gmail.credentials_file with gmail.token_file)",
		ErrMissingCredential)
}
