// internal/runtime/auth.go
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

// ErrAuth marks credential failures that must abort a run before any
// message is touched.
var ErrAuth = errors.New("gmail authentication failed")

// Credentials names where the Gmail OAuth material lives. TokenJSON takes
// precedence; otherwise CredentialsFile (OAuth client) and TokenFile (saved
// token) are read from disk.
type Credentials struct {
	TokenJSON       string
	CredentialsFile string
	TokenFile       string
}

// authorizedUser is the JSON shape exported by Google's client libraries for
// an authorized user, as stored in GMAIL_TOKEN_JSON.
type authorizedUser struct {
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Expiry       string `json:"expiry"`
}

// NewGmailClient validates the credentials and returns a Gmail-backed client.
func NewGmailClient(ctx context.Context, creds Credentials, logger *slog.Logger) (gc.Client, error) {
	ts, err := TokenSource(ctx, creds)
	if err != nil {
		return nil, err
	}
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: obtain token: %v", ErrAuth, err)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc, logger), nil
}

// TokenSource builds a refreshing token source with the gmail.modify scope,
// which covers reading, labelling and sending.
func TokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	if raw := strings.TrimSpace(creds.TokenJSON); raw != "" {
		return tokenSourceFromAuthorizedUser(ctx, []byte(raw))
	}
	if creds.CredentialsFile == "" || creds.TokenFile == "" {
		return nil, fmt.Errorf("%w: no token json and no credentials/token files configured", ErrAuth)
	}
	clientJSON, err := os.ReadFile(creds.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials %s: %v", ErrAuth, creds.CredentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(clientJSON, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", ErrAuth, err)
	}
	tokJSON, err := os.ReadFile(creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read token %s: %v", ErrAuth, creds.TokenFile, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokJSON, &tok); err != nil {
		return nil, fmt.Errorf("%w: parse token: %v", ErrAuth, err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

func tokenSourceFromAuthorizedUser(ctx context.Context, raw []byte) (oauth2.TokenSource, error) {
	var au authorizedUser
	if err := json.Unmarshal(raw, &au); err != nil {
		return nil, fmt.Errorf("%w: parse token json: %v", ErrAuth, err)
	}
	if au.RefreshToken == "" || au.ClientID == "" || au.ClientSecret == "" {
		return nil, fmt.Errorf("%w: token json needs refresh_token, client_id and client_secret", ErrAuth)
	}
	endpoint := google.Endpoint
	if au.TokenURI != "" {
		endpoint.TokenURL = au.TokenURI
	}
	cfg := &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}
	tok := &oauth2.Token{RefreshToken: au.RefreshToken}
	access := au.Token
	if access == "" {
		access = au.AccessToken
	}
	// without a known expiry the access token is dropped so the first call
	// refreshes instead of trusting it forever
	if exp, err := time.Parse(time.RFC3339Nano, au.Expiry); err == nil && access != "" {
		tok.AccessToken = access
		tok.Expiry = exp
	}
	return cfg.TokenSource(ctx, tok), nil
}

// NewLogger returns the text logger used by every command.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func DefaultLogger() *slog.Logger {
	return NewLogger("info")
}
