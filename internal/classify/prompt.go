package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompt.txt
var defaultPrompt string

// DefaultPrompt returns the built-in system instruction.
func DefaultPrompt() string { return defaultPrompt }

// LoadPrompt reads a system instruction from path, or returns the built-in
// one when path is empty.
func LoadPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultPrompt, nil
	}
	b, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("prompt %s is empty", path)
	}
	return string(b), nil
}

// UserMessage wraps extracted email content for the completion request.
func UserMessage(content string) string {
	return "Generate response for: " + content
}
