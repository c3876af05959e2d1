package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// MaxPromptBytes bounds a single prompt.
const MaxPromptBytes = 32 * 1024

// ValidatePrompt validates prompt text. Emptiness is left to the service so it
// is reported with the operation's own error.
func ValidatePrompt(prompt string) error {
	if len(prompt) > MaxPromptBytes {
		return errors.New("prompt exceeds maximum length")
	}
	if !utf8.ValidString(prompt) {
		return errors.New("prompt must be valid UTF-8")
	}
	return nil
}

// ValidThreadID reports whether id has the shape of a thread or message id.
func ValidThreadID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
