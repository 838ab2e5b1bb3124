// Package memory stores per-session conversation logs.
//
// A log is append-only: messages are added at the end and never edited.
// Stores may drop the oldest messages once a session grows past its
// retention limit. The assistant reads a window of recent messages and
// passes it to the planner as plain context.
package memory

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// DefaultMaxMessages is the per-session retention limit.
const DefaultMaxMessages = 200

// Log is an append-only conversation log keyed by session.
type Log interface {
	// Append adds a message to the end of the session's log.
	Append(ctx context.Context, sessionID string, msg *toolplan.Message) error

	// Recent returns up to limit of the newest messages, oldest first.
	// A limit of 0 or less returns the whole retained log.
	Recent(ctx context.Context, sessionID string, limit int) ([]toolplan.Message, error)

	// Clear removes the session's log.
	Clear(ctx context.Context, sessionID string) error
}

// Window selects the history handed to the planner: the newest Messages
// messages, further trimmed from the oldest end until their content fits
// in MaxChars.
type Window struct {
	Messages int
	MaxChars int
}

// DefaultWindow returns the window used by the assistant.
func DefaultWindow() Window {
	return Window{Messages: 10, MaxChars: 4000}
}

// Select reads the window for sessionID from log.
func (w Window) Select(ctx context.Context, log Log, sessionID string) ([]toolplan.Message, error) {
	limit := w.Messages
	if limit <= 0 {
		limit = 10
	}
	msgs, err := log.Recent(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history for session %s: %w", sessionID, err)
	}
	return w.Trim(msgs), nil
}

// Trim drops the oldest messages until the total content fits MaxChars.
// The newest message is always kept.
func (w Window) Trim(msgs []toolplan.Message) []toolplan.Message {
	if w.MaxChars <= 0 || len(msgs) == 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += utf8.RuneCountInString(msgs[i].Content)
		if total > w.MaxChars && i < len(msgs)-1 {
			break
		}
		start = i
	}
	return msgs[start:]
}

func validate(sessionID string, msg *toolplan.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	return msg.Validate()
}
