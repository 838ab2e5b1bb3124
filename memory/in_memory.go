package memory

import (
	"context"
	"sync"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// InMemoryLog keeps conversation logs in process memory. Logs are lost on
// restart.
type InMemoryLog struct {
	maxMessages int

	mu       sync.RWMutex
	sessions map[string][]toolplan.Message
}

// NewInMemoryLog creates a log that retains at most maxMessages per session
// (DefaultMaxMessages when maxMessages <= 0).
func NewInMemoryLog(maxMessages int) *InMemoryLog {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &InMemoryLog{
		maxMessages: maxMessages,
		sessions:    make(map[string][]toolplan.Message),
	}
}

// Append adds a copy of msg to the session's log.
func (l *InMemoryLog) Append(ctx context.Context, sessionID string, msg *toolplan.Message) error {
	if err := validate(sessionID, msg); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := append(l.sessions[sessionID], copyMessage(msg))
	if over := len(msgs) - l.maxMessages; over > 0 {
		msgs = append([]toolplan.Message(nil), msgs[over:]...)
	}
	l.sessions[sessionID] = msgs
	return nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (l *InMemoryLog) Recent(ctx context.Context, sessionID string, limit int) ([]toolplan.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	msgs := l.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]toolplan.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes the session's log.
func (l *InMemoryLog) Clear(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
	return nil
}

// Sessions returns the number of sessions with a log.
func (l *InMemoryLog) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

func copyMessage(msg *toolplan.Message) toolplan.Message {
	out := *msg
	if msg.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(msg.Metadata))
		for k, v := range msg.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
