// Package session provides durable persistence of conversation sessions.
//
// A session is an ordered list of role-tagged turns plus metadata (id, title,
// model, timestamp). The [Store] keeps one JSON record per session under a
// directory it owns exclusively; every read returns a fresh copy, so callers
// never alias stored state.
//
// # Concurrency
//
// Store is safe for concurrent use. Individual writes are atomic (temp file +
// rename); concurrent operations on the same id are last-operation-wins with
// no cross-operation isolation. A directory-level lock via
// [github.com/gofrs/flock] keeps a second gateway process out of the store.
package session

import (
	"errors"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound indicates no record exists for the requested id.
	ErrNotFound = errors.New("session not found")

	// ErrCorruptRecord indicates a record exists but cannot be parsed.
	// Deliberately distinct from ErrNotFound: the data is there, it is
	// just unreadable.
	ErrCorruptRecord = errors.New("corrupt session record")

	// ErrInvalidID indicates a caller-supplied id that is not a UUID.
	ErrInvalidID = errors.New("invalid session id")
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a persisted conversation.
// The JSON shape is the on-disk record format.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"timestamp"`
	Turns     []Turn    `json:"messages"`
}

// Summary is the listing view of a session: metadata without turns.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"timestamp"`
	Model     string    `json:"model"`
}

// TitleMaxRunes is the truncation point for derived titles.
const TitleMaxRunes = 50

// placeholderTitle is used when a conversation has no user turn to derive from.
const placeholderTitle = "Untitled Chat"

// DeriveTitle builds a session title from the first user turn. Content at or
// over the truncation point is cut to TitleMaxRunes runes with an ellipsis
// marker appended. Conversations without a user turn get a placeholder, so a
// saved session always has a non-empty title.
func DeriveTitle(turns []Turn) string {
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		runes := []rune(t.Content)
		if len(runes) >= TitleMaxRunes {
			return string(runes[:TitleMaxRunes]) + "..."
		}
		if t.Content == "" {
			break
		}
		return t.Content
	}
	return placeholderTitle
}
