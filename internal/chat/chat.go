// Package chat orchestrates one conversation turn: model resolution, history
// bounding, streamed generation, and persistence of the completed turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatgate/internal/registry"
	"chatgate/internal/relay"
	"chatgate/internal/session"
)

// DefaultHistoryWindow is how many trailing turns are sent to the backend
// when no window is configured. The full conversation is always persisted;
// the window only bounds backend context.
const DefaultHistoryWindow = 20

// ErrClientGone indicates the outward consumer stopped accepting fragments
// before the stream completed. The turn is not persisted.
var ErrClientGone = errors.New("client gone before stream end")

// Target identifies which session a turn belongs to. Exactly two
// implementations exist: NewSession and ExistingSession. The explicit variant
// keeps create-vs-update visible at the call site instead of hiding it in a
// nullable id.
type Target interface {
	sessionID() string
}

// NewSession targets a conversation that has never been persisted.
// A fresh id is generated when the turn completes.
type NewSession struct{}

func (NewSession) sessionID() string { return "" }

// ExistingSession targets an already-persisted conversation by id.
type ExistingSession struct {
	ID string
}

func (e ExistingSession) sessionID() string { return e.ID }

// TurnRequest is one inbound conversation turn.
type TurnRequest struct {
	ModelKey string
	Target   Target
	// Turns is the full conversation so far, ending with the user's
	// latest message.
	Turns []session.Turn
}

// TurnResult reports the persisted outcome of a completed turn.
type TurnResult struct {
	SessionID string
	Title     string
	Response  string
}

// EmitFunc forwards one fragment to the outward consumer. Blocking here is
// the backpressure path; returning an error abandons the turn.
type EmitFunc func(ctx context.Context, fragment string) error

// Config assembles an Orchestrator.
type Config struct {
	Registry      *registry.Registry
	Relay         *relay.Relay
	Store         *session.Store
	Logger        *slog.Logger
	HistoryWindow int // 0 = DefaultHistoryWindow
}

// Orchestrator ties the registry, relay, and store together. It is stateless
// across requests; concurrent turns only share the store.
type Orchestrator struct {
	registry *registry.Registry
	relay    *relay.Relay
	store    *session.Store
	logger   *slog.Logger
	window   int
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Relay == nil {
		return nil, errors.New("relay is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}

	return &Orchestrator{
		registry: cfg.Registry,
		relay:    cfg.Relay,
		store:    cfg.Store,
		logger:   logger,
		window:   window,
	}, nil
}

// HandleTurn streams one generated response through emit and, after a clean
// stream end, persists the full conversation plus the new assistant turn.
//
// The backend sees at most the trailing history window of turns; persistence
// always covers the whole conversation. If the consumer disappears mid-stream
// (ctx canceled or emit failing), the backend call is stopped and nothing is
// persisted — the caller's transcript is the only record of the lost turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest, emit EmitFunc) (*TurnResult, error) {
	if req.Target == nil {
		req.Target = NewSession{}
	}

	model := o.registry.Resolve(req.ModelKey)
	bounded := boundTurns(req.Turns, o.window)

	o.logger.Debug("handling turn",
		"model", model,
		"turns", len(req.Turns),
		"bounded", len(bounded),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var assistant strings.Builder
	for fragment := range o.relay.Stream(ctx, model, bounded) {
		if err := emit(ctx, fragment); err != nil {
			// cancel (deferred above) unblocks the producer; the relay
			// closes its channel once the backend call stops.
			return nil, fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		assistant.WriteString(fragment)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	turns := append(append([]session.Turn{}, req.Turns...), session.Turn{
		Role:    session.RoleAssistant,
		Content: assistant.String(),
	})

	id, title, err := o.store.Save(ctx, session.Session{
		ID:    req.Target.sessionID(),
		Model: req.ModelKey,
		Turns: turns,
	})
	if err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	o.logger.Info("turn persisted", "session", id, "turns", len(turns))
	return &TurnResult{
		SessionID: id,
		Title:     title,
		Response:  assistant.String(),
	}, nil
}

// boundTurns retains the most recent window turns, oldest discarded first.
func boundTurns(turns []session.Turn, window int) []session.Turn {
	if len(turns) <= window {
		return turns
	}
	return turns[len(turns)-window:]
}
