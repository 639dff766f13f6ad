package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/log"
	"chatgate/internal/registry"
	"chatgate/internal/relay"
	"chatgate/internal/session"
	"chatgate/internal/testutil"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New([]registry.Model{
		{Key: "general", Name: "qwen2.5:3b", Label: "💬 General"},
		{Key: "code", Name: "qwen2.5-coder:3b", Label: "💻 Code"},
	})
	require.NoError(t, err)
	return r
}

func testOrchestrator(t *testing.T, gen *testutil.MockGenerator) (*Orchestrator, *session.Store) {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "chats"), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	o, err := New(Config{
		Registry: testRegistry(t),
		Relay:    relay.New(gen, log.NewNop()),
		Store:    store,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)
	return o, store
}

// discard is an EmitFunc that accepts everything.
func discard(context.Context, string) error { return nil }

func userTurn(content string) session.Turn {
	return session.Turn{Role: session.RoleUser, Content: content}
}

func TestHandleTurnStreamsAndPersists(t *testing.T) {
	gen := testutil.NewMockGenerator("Hel", "lo", " world")
	o, store := testOrchestrator(t, gen)

	var emitted []string
	res, err := o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("greet me")},
	}, func(_ context.Context, f string) error {
		emitted = append(emitted, f)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", " world"}, emitted)
	assert.Equal(t, "Hello world", res.Response)
	assert.Equal(t, "greet me", res.Title)

	saved, err := store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.Len(t, saved.Turns, 2)
	assert.Equal(t, session.RoleAssistant, saved.Turns[1].Role)
	assert.Equal(t, "Hello world", saved.Turns[1].Content)
}

func TestHandleTurnBoundsBackendContext(t *testing.T) {
	gen := testutil.NewMockGenerator("ok")
	o, store := testOrchestrator(t, gen)

	turns := make([]session.Turn, 0, 25)
	for i := range 25 {
		turns = append(turns, userTurn(fmt.Sprintf("turn %d", i)))
	}

	res, err := o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    turns,
	}, discard)
	require.NoError(t, err)

	call := gen.LastCall()
	require.NotNil(t, call)
	require.Len(t, call.Turns, 20, "backend must see only the trailing window")
	assert.Equal(t, "turn 5", call.Turns[0].Content)
	assert.Equal(t, "turn 24", call.Turns[19].Content)

	saved, err := store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 26, "persistence must keep the full history")
}

func TestHandleTurnResolvesModelKey(t *testing.T) {
	gen := testutil.NewMockGenerator("ok")
	o, _ := testOrchestrator(t, gen)

	_, err := o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "code",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("q")},
	}, discard)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder:3b", gen.LastCall().Model)

	_, err = o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "nonsense",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("q")},
	}, discard)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:3b", gen.LastCall().Model, "unknown key falls back to default")
}

func TestHandleTurnExistingSessionKeepsID(t *testing.T) {
	gen := testutil.NewMockGenerator("first")
	o, store := testOrchestrator(t, gen)
	ctx := context.Background()

	res1, err := o.HandleTurn(ctx, TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("start")},
	}, discard)
	require.NoError(t, err)

	followup := append([]session.Turn{}, userTurn("start"),
		session.Turn{Role: session.RoleAssistant, Content: "first"},
		userTurn("continue"))

	res2, err := o.HandleTurn(ctx, TurnRequest{
		ModelKey: "general",
		Target:   ExistingSession{ID: res1.SessionID},
		Turns:    followup,
	}, discard)
	require.NoError(t, err)
	assert.Equal(t, res1.SessionID, res2.SessionID)

	saved, err := store.Get(ctx, res1.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 4)
}

func TestHandleTurnPersistsPartialOnBackendFailure(t *testing.T) {
	gen := testutil.NewMockGenerator("Par", "tial").FailWith(errors.New("backend blew up"))
	o, store := testOrchestrator(t, gen)

	res, err := o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("q")},
	}, discard)
	require.NoError(t, err, "mid-stream backend failure is handled in-band")

	assert.Contains(t, res.Response, "Partial")
	assert.Contains(t, res.Response, "Error:")

	saved, err := store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Contains(t, saved.Turns[len(saved.Turns)-1].Content, "Partial")
}

func TestHandleTurnClientGoneSkipsPersistence(t *testing.T) {
	gen := testutil.NewMockGenerator("a", "b", "c")
	o, store := testOrchestrator(t, gen)

	emits := 0
	_, err := o.HandleTurn(context.Background(), TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("q")},
	}, func(_ context.Context, _ string) error {
		emits++
		if emits > 1 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.ErrorIs(t, err, ErrClientGone)

	summaries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries, "an aborted turn must not be persisted")
}

func TestHandleTurnCanceledContextSkipsPersistence(t *testing.T) {
	gen := testutil.NewMockGenerator("a", "b")
	o, store := testOrchestrator(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := o.HandleTurn(ctx, TurnRequest{
		ModelKey: "general",
		Target:   NewSession{},
		Turns:    []session.Turn{userTurn("q")},
	}, func(_ context.Context, _ string) error {
		cancel()
		return nil
	})
	require.Error(t, err)

	summaries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestBoundTurns(t *testing.T) {
	turns := make([]session.Turn, 5)
	for i := range turns {
		turns[i] = userTurn(fmt.Sprintf("%d", i))
	}

	assert.Len(t, boundTurns(turns, 20), 5, "short history passes through")
	bounded := boundTurns(turns, 3)
	require.Len(t, bounded, 3)
	assert.Equal(t, "2", bounded[0].Content)
	assert.Equal(t, "4", bounded[2].Content)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
