// Package testutil provides deterministic test doubles for the generation
// boundary.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatgate/internal/backend"
	"chatgate/internal/session"
)

// GenerateCall records one invocation of the mock generator.
type GenerateCall struct {
	Model string
	Turns []session.Turn
}

// MockGenerator is a scripted backend.Generator. It emits the configured
// fragments in order, optionally sleeping before each one (delay injection
// for ordering tests), then fails with Err if set.
//
// Thread-safe for concurrent use.
type MockGenerator struct {
	mu        sync.Mutex
	fragments []string
	err       error
	delay     time.Duration
	calls     []GenerateCall
}

// NewMockGenerator creates a mock that streams the given fragments and
// completes successfully.
func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{fragments: fragments}
}

// FailWith makes the mock return err after streaming its fragments.
func (m *MockGenerator) FailWith(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// DelayEach makes the mock sleep for d before producing each fragment.
func (m *MockGenerator) DelayEach(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Generate implements backend.Generator.
func (m *MockGenerator) Generate(ctx context.Context, model string, turns []session.Turn, cb backend.StreamCallback) (string, error) {
	m.mu.Lock()
	fragments := m.fragments
	failure := m.err
	delay := m.delay
	turnsCopy := make([]session.Turn, len(turns))
	copy(turnsCopy, turns)
	m.calls = append(m.calls, GenerateCall{Model: model, Turns: turnsCopy})
	m.mu.Unlock()

	var sb strings.Builder
	for _, f := range fragments {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if cb != nil {
			if err := cb(ctx, f); err != nil {
				return "", err
			}
		}
		sb.WriteString(f)
	}

	if failure != nil {
		return "", failure
	}
	return sb.String(), nil
}

// Calls returns a copy of all recorded calls.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]GenerateCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// LastCall returns the most recent call, or nil when none were made.
func (m *MockGenerator) LastCall() *GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}
