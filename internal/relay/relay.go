// Package relay converts a backend generation call into a lazy stream of
// text fragments.
//
// The stream is a cooperative producer/consumer channel: the producer
// goroutine drives the backend call and the consumer ranges over the channel.
// The channel is unbuffered, so a slow consumer suspends the producer inside
// the backend's streaming callback — backpressure reaches the backend instead
// of accumulating in memory. Closing happens exactly once, when the backend
// call returns.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"chatgate/internal/backend"
	"chatgate/internal/session"
)

// errorPrefix marks the in-band fragment appended when the backend fails
// mid-stream. Delivered output stays intact; the failure is visible in the
// response text rather than as a transport fault.
const errorPrefix = "\n\nError: "

// Relay streams backend completions as fragment sequences.
type Relay struct {
	backend backend.Generator
	logger  *slog.Logger
}

// New creates a Relay over the given generator.
func New(gen backend.Generator, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{backend: gen, logger: logger}
}

// Stream issues one backend call and returns a channel of fragments in
// arrival order. The channel is closed when generation completes, fails, or
// ctx is canceled. Each call is a fresh backend request; the sequence is
// consumed exactly once.
//
// A backend failure — before the first fragment or mid-stream — ends the
// sequence with one final error fragment instead of a hard fault. Consumer
// cancellation (ctx done) stops the backend call promptly and no error
// fragment is emitted.
func (r *Relay) Stream(ctx context.Context, model string, turns []session.Turn) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		_, err := r.backend.Generate(ctx, model, turns, func(ctx context.Context, text string) error {
			select {
			case out <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			// Consumer is gone; nobody is left to read an error fragment.
			r.logger.Debug("stream canceled", "model", model, "error", err)
			return
		}

		r.logger.Warn("backend stream failed", "model", model, "error", err)
		select {
		case out <- fmt.Sprintf("%s%v", errorPrefix, err):
		case <-ctx.Done():
		}
	}()

	return out
}
