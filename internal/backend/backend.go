// Package backend drives text generation through Genkit's Ollama plugin.
//
// The rest of the gateway treats the inference engine as an opaque streaming
// text generator behind the [Generator] interface: given a model identifier
// and an ordered list of turns, produce incremental text fragments until the
// model decides it is done or the backend fails.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/ollama"

	"chatgate/internal/session"
)

// providerPrefix qualifies model names for Genkit's model lookup.
const providerPrefix = "ollama/"

// StreamCallback receives one text fragment as soon as the backend produces
// it. Returning an error aborts the generation.
type StreamCallback func(ctx context.Context, text string) error

// Generator produces a streamed completion for an ordered list of turns.
// Implementations make exactly one backend call per invocation and never
// retry; retry policy belongs to the caller.
type Generator interface {
	Generate(ctx context.Context, model string, turns []session.Turn, cb StreamCallback) (string, error)
}

// Ollama is the production Generator backed by a local Ollama server.
type Ollama struct {
	g      *genkit.Genkit
	logger *slog.Logger
}

// NewOllama initializes Genkit with the Ollama plugin and registers each of
// the given chat models. Ollama has no model auto-discovery, so every model
// the registry can resolve must be declared here.
func NewOllama(ctx context.Context, host string, models []string, logger *slog.Logger) (*Ollama, error) {
	if host == "" {
		return nil, errors.New("ollama host is required")
	}
	if len(models) == 0 {
		return nil, errors.New("at least one model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	plugin := &ollama.Ollama{ServerAddress: host}
	g := genkit.Init(ctx, genkit.WithPlugins(plugin))
	if g == nil {
		return nil, errors.New("initializing genkit with ollama plugin")
	}

	for _, name := range models {
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: name,
			Type: "chat",
		}, nil)
	}

	logger.Info("initialized ollama backend", "host", host, "models", models)
	return &Ollama{g: g, logger: logger}, nil
}

// Generate runs one streaming completion. Each chunk's text is forwarded to
// cb in arrival order before the final response is returned.
func (o *Ollama) Generate(ctx context.Context, model string, turns []session.Turn, cb StreamCallback) (string, error) {
	messages, err := toMessages(turns)
	if err != nil {
		return "", err
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(providerPrefix + model),
		ai.WithMessages(messages...),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return cb(ctx, text)
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, o.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", model, err)
	}

	return resp.Text(), nil
}

// toMessages converts gateway turns to Genkit messages.
func toMessages(turns []session.Turn) ([]*ai.Message, error) {
	messages := make([]*ai.Message, 0, len(turns))
	for i, t := range turns {
		role, err := toRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		messages = append(messages, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(t.Content)},
		})
	}
	return messages, nil
}

func toRole(role string) (ai.Role, error) {
	switch role {
	case session.RoleUser:
		return ai.RoleUser, nil
	case session.RoleAssistant:
		return ai.RoleModel, nil
	case session.RoleSystem:
		return ai.RoleSystem, nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}
