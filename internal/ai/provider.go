package ai

import "context"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConfig is the per-call generation tuning; the model identifier
// comes from the ModelRouter.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is the single LLM surface the pipeline depends on. One
// implementation wraps a hosted OpenAI-compatible API, another wraps a
// local Ollama instance; the offline/online decision is made once at
// startup when the concrete provider is constructed.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error)
	// StreamComplete relays incremental deltas through onDelta and
	// returns the accumulated text. A non-nil error from onDelta stops
	// the stream.
	StreamComplete(ctx context.Context, cfg ChatConfig, messages []ChatMessage, onDelta func(delta string) error) (string, error)
}
