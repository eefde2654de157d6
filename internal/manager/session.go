package manager

import (
	"context"

	"llamad/pkg/llama"
)

// Session is the part of *llama.Engine the manager drives. One Session backs
// one Instance; the manager never runs two calls on it at once.
type Session interface {
	PredictContext(ctx context.Context, text string, po *llama.PredictOptions) (string, error)
	Embeddings(text string, po *llama.PredictOptions) ([]float32, error)
	TokenEmbeddings(tokens []int32, po *llama.PredictOptions) ([]float32, error)
	SaveState(dst string) error
	LoadState(src string) error
	EmbeddingsEnabled() bool
	Close() error
}

// Loader opens a Session for a model file.
type Loader interface {
	Load(path string, mo llama.ModelOptions) (Session, error)
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string `json:"content"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// Usage contains token accounting. Only streamed tokens are counted; the
// native engine does not report prompt tokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
