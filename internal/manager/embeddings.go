package manager

import (
	"context"
	"strings"
	"time"

	"llamad/pkg/types"
)

// Embeddings computes an embedding vector for req.Input, or for req.Tokens when
// the input is pre-tokenized. The model must be configured with embeddings
// enabled; otherwise llama.ErrEmbeddingsUnavailable is returned.
func (m *Manager) Embeddings(ctx context.Context, req types.EmbeddingsRequest) (types.EmbeddingsResponse, error) {
	hasInput := strings.TrimSpace(req.Input) != ""
	if hasInput == (len(req.Tokens) > 0) {
		return types.EmbeddingsResponse{}, ErrInvalidRequest("exactly one of input and tokens is required")
	}
	if req.MaxValues < 0 {
		return types.EmbeddingsResponse{}, ErrInvalidRequest("max_values must not be negative")
	}
	modelID, err := m.resolveModelID(req.Model)
	if err != nil {
		return types.EmbeddingsResponse{}, err
	}
	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return types.EmbeddingsResponse{}, err
	}
	inst, release, err := m.acquire(ctx, modelID)
	if err != nil {
		return types.EmbeddingsResponse{}, err
	}
	defer release()

	po := m.predictDefaults
	po.StopPrompts = nil
	po.TokenCallback = nil
	// Tokens doubles as the cap on returned values; zero means the full vector.
	po.Tokens = req.MaxValues

	start := time.Now()
	var vec []float32
	op := "embeddings"
	if hasInput {
		vec, err = inst.Session.Embeddings(req.Input, &po)
	} else {
		op = "token_embeddings"
		vec, err = inst.Session.TokenEmbeddings(req.Tokens, &po)
	}
	observeEngineCall(op, err, start)
	if err != nil {
		return types.EmbeddingsResponse{}, err
	}
	return types.EmbeddingsResponse{Model: modelID, Embedding: vec, Dimensions: len(vec)}, nil
}

// TokenEmbeddings is Embeddings for pre-tokenized input.
func (m *Manager) TokenEmbeddings(ctx context.Context, modelID string, tokens []int32) ([]float32, error) {
	resp, err := m.Embeddings(ctx, types.EmbeddingsRequest{Model: modelID, Tokens: tokens})
	return resp.Embedding, err
}
