package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"llamad/pkg/llama"
	"llamad/pkg/types"
)

// Infer ensures the model instance exists, waits for its single in-flight
// slot and streams NDJSON token lines to w as the engine produces them,
// followed by one final line carrying the trimmed completion.
//
// The token callback reports false when w fails or ctx is done, which stops
// the native generation at the next token.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flusher func()) error {
	modelID, err := m.resolveModelID(req.Model)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrInvalidRequest("prompt is required")
	}
	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return err
	}
	// Admission: per-instance FIFO queue, single in-flight
	inst, release, err := m.acquire(ctx, modelID)
	if err != nil {
		return err
	}
	defer release()

	po := m.predictOptions(req)
	var (
		b        strings.Builder
		writeErr error
		streamed int
	)
	po.TokenCallback = func(tok string) bool {
		if _, e := w.Write(tokenLineJSON(tok)); e != nil {
			writeErr = e
			return false
		}
		streamed++
		b.WriteString(tok)
		safeFlush(flusher)
		return true
	}

	start := time.Now()
	text, err := predictRecover(ctx, inst.Session, req.Prompt, &po)
	observeEngineCall("predict", err, start)
	addStreamedTokens(streamed)
	if writeErr != nil {
		return writeErr
	}

	finish := "stop"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		finish = "cancelled"
	case err != nil:
		m.log.Warn().Str("model", modelID).Err(err).Msg("predict failed")
		return err
	case po.Tokens != llama.UnboundedTokens && streamed >= po.Tokens:
		finish = "length"
	}
	content := text
	if content == "" && finish != "cancelled" {
		content = b.String()
	}
	final := FinalResult{
		Content:      content,
		FinishReason: finish,
		Usage:        Usage{CompletionTokens: streamed, TotalTokens: streamed},
	}
	if _, werr := w.Write(finalLineJSON(final)); werr != nil {
		return werr
	}
	safeFlush(flusher)
	return err
}

// predictRecover turns a panic in the session into an error.
func predictRecover(ctx context.Context, s Session, prompt string, po *llama.PredictOptions) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predict panic: %v", r)
		}
	}()
	return s.PredictContext(ctx, prompt, po)
}

// safeFlush must not let a panic unwind into the native engine that invoked
// the token callback.
func safeFlush(f func()) {
	if f == nil {
		return
	}
	defer func() { _ = recover() }()
	f()
}

// predictOptions overlays the request on the configured prediction defaults.
// Zero request fields keep the default.
func (m *Manager) predictOptions(req types.InferRequest) llama.PredictOptions {
	po := m.predictDefaults
	po.StopPrompts = append([]string(nil), po.StopPrompts...)
	po.TokenCallback = nil
	if req.MaxTokens > 0 {
		po.Tokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		po.Temperature = float32(req.Temperature)
	}
	if req.TopP > 0 {
		po.TopP = float32(req.TopP)
	}
	if req.TopK > 0 {
		po.TopK = req.TopK
	}
	if req.RepeatPenalty > 0 {
		po.Penalty = float32(req.RepeatPenalty)
	}
	if req.Seed != 0 {
		po.Seed = int(req.Seed)
	}
	if req.Mirostat > 0 {
		po.Mirostat = req.Mirostat
	}
	if req.Threads > 0 {
		po.Threads = req.Threads
	}
	if req.IgnoreEOS {
		po.IgnoreEOS = true
	}
	if len(req.Stop) > 0 {
		po.StopPrompts = append([]string(nil), req.Stop...)
	}
	return po
}

// tokenLineJSON formats a token NDJSON line using json.Marshal for correctness.
func tokenLineJSON(tok string) []byte {
	type tokenMsg struct {
		Token string `json:"token"`
	}
	b, _ := json.Marshal(tokenMsg{Token: tok})
	return append(b, '\n')
}

func finalLineJSON(f FinalResult) []byte {
	type doneMsg struct {
		Done bool `json:"done"`
		FinalResult
	}
	b, _ := json.Marshal(doneMsg{Done: true, FinalResult: f})
	return append(b, '\n')
}
