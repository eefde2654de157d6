package llama

import (
	"context"
	"time"
	"unicode/utf8"
)

// Every call below follows the same protocol: marshal, install the call's token
// callback, invoke, copy the explicit-length output, release the parameter
// block, restore the handle's persistent callback. The release and the restore
// are deferred so they run on every return path.

func optionsOrDefault(po *PredictOptions) *PredictOptions {
	if po != nil {
		return po
	}
	d := NewPredictOptions()
	return &d
}

// Predict generates a completion for text. A zero po.Tokens is rewritten to
// UnboundedTokens. po may be nil.
func (l *Engine) Predict(text string, po *PredictOptions) (string, error) {
	return l.predict(context.Background(), text, optionsOrDefault(po))
}

// PredictContext is Predict with cooperative cancellation: once ctx is done the
// token callback reports false and the native engine stops at the next token.
// The context error is returned in that case.
func (l *Engine) PredictContext(ctx context.Context, text string, po *PredictOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := l.predict(ctx, text, optionsOrDefault(po))
	if cerr := ctx.Err(); cerr != nil {
		return res, cerr
	}
	return res, err
}

func (l *Engine) predict(ctx context.Context, text string, po *PredictOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return "", ErrClosed
	}
	spec, err := marshalPredict(text, po)
	if err != nil {
		return "", err
	}

	cb := po.TokenCallback
	if cb == nil {
		cb = l.persistent
	}
	if ctx.Done() != nil {
		cb = cancellable(ctx, cb)
	}
	l.callbacks.Set(l.state, cb)
	defer l.callbacks.Set(l.state, l.persistent)

	block := l.backend.AllocateParams(spec)
	defer block.Release()

	start := time.Now()
	out, rc := l.backend.Predict(block, l.state, po.DebugMode)
	l.traceCall("predict", rc, start)
	if rc != 0 {
		return "", &PredictionError{Op: "predict", Code: rc}
	}
	if derr := l.callbacks.decodeFailure(l.state); derr != nil {
		return "", derr
	}
	if !utf8.Valid(out) {
		return "", &DecodeError{Op: "predict", Raw: out}
	}
	return trimOutput(string(out), text, po.StopPrompts), nil
}

// cancellable wraps cb so it reports false once ctx is done. cb may be nil.
func cancellable(ctx context.Context, cb func(string) bool) func(string) bool {
	return func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if cb == nil {
			return true
		}
		return cb(tok)
	}
}

// Eval feeds text into the model state without producing output.
func (l *Engine) Eval(text string, po *PredictOptions) error {
	po = optionsOrDefault(po)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrClosed
	}
	spec, err := marshalPredict(text, po)
	if err != nil {
		return err
	}
	block := l.backend.AllocateParams(spec)
	defer block.Release()

	start := time.Now()
	rc := l.backend.Eval(block, l.state)
	l.traceCall("eval", rc, start)
	if rc != 0 {
		return &PredictionError{Op: "eval", Code: rc}
	}
	return nil
}

// Embeddings returns the embedding vector for text. The model must have been
// loaded with EnableEmbeddings; otherwise ErrEmbeddingsUnavailable is returned
// without touching the native side. A positive po.Tokens caps the number of
// values returned; a nil po returns the full vector.
func (l *Engine) Embeddings(text string, po *PredictOptions) ([]float32, error) {
	if !l.embeddings {
		return []float32{}, ErrEmbeddingsUnavailable
	}
	limit := vectorLimit(po)
	po = optionsOrDefault(po)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return []float32{}, ErrClosed
	}
	spec, err := marshalPredict(text, po)
	if err != nil {
		return []float32{}, err
	}
	block := l.backend.AllocateParams(spec)
	defer block.Release()

	start := time.Now()
	vec, rc := l.backend.Embeddings(block, l.state)
	l.traceCall("embeddings", rc, start)
	if rc != 0 {
		return []float32{}, &PredictionError{Op: "embeddings", Code: rc}
	}
	return capVector(vec, limit), nil
}

// TokenEmbeddings is Embeddings for input that is already tokenized.
func (l *Engine) TokenEmbeddings(tokens []int32, po *PredictOptions) ([]float32, error) {
	if !l.embeddings {
		return []float32{}, ErrEmbeddingsUnavailable
	}
	limit := vectorLimit(po)
	po = optionsOrDefault(po)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return []float32{}, ErrClosed
	}
	spec, err := marshalTokenInput(po)
	if err != nil {
		return []float32{}, err
	}
	block := l.backend.AllocateParams(spec)
	defer block.Release()

	start := time.Now()
	vec, rc := l.backend.TokenEmbeddings(block, l.state, tokens)
	l.traceCall("token_embeddings", rc, start)
	if rc != 0 {
		return []float32{}, &PredictionError{Op: "token_embeddings", Code: rc}
	}
	return capVector(vec, limit), nil
}

// vectorLimit reads the cap before nil options fall back to DefaultOptions,
// whose Tokens is a generation length and not a vector size.
func vectorLimit(po *PredictOptions) int {
	if po == nil {
		return 0
	}
	return po.Tokens
}

func capVector(vec []float32, limit int) []float32 {
	if limit > 0 && len(vec) > limit {
		vec = vec[:limit]
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

func (l *Engine) traceCall(op string, rc int, start time.Time) {
	ev := l.log.Debug()
	if rc != 0 {
		ev = l.log.Warn()
	}
	ev.Str("op", op).Int("rc", rc).Dur("dur", time.Since(start)).Msg("native call")
}
