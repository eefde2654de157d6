package llama

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Engine owns one loaded native model. It is not safe to copy. Calls on one
// Engine are serialised; a token callback must not call back into the Engine
// that invoked it.
type Engine struct {
	mu          sync.Mutex
	backend     Backend
	callbacks   *Registry
	state       Handle
	persistent  func(string) bool
	embeddings  bool
	contextSize int
	path        string
	log         zerolog.Logger
}

type engineConfig struct {
	logger    zerolog.Logger
	callbacks *Registry
}

type EngineOption func(*engineConfig)

// WithLogger sets the logger used for native call tracing. The default drops
// everything.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = l }
}

// WithRegistry overrides the callback registry taken from the backend. Only
// useful with backends whose trampoline dispatches into r.
func WithRegistry(r *Registry) EngineOption {
	return func(c *engineConfig) { c.callbacks = r }
}

// New loads model with the native backend linked into this binary.
func New(model string, opts ...ModelOption) (*Engine, error) {
	b, err := NativeBackend()
	if err != nil {
		return nil, err
	}
	return Load(b, model, NewModelOptions(opts...))
}

// Load loads model through b. A null native handle is reported as a
// LoadError and nothing needs to be freed.
func Load(b Backend, model string, mo ModelOptions, opts ...EngineOption) (*Engine, error) {
	if b == nil {
		return nil, ErrNativeUnavailable
	}
	cfg := engineConfig{logger: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.logger.With().Str("component", "llama").Str("model", model).Logger()

	if model == "" {
		return nil, &LoadError{Path: model}
	}
	if err := checkCStrings("model options", model, mo.MainGPU, mo.TensorSplit); err != nil {
		return nil, err
	}

	start := time.Now()
	state := b.LoadModel(model, mo)
	if state == nil {
		log.Debug().Dur("dur", time.Since(start)).Msg("load failed")
		return nil, &LoadError{Path: model}
	}
	log.Debug().
		Int("ctx", mo.ContextSize).
		Bool("embeddings", mo.Embeddings).
		Int("gpu_layers", mo.NGPULayers).
		Dur("dur", time.Since(start)).
		Msg("model loaded")

	reg := cfg.callbacks
	if reg == nil {
		reg = b.Callbacks()
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Engine{
		backend:     b,
		callbacks:   reg,
		state:       state,
		embeddings:  mo.Embeddings,
		contextSize: mo.ContextSize,
		path:        model,
		log:         log,
	}, nil
}

// Close drops the handle's callback registration and frees the native model.
// The native free runs exactly once; later calls return nil.
func (l *Engine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return nil
	}
	l.callbacks.Clear(l.state)
	l.backend.FreeModel(l.state)
	l.state = nil
	l.persistent = nil
	l.log.Debug().Msg("model freed")
	return nil
}

// Free is Close without the error.
func (l *Engine) Free() { _ = l.Close() }

// EmbeddingsEnabled reports whether the model was loaded with embeddings on.
func (l *Engine) EmbeddingsEnabled() bool { return l.embeddings }

func (l *Engine) ContextSize() int { return l.contextSize }

// Path returns the model path the engine was loaded from.
func (l *Engine) Path() string { return l.path }

// SetTokenCallback installs a callback used by every Predict that does not
// carry its own PredictOptions.TokenCallback. Pass nil to remove it. It waits
// for an in-flight call on this Engine to return.
func (l *Engine) SetTokenCallback(callback func(token string) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persistent = callback
	if l.state != nil {
		l.callbacks.Set(l.state, callback)
	}
}

// SaveState writes the native state to dst. The native save reports nothing,
// so success is decided by dst existing afterwards.
func (l *Engine) SaveState(dst string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrClosed
	}
	if err := checkCStrings("state path", dst); err != nil {
		return err
	}
	l.backend.SaveState(l.state, dst, "wb")

	fi, err := os.Stat(dst)
	if err != nil {
		l.log.Debug().Str("path", dst).Err(err).Msg("save state failed")
		return &StateIOError{Op: "save", Path: dst, Err: err}
	}
	if fi.IsDir() {
		return &StateIOError{Op: "save", Path: dst, Err: fmt.Errorf("%s is a directory", dst)}
	}
	l.log.Debug().Str("path", dst).Int64("bytes", fi.Size()).Msg("state saved")
	return nil
}

// LoadState restores native state previously written by SaveState.
func (l *Engine) LoadState(state string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrClosed
	}
	if err := checkCStrings("state path", state); err != nil {
		return err
	}
	if rc := l.backend.LoadState(l.state, state, "rb"); rc != 0 {
		l.log.Debug().Str("path", state).Int("rc", rc).Msg("load state failed")
		return &StateIOError{Op: "load", Path: state, Code: rc}
	}
	l.log.Debug().Str("path", state).Msg("state loaded")
	return nil
}
