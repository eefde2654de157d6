package manager

import (
	"strings"

	"github.com/rs/zerolog"

	"llamad/pkg/llama"
)

// llamaLoader loads models into the native engine linked into this binary.
// Without the 'llama' build tag every Load fails with ErrNativeUnavailable,
// which the HTTP layer reports as 503.
type llamaLoader struct {
	log zerolog.Logger
}

func NewLlamaLoader(log zerolog.Logger) Loader {
	return llamaLoader{log: log}
}

func (l llamaLoader) Load(path string, mo llama.ModelOptions) (Session, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidRequest("model path is empty")
	}
	b, err := llama.NativeBackend()
	if err != nil {
		return nil, err
	}
	e, err := llama.Load(b, path, mo, llama.WithLogger(l.log))
	if err != nil {
		return nil, err
	}
	return e, nil
}
