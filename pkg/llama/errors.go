package llama

import (
	"errors"
	"fmt"
)

// ErrEmbeddingsUnavailable is returned by Embeddings and TokenEmbeddings when the
// model was loaded without EnableEmbeddings. No native call is made.
var ErrEmbeddingsUnavailable = errors.New("model loaded without embeddings")

// ErrClosed is returned by any call on an Engine after Close.
var ErrClosed = errors.New("llama: engine closed")

// ErrNativeUnavailable is returned when the binary was built without the
// 'llama' build tag and therefore has no native engine linked in.
var ErrNativeUnavailable = errors.New("llama support not built (missing 'llama' build tag)")

// ErrInteriorNUL is returned when a string argument contains a NUL byte and so
// cannot be passed to the native side without silent truncation.
var ErrInteriorNUL = errors.New("llama: string argument contains NUL byte")

// LoadError reports that the native loader returned a null handle.
type LoadError struct{ Path string }

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed loading model from %s - model file may not exist or is invalid", e.Path)
}

// StateIOError reports a failed state save or load. Code is the native return
// code; it is zero when the failure was detected on the filesystem instead.
type StateIOError struct {
	Op   string
	Path string
	Code int
	Err  error
}

func (e *StateIOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to %s state %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s state %s (code %d)", e.Op, e.Path, e.Code)
}

func (e *StateIOError) Unwrap() error { return e.Err }

// PredictionError reports a nonzero return code from predict, eval or one of
// the embedding calls.
type PredictionError struct {
	Op   string
	Code int
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s failed (code %d)", e.Op, e.Code)
}

// DecodeError reports native output, or a streamed token, that is not valid UTF-8.
// It aborts the call it happened in; the Engine stays usable.
type DecodeError struct {
	Op  string
	Raw []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: native output is not valid UTF-8 (%d bytes)", e.Op, len(e.Raw))
}

// IsLoadFailure reports whether err is a LoadError.
func IsLoadFailure(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsStateIOFailure reports whether err is a StateIOError.
func IsStateIOFailure(err error) bool {
	var se *StateIOError
	return errors.As(err, &se)
}

// IsPredictionFailure reports whether err is a PredictionError.
func IsPredictionFailure(err error) bool {
	var pe *PredictionError
	return errors.As(err, &pe)
}

// IsDecodeFailure reports whether err is a DecodeError.
func IsDecodeFailure(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
