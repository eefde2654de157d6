//go:build !llama

package llama

// Without the 'llama' build tag no native engine is linked. Load still works
// with an explicit Backend; New fails fast instead of pretending to run.

// NativeBackend reports ErrNativeUnavailable in builds without the 'llama' tag.
func NativeBackend() (Backend, error) {
	return nil, ErrNativeUnavailable
}
