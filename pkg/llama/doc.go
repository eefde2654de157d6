// Package llama is a Go binding for a llama.cpp engine compiled into
// libbinding. An Engine owns one loaded model; Predict, Eval and the
// embedding calls marshal their options into a transient native parameter
// block, run the native function and copy its output back before the block is
// released.
//
// The native engine is only linked in with the 'llama' build tag. Without it
// New returns ErrNativeUnavailable, while Load accepts any Backend, which is
// how the package is tested.
package llama
