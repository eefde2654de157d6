package llama

import (
	"sync"
	"unicode/utf8"
)

// CGo only allows static calls from C into Go, so a closure cannot be handed to
// the native engine. Instead the engine calls one exported trampoline with the
// state pointer it was given, and the trampoline looks the pointer up here.

type callbackEntry struct {
	fn        func(string) bool
	halted    bool
	decodeErr *DecodeError
}

// Registry maps a handle identity to at most one token callback. All access
// goes through one mutex; callbacks themselves run outside it.
type Registry struct {
	mu      sync.Mutex
	entries map[uintptr]*callbackEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uintptr]*callbackEntry)}
}

// Set installs fn for h, replacing any earlier entry. A nil fn removes the entry.
func (r *Registry) Set(h Handle, fn func(string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.entries, handleKey(h))
		return
	}
	r.entries[handleKey(h)] = &callbackEntry{fn: fn}
}

// Clear removes the entry for h, if any.
func (r *Registry) Clear(h Handle) { r.Set(h, nil) }

// Has reports whether a callback is installed for h.
func (r *Registry) Has(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[handleKey(h)]
	return ok
}

// Len returns the number of installed callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch is the body of the native token trampoline. It returns true to let
// generation continue. Without an entry for h it always returns true. Once the
// callback has returned false, or a token failed to decode, the entry is halted
// and the callback is not invoked again until the entry is replaced.
func (r *Registry) Dispatch(h Handle, token []byte) bool {
	r.mu.Lock()
	e, ok := r.entries[handleKey(h)]
	if !ok {
		r.mu.Unlock()
		return true
	}
	if e.halted {
		r.mu.Unlock()
		return false
	}
	if !utf8.Valid(token) {
		e.halted = true
		e.decodeErr = &DecodeError{Op: "token callback", Raw: append([]byte(nil), token...)}
		r.mu.Unlock()
		return false
	}
	fn := e.fn
	r.mu.Unlock()

	if fn(string(token)) {
		return true
	}
	r.mu.Lock()
	e.halted = true
	r.mu.Unlock()
	return false
}

// decodeFailure returns the decode error recorded for h since its entry was
// installed.
func (r *Registry) decodeFailure(h Handle) *DecodeError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[handleKey(h)]; ok {
		return e.decodeErr
	}
	return nil
}
