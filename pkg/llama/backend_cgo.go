//go:build llama

package llama

// #include <stdlib.h>
// #include <string.h>
// #include "binding.h"
import "C"
import (
	"unsafe"
)

// processCallbacks is the registry behind the exported tokenCallback symbol.
// There is one symbol per process, so there is one registry per process; it
// reaches engines through Backend.Callbacks.
var processCallbacks = NewRegistry()

type nativeBackend struct{}

// NativeBackend returns the backend linked in through libbinding.
func NativeBackend() (Backend, error) {
	return nativeBackend{}, nil
}

func (nativeBackend) Callbacks() *Registry { return processCallbacks }

// cArena owns every C allocation made to marshal one native call.
type cArena struct {
	ptrs []unsafe.Pointer
}

func (a *cArena) str(s string) *C.char {
	p := C.CString(s)
	a.ptrs = append(a.ptrs, unsafe.Pointer(p))
	return p
}

// strArray returns nil for an empty list so pointer and count agree.
func (a *cArena) strArray(ss []string) **C.char {
	if len(ss) == 0 {
		return nil
	}
	arr := (**C.char)(C.malloc(C.size_t(len(ss)) * C.size_t(unsafe.Sizeof((*C.char)(nil)))))
	a.ptrs = append(a.ptrs, unsafe.Pointer(arr))
	view := unsafe.Slice(arr, len(ss))
	for i, s := range ss {
		view[i] = a.str(s)
	}
	return arr
}

func (a *cArena) ints(v []int32) *C.int {
	if len(v) == 0 {
		return nil
	}
	arr := (*C.int)(C.malloc(C.size_t(len(v)) * C.sizeof_int))
	a.ptrs = append(a.ptrs, unsafe.Pointer(arr))
	view := unsafe.Slice(arr, len(v))
	for i, t := range v {
		view[i] = C.int(t)
	}
	return arr
}

func (a *cArena) free() {
	for i := len(a.ptrs) - 1; i >= 0; i-- {
		C.free(a.ptrs[i])
	}
	a.ptrs = nil
}

// nativeParams is the ParamBlock of the cgo backend.
type nativeParams struct {
	ptr      unsafe.Pointer
	prompt   *C.char
	arena    cArena
	released bool
}

func (p *nativeParams) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.ptr != nil {
		C.llama_free_params(p.ptr)
	}
	p.ptr = nil
	p.prompt = nil
	p.arena.free()
}

// live returns the block behind pb if it was allocated by this backend and has
// not been released.
func live(pb ParamBlock) (*nativeParams, bool) {
	p, ok := pb.(*nativeParams)
	if !ok || p.released || p.ptr == nil {
		return nil, false
	}
	return p, true
}

func (nativeBackend) LoadModel(path string, mo ModelOptions) Handle {
	var a cArena
	defer a.free()
	res := C.load_model(a.str(path),
		C.int(mo.ContextSize), C.int(mo.Seed),
		C.bool(mo.F16Memory), C.bool(mo.MLock), C.bool(mo.Embeddings), C.bool(mo.MMap),
		C.bool(mo.LowVRAM), C.bool(mo.VocabOnly),
		C.int(mo.NGPULayers), C.int(mo.NBatch), a.str(mo.MainGPU), a.str(mo.TensorSplit),
		C.bool(mo.NUMA),
	)
	return Handle(res)
}

func (nativeBackend) FreeModel(h Handle) {
	C.llama_binding_free_model(unsafe.Pointer(h))
}

func (nativeBackend) LoadState(h Handle, path, mode string) int {
	var a cArena
	defer a.free()
	return int(C.load_state(unsafe.Pointer(h), a.str(path), a.str(mode)))
}

func (nativeBackend) SaveState(h Handle, path, mode string) {
	var a cArena
	defer a.free()
	C.save_state(unsafe.Pointer(h), a.str(path), a.str(mode))
}

func (nativeBackend) AllocateParams(spec ParamSpec) ParamBlock {
	p := &nativeParams{}
	a := &p.arena
	p.prompt = a.str(spec.Prompt)
	stops := a.strArray(spec.StopPrompts)
	p.ptr = C.llama_allocate_params(p.prompt, C.int(spec.Seed), C.int(spec.Threads), C.int(spec.Tokens), C.int(spec.TopK),
		C.float(spec.TopP), C.float(spec.Temperature), C.float(spec.Penalty), C.int(spec.Repeat),
		C.bool(spec.IgnoreEOS), C.bool(spec.F16KV),
		C.int(spec.Batch), C.int(spec.NKeep), stops, C.int(spec.StopCount),
		C.float(spec.TailFreeSamplingZ), C.float(spec.TypicalP), C.float(spec.FrequencyPenalty), C.float(spec.PresencePenalty),
		C.int(spec.Mirostat), C.float(spec.MirostatETA), C.float(spec.MirostatTAU), C.bool(spec.PenalizeNL), a.str(spec.LogitBias),
		a.str(spec.PathPromptCache), C.bool(spec.PromptCacheAll), C.bool(spec.MLock), C.bool(spec.MMap),
		a.str(spec.MainGPU), a.str(spec.TensorSplit),
		C.bool(spec.PromptCacheRO),
	)
	return p
}

func (nativeBackend) Predict(pb ParamBlock, h Handle, debug bool) ([]byte, int) {
	p, ok := live(pb)
	if !ok {
		return nil, -1
	}
	var out *C.char
	rc := int(C.llama_predict(p.ptr, unsafe.Pointer(h), &out, C.bool(debug)))
	if out == nil {
		return nil, rc
	}
	defer C.free(unsafe.Pointer(out))
	return C.GoBytes(unsafe.Pointer(out), C.int(C.strlen(out))), rc
}

func (nativeBackend) Eval(pb ParamBlock, h Handle) int {
	p, ok := live(pb)
	if !ok {
		return -1
	}
	return int(C.eval(p.ptr, unsafe.Pointer(h), p.prompt))
}

func embeddingSize(h Handle) int {
	return int(C.llama_binding_embedding_size(unsafe.Pointer(h)))
}

func (nativeBackend) Embeddings(pb ParamBlock, h Handle) ([]float32, int) {
	p, ok := live(pb)
	if !ok {
		return nil, -1
	}
	n := embeddingSize(h)
	if n <= 0 {
		return nil, -1
	}
	out := make([]float32, n)
	rc := int(C.get_embeddings(p.ptr, unsafe.Pointer(h), (*C.float)(unsafe.Pointer(&out[0]))))
	return out, rc
}

func (nativeBackend) TokenEmbeddings(pb ParamBlock, h Handle, tokens []int32) ([]float32, int) {
	p, ok := live(pb)
	if !ok {
		return nil, -1
	}
	n := embeddingSize(h)
	if n <= 0 {
		return nil, -1
	}
	toks := p.arena.ints(tokens)
	out := make([]float32, n)
	rc := int(C.get_token_embeddings(p.ptr, unsafe.Pointer(h), toks, C.int(len(tokens)), (*C.float)(unsafe.Pointer(&out[0]))))
	return out, rc
}
