package llama

import "unsafe"

// Handle is the opaque native model state. Its address is the identity the
// native engine passes back into the token trampoline.
type Handle unsafe.Pointer

func handleKey(h Handle) uintptr { return uintptr(h) }

// ParamBlock is one transient native parameter block together with every
// buffer backing its string and array arguments. Release frees all of them at
// once and must be called exactly once, after the native call has returned.
type ParamBlock interface {
	Release()
}

// Backend is the native engine surface. The cgo implementation (build tag
// 'llama') forwards each method to the matching C function; return codes are
// passed through unchanged and mapped to errors by Engine.
type Backend interface {
	LoadModel(path string, mo ModelOptions) Handle
	FreeModel(h Handle)
	LoadState(h Handle, path, mode string) int
	SaveState(h Handle, path, mode string)

	AllocateParams(spec ParamSpec) ParamBlock
	// Predict returns exactly the bytes the native side produced, without the
	// terminating NUL.
	Predict(p ParamBlock, h Handle, debug bool) ([]byte, int)
	// Eval feeds the prompt owned by p.
	Eval(p ParamBlock, h Handle) int
	Embeddings(p ParamBlock, h Handle) ([]float32, int)
	TokenEmbeddings(p ParamBlock, h Handle, tokens []int32) ([]float32, int)

	// Callbacks is the registry the native token trampoline dispatches into.
	Callbacks() *Registry
}

// ParamSpec mirrors the positional argument list of llama_allocate_params.
// Field order is the ABI order.
type ParamSpec struct {
	Prompt      string
	Seed        int
	Threads     int
	Tokens      int
	TopK        int
	TopP        float32
	Temperature float32
	Penalty     float32
	Repeat      int
	IgnoreEOS   bool
	F16KV       bool
	Batch       int
	NKeep       int
	// StopPrompts is nil iff StopCount is zero.
	StopPrompts       []string
	StopCount         int
	TailFreeSamplingZ float32
	TypicalP          float32
	FrequencyPenalty  float32
	PresencePenalty   float32
	Mirostat          int
	MirostatETA       float32
	MirostatTAU       float32
	PenalizeNL        bool
	LogitBias         string
	PathPromptCache   string
	PromptCacheAll    bool
	MLock             bool
	MMap              bool
	MainGPU           string
	TensorSplit       string
	PromptCacheRO     bool
}
