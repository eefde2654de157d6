package llama

// UnboundedTokens replaces a zero token limit before any native call. The native
// engine has no "no limit" value, so zero is mapped to a cap it never reaches.
const UnboundedTokens = 99999999

// ModelOptions configures a model at load time. It is consumed once by Load and
// not consulted again afterwards.
type ModelOptions struct {
	ContextSize int
	Seed        int
	NBatch      int
	F16Memory   bool
	MLock       bool
	MMap        bool
	LowVRAM     bool
	VocabOnly   bool
	Embeddings  bool
	NGPULayers  int
	MainGPU     string
	TensorSplit string
	NUMA        bool
}

// PredictOptions configures a single Predict, Eval or embeddings call.
type PredictOptions struct {
	Seed, Threads, Tokens, TopK, Repeat, Batch, NKeep int
	TopP, Temperature, Penalty                         float32
	F16KV                                             bool
	DebugMode                                         bool
	StopPrompts                                       []string
	IgnoreEOS                                         bool

	TailFreeSamplingZ float32
	TypicalP          float32
	FrequencyPenalty  float32
	PresencePenalty   float32
	Mirostat          int
	MirostatETA       float32
	MirostatTAU       float32
	PenalizeNL        bool
	LogitBias         string

	// TokenCallback is installed for the duration of one call. Returning false
	// stops generation; it is not invoked again for that call.
	TokenCallback func(string) bool

	PathPromptCache string
	MLock, MMap     bool
	PromptCacheAll  bool
	PromptCacheRO   bool
	MainGPU         string
	TensorSplit     string
}

type ModelOption func(p *ModelOptions)

type PredictOption func(p *PredictOptions)

// DefaultModelOptions is the base every Load starts from.
var DefaultModelOptions ModelOptions = ModelOptions{
	ContextSize: 512,
	Seed:        0,
	F16Memory:   false,
	MLock:       false,
	Embeddings:  false,
	MMap:        true,
	LowVRAM:     false,
	VocabOnly:   false,
	NBatch:      0,
	NUMA:        false,
	NGPULayers:  0,
}

// DefaultOptions is the base every NewPredictOptions starts from.
var DefaultOptions PredictOptions = PredictOptions{
	Seed:              -1,
	Threads:           4,
	Tokens:            128,
	TopK:              40,
	Repeat:            64,
	Batch:             8,
	NKeep:             64,
	TopP:              0.95,
	Temperature:       0.8,
	Penalty:           1.1,
	F16KV:             false,
	DebugMode:         false,
	IgnoreEOS:         false,
	TailFreeSamplingZ: 1.0,
	TypicalP:          1.0,
	FrequencyPenalty:  0.0,
	PresencePenalty:   0.0,
	Mirostat:          0,
	MirostatETA:       0.1,
	MirostatTAU:       5.0,
	PenalizeNL:        false,
	MLock:             false,
	MMap:              false,
	PromptCacheAll:    false,
	PromptCacheRO:     false,
}

// NewModelOptions applies opts on top of DefaultModelOptions.
func NewModelOptions(opts ...ModelOption) ModelOptions {
	p := DefaultModelOptions
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// NewPredictOptions applies opts on top of DefaultOptions.
func NewPredictOptions(opts ...PredictOption) PredictOptions {
	p := DefaultOptions
	p.StopPrompts = nil
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithModelOptions replaces the whole option set, e.g. one decoded from a config file.
func WithModelOptions(mo ModelOptions) ModelOption {
	return func(p *ModelOptions) {
		*p = mo
	}
}

// SetContext sets the context size in tokens.
func SetContext(c int) ModelOption {
	return func(p *ModelOptions) {
		p.ContextSize = c
	}
}

func SetModelSeed(c int) ModelOption {
	return func(p *ModelOptions) {
		p.Seed = c
	}
}

// SetMainGPU selects the primary device, e.g. "0".
func SetMainGPU(maingpu string) ModelOption {
	return func(p *ModelOptions) {
		p.MainGPU = maingpu
	}
}

// SetTensorSplit sets the comma separated per-device split, e.g. "0.6,0.4".
func SetTensorSplit(maingpu string) ModelOption {
	return func(p *ModelOptions) {
		p.TensorSplit = maingpu
	}
}

func SetNBatch(n_batch int) ModelOption {
	return func(p *ModelOptions) {
		p.NBatch = n_batch
	}
}

func SetGPULayers(n int) ModelOption {
	return func(p *ModelOptions) {
		p.NGPULayers = n
	}
}

// SetMMap toggles memory mapping of the model file. Enabled by default.
func SetMMap(b bool) ModelOption {
	return func(p *ModelOptions) {
		p.MMap = b
	}
}

var EnableF16Memory ModelOption = func(p *ModelOptions) {
	p.F16Memory = true
}

// EnableEmbeddings is required before Embeddings or TokenEmbeddings can be used.
var EnableEmbeddings ModelOption = func(p *ModelOptions) {
	p.Embeddings = true
}

var EnableMLock ModelOption = func(p *ModelOptions) {
	p.MLock = true
}

var EnableLowVRAM ModelOption = func(p *ModelOptions) {
	p.LowVRAM = true
}

var EnableVocabOnly ModelOption = func(p *ModelOptions) {
	p.VocabOnly = true
}

var EnableNUMA ModelOption = func(p *ModelOptions) {
	p.NUMA = true
}

// WithPredictOptions replaces the whole option set.
func WithPredictOptions(po PredictOptions) PredictOption {
	return func(p *PredictOptions) {
		*p = po
	}
}

// SetTokens sets the number of tokens to generate. Zero means unbounded.
func SetTokens(tokens int) PredictOption {
	return func(p *PredictOptions) {
		p.Tokens = tokens
	}
}

// SetThreads is forwarded to the native engine; this package starts no threads.
func SetThreads(threads int) PredictOption {
	return func(p *PredictOptions) {
		p.Threads = threads
	}
}

func SetTopK(topk int) PredictOption {
	return func(p *PredictOptions) {
		p.TopK = topk
	}
}

func SetTopP(topp float32) PredictOption {
	return func(p *PredictOptions) {
		p.TopP = topp
	}
}

func SetTemperature(temp float32) PredictOption {
	return func(p *PredictOptions) {
		p.Temperature = temp
	}
}

// SetPenalty sets the repetition penalty.
func SetPenalty(penalty float32) PredictOption {
	return func(p *PredictOptions) {
		p.Penalty = penalty
	}
}

// SetRepeat sets how many trailing tokens the repetition penalty looks at.
func SetRepeat(repeat int) PredictOption {
	return func(p *PredictOptions) {
		p.Repeat = repeat
	}
}

func SetBatch(size int) PredictOption {
	return func(p *PredictOptions) {
		p.Batch = size
	}
}

// SetNKeep sets how many prompt tokens survive a context swap.
func SetNKeep(n int) PredictOption {
	return func(p *PredictOptions) {
		p.NKeep = n
	}
}

func SetSeed(seed int) PredictOption {
	return func(p *PredictOptions) {
		p.Seed = seed
	}
}

// SetStopWords sets the stop sequences. Order is kept.
func SetStopWords(stop ...string) PredictOption {
	return func(p *PredictOptions) {
		p.StopPrompts = append([]string(nil), stop...)
	}
}

func SetTailFreeSamplingZ(tfz float32) PredictOption {
	return func(p *PredictOptions) {
		p.TailFreeSamplingZ = tfz
	}
}

func SetTypicalP(tp float32) PredictOption {
	return func(p *PredictOptions) {
		p.TypicalP = tp
	}
}

func SetFrequencyPenalty(fp float32) PredictOption {
	return func(p *PredictOptions) {
		p.FrequencyPenalty = fp
	}
}

func SetPresencePenalty(pp float32) PredictOption {
	return func(p *PredictOptions) {
		p.PresencePenalty = pp
	}
}

// SetMirostat selects the mirostat mode (0 off, 1 or 2).
func SetMirostat(m int) PredictOption {
	return func(p *PredictOptions) {
		p.Mirostat = m
	}
}

// SetMirostatETA sets the mirostat learning rate.
func SetMirostatETA(me float32) PredictOption {
	return func(p *PredictOptions) {
		p.MirostatETA = me
	}
}

// SetMirostatTAU sets the mirostat target entropy.
func SetMirostatTAU(mt float32) PredictOption {
	return func(p *PredictOptions) {
		p.MirostatTAU = mt
	}
}

// SetLogitBias passes a logit bias spec such as "15043+1" through to the engine.
func SetLogitBias(lb string) PredictOption {
	return func(p *PredictOptions) {
		p.LogitBias = lb
	}
}

func SetTokenCallback(fn func(string) bool) PredictOption {
	return func(p *PredictOptions) {
		p.TokenCallback = fn
	}
}

// SetPathPromptCache sets the prompt cache file.
func SetPathPromptCache(f string) PredictOption {
	return func(p *PredictOptions) {
		p.PathPromptCache = f
	}
}

func SetMLock(b bool) PredictOption {
	return func(p *PredictOptions) {
		p.MLock = b
	}
}

func SetMemoryMap(b bool) PredictOption {
	return func(p *PredictOptions) {
		p.MMap = b
	}
}

func SetPredictionMainGPU(maingpu string) PredictOption {
	return func(p *PredictOptions) {
		p.MainGPU = maingpu
	}
}

func SetPredictionTensorSplit(tensorsplit string) PredictOption {
	return func(p *PredictOptions) {
		p.TensorSplit = tensorsplit
	}
}

var EnablePenalizeNL PredictOption = func(p *PredictOptions) {
	p.PenalizeNL = true
}

// EnablePromptCacheAll makes the prompt cache also store generated tokens.
var EnablePromptCacheAll PredictOption = func(p *PredictOptions) {
	p.PromptCacheAll = true
}

// EnablePromptCacheRO opens the prompt cache read-only.
var EnablePromptCacheRO PredictOption = func(p *PredictOptions) {
	p.PromptCacheRO = true
}

var EnableF16KV PredictOption = func(p *PredictOptions) {
	p.F16KV = true
}

var EnableDebugMode PredictOption = func(p *PredictOptions) {
	p.DebugMode = true
}

var IgnoreEOS PredictOption = func(p *PredictOptions) {
	p.IgnoreEOS = true
}
