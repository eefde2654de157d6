package llama

import (
	"os"
	"sync"
	"unsafe"
)

type fakeModel struct {
	path string
	mo   ModelOptions
}

// fakeParams is the ParamBlock handed out by fakeBackend.
type fakeParams struct {
	b        *fakeBackend
	spec     ParamSpec
	released bool
}

func (p *fakeParams) Release() {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if p.released {
		p.b.doubleRelease++
		return
	}
	p.released = true
	p.b.live--
}

// fakeBackend stands in for libbinding. A model loads when its path exists on
// disk. Predict streams tokens through the registry and returns output.
type fakeBackend struct {
	mu  sync.Mutex
	reg *Registry

	models map[uintptr]*fakeModel
	freed  map[uintptr]int

	specs         []ParamSpec
	live          int
	allocated     int
	doubleRelease int
	nativeCalls   int

	tokens      []string
	output      string
	rawOutput   []byte
	predictRC   int
	evalRC      int
	embedRC     int
	loadStateRC int
	embedding   []float32
	gotTokens   []int32
	gotDebug    bool
	streamed    []string
	skipSave    bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		reg:       NewRegistry(),
		models:    make(map[uintptr]*fakeModel),
		freed:     make(map[uintptr]int),
		embedding: []float32{0.1, 0.2, 0.3, 0.4},
	}
}

func (b *fakeBackend) Callbacks() *Registry { return b.reg }

func (b *fakeBackend) LoadModel(path string, mo ModelOptions) Handle {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m := &fakeModel{path: path, mo: mo}
	h := Handle(unsafe.Pointer(m))
	b.mu.Lock()
	b.models[handleKey(h)] = m
	b.mu.Unlock()
	return h
}

func (b *fakeBackend) FreeModel(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freed[handleKey(h)]++
	delete(b.models, handleKey(h))
}

func (b *fakeBackend) freeCount(h Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freed[handleKey(h)]
}

func (b *fakeBackend) SaveState(h Handle, path, mode string) {
	if b.skipSave {
		return
	}
	_ = os.WriteFile(path, []byte("state:"+mode), 0o644)
}

func (b *fakeBackend) LoadState(h Handle, path, mode string) int {
	if b.loadStateRC != 0 {
		return b.loadStateRC
	}
	if _, err := os.Stat(path); err != nil {
		return 1
	}
	return 0
}

func (b *fakeBackend) AllocateParams(spec ParamSpec) ParamBlock {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs = append(b.specs, spec)
	b.live++
	b.allocated++
	return &fakeParams{b: b, spec: spec}
}

func (b *fakeBackend) lastSpec() ParamSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.specs[len(b.specs)-1]
}

func (b *fakeBackend) liveBlocks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

func (b *fakeBackend) Predict(pb ParamBlock, h Handle, debug bool) ([]byte, int) {
	b.nativeCalls++
	b.gotDebug = debug
	for _, t := range b.tokens {
		if !b.reg.Dispatch(h, []byte(t)) {
			break
		}
		b.streamed = append(b.streamed, t)
	}
	if b.predictRC != 0 {
		return nil, b.predictRC
	}
	if b.rawOutput != nil {
		return b.rawOutput, 0
	}
	return []byte(b.output), 0
}

func (b *fakeBackend) Eval(pb ParamBlock, h Handle) int {
	b.nativeCalls++
	return b.evalRC
}

func (b *fakeBackend) Embeddings(pb ParamBlock, h Handle) ([]float32, int) {
	b.nativeCalls++
	if b.embedRC != 0 {
		return nil, b.embedRC
	}
	return b.embedding, 0
}

func (b *fakeBackend) TokenEmbeddings(pb ParamBlock, h Handle, tokens []int32) ([]float32, int) {
	b.nativeCalls++
	b.gotTokens = append([]int32(nil), tokens...)
	if b.embedRC != 0 {
		return nil, b.embedRC
	}
	return b.embedding, 0
}
