package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"llamad/pkg/llama"
	"llamad/pkg/types"
)

// createModelFile writes a file of sizeMB megabytes so estimateVRAMMB sees a real size.
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	// write sizeMB megabytes (use 1MiB blocks)
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return p
}

// fakeSession stands in for a loaded engine.
type fakeSession struct {
	path       string
	tokens     []string
	output     string
	predictErr error
	panicMsg   string
	embeddings bool
	vector     []float32
	closeErr   error
	stateErr   error
	// block, when set, holds PredictContext after the tokens until it is closed or ctx is done.
	block chan struct{}

	mu        sync.Mutex
	lastPO    llama.PredictOptions
	savedTo   []string
	loadedFrm []string
	closed    atomic.Int32
}

func (s *fakeSession) PredictContext(ctx context.Context, text string, po *llama.PredictOptions) (string, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	s.lastPO = *po
	s.mu.Unlock()
	var b strings.Builder
	for _, tok := range s.tokens {
		if ctx.Err() != nil {
			break
		}
		b.WriteString(tok)
		if po.TokenCallback != nil && !po.TokenCallback(tok) {
			break
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return b.String(), err
	}
	if s.predictErr != nil {
		return "", s.predictErr
	}
	if s.output != "" {
		return s.output, nil
	}
	return b.String(), nil
}

func (s *fakeSession) Embeddings(text string, po *llama.PredictOptions) ([]float32, error) {
	return s.embed(po)
}

func (s *fakeSession) TokenEmbeddings(tokens []int32, po *llama.PredictOptions) ([]float32, error) {
	return s.embed(po)
}

func (s *fakeSession) embed(po *llama.PredictOptions) ([]float32, error) {
	if !s.embeddings {
		return []float32{}, llama.ErrEmbeddingsUnavailable
	}
	s.mu.Lock()
	s.lastPO = *po
	s.mu.Unlock()
	vec := s.vector
	if po.Tokens > 0 && len(vec) > po.Tokens {
		vec = vec[:po.Tokens]
	}
	return append([]float32(nil), vec...), nil
}

func (s *fakeSession) SaveState(dst string) error {
	if s.stateErr != nil {
		return s.stateErr
	}
	s.mu.Lock()
	s.savedTo = append(s.savedTo, dst)
	s.mu.Unlock()
	return os.WriteFile(dst, []byte("state"), 0o644)
}

func (s *fakeSession) LoadState(src string) error {
	if s.stateErr != nil {
		return s.stateErr
	}
	if _, err := os.Stat(src); err != nil {
		return &llama.StateIOError{Op: "load", Path: src, Code: 1}
	}
	s.mu.Lock()
	s.loadedFrm = append(s.loadedFrm, src)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) EmbeddingsEnabled() bool { return s.embeddings }

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return s.closeErr
}

func (s *fakeSession) closeCount() int { return int(s.closed.Load()) }

// fakeLoader hands out fakeSessions built by newSession.
type fakeLoader struct {
	newSession func(path string) *fakeSession
	err        error
	// gate, when set, holds every Load until it is closed.
	gate chan struct{}

	mu       sync.Mutex
	loads    map[string]int
	sessions []*fakeSession
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loads: make(map[string]int)}
}

func (l *fakeLoader) Load(path string, mo llama.ModelOptions) (Session, error) {
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[path]++
	if l.err != nil {
		return nil, l.err
	}
	var s *fakeSession
	if l.newSession != nil {
		s = l.newSession(path)
	} else {
		s = &fakeSession{tokens: []string{"a", "b", "c"}}
	}
	s.path = path
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLoader) loadCount(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[path]
}

func (l *fakeLoader) sessionFor(path string) *fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.sessions) - 1; i >= 0; i-- {
		if l.sessions[i].path == path {
			return l.sessions[i]
		}
	}
	return nil
}

func (l *fakeLoader) allSessions() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeSession(nil), l.sessions...)
}

// newTestManager builds a manager over one 1MB model per id.
func newTestManager(t *testing.T, loader *fakeLoader, cfg ManagerConfig, ids ...string) *Manager {
	t.Helper()
	dir := t.TempDir()
	for _, id := range ids {
		p := createModelFile(t, dir, id+".gguf", 1)
		cfg.Registry = append(cfg.Registry, types.Model{ID: id, Name: id, Path: p})
	}
	cfg.Loader = loader
	return NewWithConfig(cfg)
}

// errWriter fails every write.
type errWriter struct{}

var errWrite = errors.New("write failed")

func (errWriter) Write([]byte) (int, error) { return 0, errWrite }
