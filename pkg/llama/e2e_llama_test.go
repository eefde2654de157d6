//go:build llama

package llama

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These run against a real model: LLAMA_TEST_MODEL=/path/to/model.gguf go test -tags llama ./pkg/llama
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("LLAMA_TEST_MODEL")
	if p == "" {
		t.Skip("LLAMA_TEST_MODEL not set")
	}
	return p
}

func TestNative_LoadMissingModel(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.gguf"))
	if !IsLoadFailure(err) {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestNative_PredictHelloGreedy(t *testing.T) {
	e, err := New(testModelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	if e.ContextSize() != 512 {
		t.Fatalf("expected default context size 512, got %d", e.ContextSize())
	}

	var tokens int
	po := NewPredictOptions(SetTokens(32), SetSeed(1), SetThreads(4), SetTopK(1), SetTokenCallback(func(string) bool {
		tokens++
		return true
	}))
	out, err := e.Predict("Hello", &po)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty output")
	}
	if strings.HasPrefix(out, "Hello") || strings.HasPrefix(out, "\n") {
		t.Fatalf("output not trimmed: %q", out)
	}
	if tokens == 0 {
		t.Fatalf("expected streamed tokens")
	}
}

func TestNative_StopAfterFirstToken(t *testing.T) {
	e, err := New(testModelPath(t), SetContext(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	calls := 0
	po := NewPredictOptions(SetTokens(32), SetTokenCallback(func(string) bool {
		calls++
		return false
	}))
	if _, err := e.Predict("Once upon a time", &po); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one callback invocation, got %d", calls)
	}
}

func TestNative_Embeddings(t *testing.T) {
	e, err := New(testModelPath(t), EnableEmbeddings)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	vec, err := e.Embeddings("hello", nil)
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(vec) == 0 {
		t.Fatalf("expected non-empty embedding")
	}
}

func TestNative_SaveLoadStateFreshHandle(t *testing.T) {
	e, err := New(testModelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	dst := filepath.Join(t.TempDir(), "x.bin")
	if err := e.SaveState(dst); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := e.LoadState(dst); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat %s: %v", dst, err)
	}
	if fi.Size() == 0 {
		t.Fatalf("expected non-empty state file")
	}
}

func TestNative_SaveLoadStateAfterEval(t *testing.T) {
	e, err := New(testModelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	if err := e.Eval("hello", nil); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "state.bin")
	if err := e.SaveState(dst); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := e.LoadState(dst); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
}
