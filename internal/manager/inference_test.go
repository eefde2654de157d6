package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"llamad/pkg/llama"
	"llamad/pkg/types"
)

type ndjsonLine struct {
	Token        string `json:"token"`
	Done         bool   `json:"done"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

func parseLines(t *testing.T, b []byte) []ndjsonLine {
	t.Helper()
	var out []ndjsonLine
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var l ndjsonLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, l)
	}
	return out
}

func TestInferStreamsTokensAndFinalLine(t *testing.T) {
	loader := newFakeLoader()
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	var buf bytes.Buffer
	flushes := 0
	err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "hi"}, &buf, func() { flushes++ })
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	lines := parseLines(t, buf.Bytes())
	if len(lines) != 4 {
		t.Fatalf("expected 3 token lines + final, got %d: %s", len(lines), buf.String())
	}
	for i, want := range []string{"a", "b", "c"} {
		if lines[i].Token != want || lines[i].Done {
			t.Fatalf("line %d: %+v", i, lines[i])
		}
	}
	final := lines[3]
	if !final.Done || final.Content != "abc" || final.FinishReason != "stop" {
		t.Fatalf("unexpected final line: %+v", final)
	}
	if final.Usage.CompletionTokens != 3 || final.Usage.TotalTokens != 3 {
		t.Fatalf("unexpected usage: %+v", final.Usage)
	}
	if flushes != 4 {
		t.Fatalf("expected a flush per line, got %d", flushes)
	}
}

func TestInferUsesTrimmedContentFromEngine(t *testing.T) {
	loader := newFakeLoader()
	loader.newSession = func(string) *fakeSession {
		return &fakeSession{tokens: []string{"x"}, output: "trimmed"}
	}
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	var buf bytes.Buffer
	if err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, &buf, nil); err != nil {
		t.Fatalf("infer: %v", err)
	}
	lines := parseLines(t, buf.Bytes())
	if got := lines[len(lines)-1].Content; got != "trimmed" {
		t.Fatalf("expected engine output as content, got %q", got)
	}
}

func TestInferFinishReasonLength(t *testing.T) {
	m := newTestManager(t, newFakeLoader(), ManagerConfig{}, "m1")
	var buf bytes.Buffer
	if err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p", MaxTokens: 3}, &buf, nil); err != nil {
		t.Fatalf("infer: %v", err)
	}
	lines := parseLines(t, buf.Bytes())
	if got := lines[len(lines)-1].FinishReason; got != "length" {
		t.Fatalf("expected finish_reason=length, got %q", got)
	}
}

func TestInferCancelledMidStream(t *testing.T) {
	loader := newFakeLoader()
	block := make(chan struct{})
	loader.newSession = func(string) *fakeSession {
		return &fakeSession{tokens: []string{"a"}, block: block}
	}
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- m.Infer(ctx, types.InferRequest{Model: "m1", Prompt: "p"}, &buf, nil) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("infer did not return after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	lines := parseLines(t, buf.Bytes())
	if len(lines) != 2 || !lines[1].Done || lines[1].FinishReason != "cancelled" {
		t.Fatalf("expected token + cancelled final line, got %s", buf.String())
	}
}

func TestInferFlusherPanicRecovered(t *testing.T) {
	m := newTestManager(t, newFakeLoader(), ManagerConfig{}, "m1")
	var buf bytes.Buffer
	err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, &buf, func() { panic("boom") })
	if err != nil {
		t.Fatalf("flusher panic must not fail infer: %v", err)
	}
	if len(parseLines(t, buf.Bytes())) != 4 {
		t.Fatalf("expected full stream despite flusher panic: %s", buf.String())
	}
}

func TestInferSessionPanicBecomesError(t *testing.T) {
	loader := newFakeLoader()
	loader.newSession = func(string) *fakeSession { return &fakeSession{panicMsg: "native exploded"} }
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	var buf bytes.Buffer
	err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, &buf, nil)
	if err == nil || !strings.Contains(err.Error(), "native exploded") {
		t.Fatalf("expected panic turned into error, got %v", err)
	}
	// The slot must have been released.
	if err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, &buf, nil); err == nil {
		t.Fatalf("expected second panic error")
	}
	m.mu.RLock()
	inst := m.instances["m1"]
	m.mu.RUnlock()
	if len(inst.genCh) != 0 || len(inst.queueCh) != 0 {
		t.Fatalf("slots leaked: gen=%d queue=%d", len(inst.genCh), len(inst.queueCh))
	}
}

func TestInferWriterErrorStopsGeneration(t *testing.T) {
	loader := newFakeLoader()
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, errWriter{}, nil)
	if !errors.Is(err, errWrite) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestInferPredictionErrorReturned(t *testing.T) {
	loader := newFakeLoader()
	loader.newSession = func(string) *fakeSession {
		return &fakeSession{predictErr: &llama.PredictionError{Op: "predict", Code: 1}}
	}
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	var buf bytes.Buffer
	err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "p"}, &buf, nil)
	if !llama.IsPredictionFailure(err) {
		t.Fatalf("expected prediction failure, got %v", err)
	}
	for _, l := range parseLines(t, buf.Bytes()) {
		if l.Done {
			t.Fatalf("no final line expected on prediction failure")
		}
	}
}

func TestInferNoDefaultModel(t *testing.T) {
	m := newTestManager(t, newFakeLoader(), ManagerConfig{}, "m1")
	var buf bytes.Buffer
	err := m.Infer(context.Background(), types.InferRequest{Prompt: "p"}, &buf, nil)
	if !IsModelNotFound(err) {
		t.Fatalf("expected model not found without default, got %v", err)
	}
}

func TestInferUsesDefaultModel(t *testing.T) {
	m := newTestManager(t, newFakeLoader(), ManagerConfig{DefaultModel: "m1"}, "m1")
	var buf bytes.Buffer
	if err := m.Infer(context.Background(), types.InferRequest{Prompt: "p"}, &buf, nil); err != nil {
		t.Fatalf("infer: %v", err)
	}
}

func TestInferRejectsEmptyPrompt(t *testing.T) {
	loader := newFakeLoader()
	m := newTestManager(t, loader, ManagerConfig{}, "m1")
	var buf bytes.Buffer
	if err := m.Infer(context.Background(), types.InferRequest{Model: "m1", Prompt: "  "}, &buf, nil); !IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(loader.allSessions()) != 0 {
		t.Fatalf("empty prompt must not load a model")
	}
}

func TestPredictOptionsOverlay(t *testing.T) {
	defaults := llama.NewPredictOptions(llama.SetTokens(64), llama.SetTemperature(0.5), llama.SetStopWords("END"))
	m := NewWithConfig(ManagerConfig{PredictDefaults: &defaults, Loader: newFakeLoader()})

	po := m.predictOptions(types.InferRequest{})
	if po.Tokens != 64 || po.Temperature != 0.5 || len(po.StopPrompts) != 1 {
		t.Fatalf("defaults not applied: %+v", po)
	}
	po.StopPrompts[0] = "changed"
	if m.predictDefaults.StopPrompts[0] != "END" {
		t.Fatalf("overlay must not alias default stop words")
	}

	po = m.predictOptions(types.InferRequest{MaxTokens: 8, Temperature: 0.9, TopK: 7, Seed: 42, Stop: []string{"\n"}, IgnoreEOS: true})
	if po.Tokens != 8 || po.TopK != 7 || po.Seed != 42 || !po.IgnoreEOS {
		t.Fatalf("request fields not applied: %+v", po)
	}
	if po.Temperature < 0.89 || po.Temperature > 0.91 {
		t.Fatalf("temperature not applied: %v", po.Temperature)
	}
	if len(po.StopPrompts) != 1 || po.StopPrompts[0] != "\n" {
		t.Fatalf("stop words not replaced: %v", po.StopPrompts)
	}
}

func TestTokenLineJSONEscapes(t *testing.T) {
	line := tokenLineJSON("a\"b\n")
	var v struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Token != "a\"b\n" {
		t.Fatalf("round trip mismatch: %q", v.Token)
	}
	if line[len(line)-1] != '\n' {
		t.Fatalf("line must end with newline")
	}
}
