package manager

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"llamad/pkg/llama"
)

func TestStatusCountsWarmupAndDraining(t *testing.T) {
	loader := newFakeLoader()
	m := newTestManager(t, loader, ManagerConfig{BudgetMB: 64, MarginMB: 4}, "a", "b")
	inst := readyInstance(t, m, "b")
	m.mu.Lock()
	inst.State = StateDraining
	m.instances["a"] = &Instance{ID: "a", State: StateLoading, genCh: make(chan struct{}, 1), queueCh: make(chan struct{}, 2)}
	m.mu.Unlock()

	st := m.Status()
	if st.WarmupsInProgress != 1 || st.DrainingCount != 1 {
		t.Fatalf("expected 1 warmup and 1 draining, got %+v", st)
	}
	if st.BudgetMB != 64 || st.MarginMB != 4 || st.UsedMB != 1 {
		t.Fatalf("unexpected budget fields: %+v", st)
	}
	if len(st.Instances) != 2 || st.Instances[0].ModelID != "a" || st.Instances[1].ModelID != "b" {
		t.Fatalf("instances must be sorted by id: %+v", st.Instances)
	}
	if st.Instances[1].MaxQueueDepth != defaultMaxQueueDepth {
		t.Fatalf("expected default queue depth, got %d", st.Instances[1].MaxQueueDepth)
	}
	if st.ServerTimeUnix == 0 || st.LoadsTotal != 1 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestStatusReportsEmbeddings(t *testing.T) {
	m := newTestManager(t, embeddingLoader(), ManagerConfig{}, "m1")
	readyInstance(t, m, "m1")
	st := m.Status()
	if len(st.Instances) != 1 || !st.Instances[0].Embeddings {
		t.Fatalf("expected embeddings flag, got %+v", st.Instances)
	}
}

func TestSwitchLoadsInBackground(t *testing.T) {
	pub := NewMemoryPublisher(0)
	m := newTestManager(t, newFakeLoader(), ManagerConfig{Publisher: pub}, "m1")
	op, err := m.Switch(context.Background(), "m1")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if _, err := uuid.Parse(op); err != nil {
		t.Fatalf("op id %q is not a uuid: %v", op, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !m.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("switch never loaded the model")
		}
		time.Sleep(5 * time.Millisecond)
	}
	var done bool
	for time.Now().Before(deadline) && !done {
		for _, e := range pub.Events() {
			if e.Name == "switch_done" && e.Fields["op_id"] == op {
				done = true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !done {
		t.Fatalf("expected switch_done with op id, got %v", pub.Names())
	}
}

func TestSwitchUnknownModel(t *testing.T) {
	m := newTestManager(t, newFakeLoader(), ManagerConfig{}, "m1")
	if _, err := m.Switch(context.Background(), "nope"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Switch(context.Background(), ""); !IsModelNotFound(err) {
		t.Fatalf("expected not found without default, got %v", err)
	}
}

func TestSwitchFailurePublished(t *testing.T) {
	loader := newFakeLoader()
	loader.err = &llama.LoadError{Path: "m1"}
	pub := NewMemoryPublisher(0)
	m := newTestManager(t, loader, ManagerConfig{Publisher: pub}, "m1")
	op, err := m.Switch(context.Background(), "m1")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range pub.Events() {
			if e.Name == "switch_failed" && e.Fields["op_id"] == op {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected switch_failed, got %v", pub.Names())
}

func TestMemoryPublisherLimit(t *testing.T) {
	p := NewMemoryPublisher(2)
	for _, n := range []string{"a", "b", "c"} {
		p.Publish(Event{Name: n})
	}
	got := p.Names()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected newest two events, got %v", got)
	}
}

func TestMultiPublisherFansOut(t *testing.T) {
	a, b := NewMemoryPublisher(0), NewMemoryPublisher(0)
	MultiPublisher{a, nil, b}.Publish(Event{Name: "x"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both publishers to receive the event")
	}
}

func TestEngineCallMetrics(t *testing.T) {
	before := testutil.ToFloat64(engineCallsTotal.WithLabelValues("load", "ok"))
	tokensBefore := testutil.ToFloat64(engineTokensStreamed)
	m := newTestManager(t, newFakeLoader(), ManagerConfig{}, "m1")
	readyInstance(t, m, "m1")
	if got := testutil.ToFloat64(engineCallsTotal.WithLabelValues("load", "ok")) - before; got != 1 {
		t.Fatalf("expected one ok load, got %v", got)
	}
	if got := testutil.ToFloat64(engineLoadedModels); got != 1 {
		t.Fatalf("expected loaded_models=1, got %v", got)
	}
	addStreamedTokens(3)
	addStreamedTokens(0)
	if got := testutil.ToFloat64(engineTokensStreamed) - tokensBefore; got != 3 {
		t.Fatalf("expected 3 streamed tokens, got %v", got)
	}
}

func TestCallResultLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "cancelled"},
		{&llama.LoadError{Path: "x"}, "load_error"},
		{&llama.PredictionError{Op: "predict", Code: 1}, "prediction_error"},
		{&llama.DecodeError{Op: "predict"}, "decode_error"},
		{&llama.StateIOError{Op: "load", Path: "x", Code: 1}, "state_error"},
		{llama.ErrNativeUnavailable, "unavailable"},
		{ErrInvalidRequest("bad"), "invalid"},
		{llama.ErrClosed, "error"},
	}
	for _, c := range cases {
		if got := callResult(c.err); got != c.want {
			t.Fatalf("callResult(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
