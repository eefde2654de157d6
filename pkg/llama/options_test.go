package llama

import "testing"

func TestNewPredictOptions_Defaults(t *testing.T) {
	po := NewPredictOptions()
	if po.Seed != -1 || po.Threads != 4 || po.Tokens != 128 || po.TopK != 40 {
		t.Fatalf("unexpected integer defaults: %+v", po)
	}
	if po.TopP != 0.95 || po.Temperature != 0.8 || po.Penalty != 1.1 {
		t.Fatalf("unexpected sampling defaults: %+v", po)
	}
	if po.Repeat != 64 || po.Batch != 8 || po.NKeep != 64 {
		t.Fatalf("unexpected batch defaults: %+v", po)
	}
	if po.TailFreeSamplingZ != 1 || po.TypicalP != 1 || po.MirostatETA != 0.1 || po.MirostatTAU != 5 {
		t.Fatalf("unexpected mirostat/tfs defaults: %+v", po)
	}
	if po.StopPrompts != nil || po.TokenCallback != nil {
		t.Fatalf("expected no stops and no callback")
	}
}

func TestNewModelOptions_Defaults(t *testing.T) {
	mo := NewModelOptions()
	if mo.ContextSize != 512 || !mo.MMap || mo.Embeddings || mo.NGPULayers != 0 {
		t.Fatalf("unexpected model defaults: %+v", mo)
	}
}

func TestModelOptions_Apply(t *testing.T) {
	mo := NewModelOptions(SetContext(2048), EnableEmbeddings, SetGPULayers(10), SetMMap(false),
		SetTensorSplit("0.5,0.5"), SetMainGPU("1"), EnableNUMA, EnableLowVRAM, SetNBatch(16), SetModelSeed(7))
	if mo.ContextSize != 2048 || !mo.Embeddings || mo.NGPULayers != 10 || mo.MMap {
		t.Fatalf("options not applied: %+v", mo)
	}
	if mo.TensorSplit != "0.5,0.5" || mo.MainGPU != "1" || !mo.NUMA || !mo.LowVRAM || mo.NBatch != 16 || mo.Seed != 7 {
		t.Fatalf("options not applied: %+v", mo)
	}
	// the package defaults must not be mutated by applying options
	if DefaultModelOptions.ContextSize != 512 || DefaultModelOptions.Embeddings {
		t.Fatalf("DefaultModelOptions mutated: %+v", DefaultModelOptions)
	}
}

func TestPredictOptions_LastWins(t *testing.T) {
	po := NewPredictOptions(SetTokens(10), SetTopK(5), SetTokens(20))
	if po.Tokens != 20 || po.TopK != 5 {
		t.Fatalf("expected later option to win; got %+v", po)
	}
}

func TestSetStopWords_CopiesInput(t *testing.T) {
	in := []string{"a", "b"}
	po := NewPredictOptions(SetStopWords(in...))
	in[0] = "z"
	if po.StopPrompts[0] != "a" || po.StopPrompts[1] != "b" {
		t.Fatalf("stop words aliased caller slice: %v", po.StopPrompts)
	}
}

func TestWithPredictOptions_Replaces(t *testing.T) {
	base := PredictOptions{Tokens: 3, Threads: 1}
	po := NewPredictOptions(WithPredictOptions(base), SetTopK(2))
	if po.Tokens != 3 || po.Threads != 1 || po.TopK != 2 || po.Seed != 0 {
		t.Fatalf("unexpected options: %+v", po)
	}
}
