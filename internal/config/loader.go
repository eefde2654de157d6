package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llamad/pkg/llama"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	StateDir     string `json:"state_dir" yaml:"state_dir" toml:"state_dir"`
	VRAMBudgetMB int    `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb"`
	VRAMMarginMB int    `json:"vram_margin_mb" yaml:"vram_margin_mb" toml:"vram_margin_mb"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	MaxQueueDepth       int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds      int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	DrainTimeoutSeconds int   `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds"`
	MaxBodyBytes        int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int64 `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	CORS    CORSConfig    `json:"cors" yaml:"cors" toml:"cors"`
	Model   ModelConfig   `json:"model" yaml:"model" toml:"model"`
	Predict PredictConfig `json:"predict" yaml:"predict" toml:"predict"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// ModelConfig is applied on top of llama.DefaultModelOptions when a model is loaded.
type ModelConfig struct {
	ContextSize int    `json:"context_size" yaml:"context_size" toml:"context_size"`
	Seed        int    `json:"seed" yaml:"seed" toml:"seed"`
	NBatch      int    `json:"n_batch" yaml:"n_batch" toml:"n_batch"`
	F16Memory   bool   `json:"f16_memory" yaml:"f16_memory" toml:"f16_memory"`
	MLock       bool   `json:"mlock" yaml:"mlock" toml:"mlock"`
	MMap        *bool  `json:"mmap" yaml:"mmap" toml:"mmap"`
	LowVRAM     bool   `json:"low_vram" yaml:"low_vram" toml:"low_vram"`
	Embeddings  bool   `json:"embeddings" yaml:"embeddings" toml:"embeddings"`
	NGPULayers  int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	MainGPU     string `json:"main_gpu" yaml:"main_gpu" toml:"main_gpu"`
	TensorSplit string `json:"tensor_split" yaml:"tensor_split" toml:"tensor_split"`
	NUMA        bool   `json:"numa" yaml:"numa" toml:"numa"`
}

// PredictConfig is applied on top of llama.DefaultOptions for every request.
// Seed is a pointer because zero is a valid seed.
type PredictConfig struct {
	Seed              *int     `json:"seed" yaml:"seed" toml:"seed"`
	Threads           int      `json:"threads" yaml:"threads" toml:"threads"`
	Tokens            int      `json:"tokens" yaml:"tokens" toml:"tokens"`
	TopK              int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP              float32  `json:"top_p" yaml:"top_p" toml:"top_p"`
	Temperature       float32  `json:"temperature" yaml:"temperature" toml:"temperature"`
	Penalty           float32  `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Repeat            int      `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	Batch             int      `json:"batch" yaml:"batch" toml:"batch"`
	NKeep             int      `json:"n_keep" yaml:"n_keep" toml:"n_keep"`
	Stop              []string `json:"stop" yaml:"stop" toml:"stop"`
	IgnoreEOS         bool     `json:"ignore_eos" yaml:"ignore_eos" toml:"ignore_eos"`
	F16KV             bool     `json:"f16_kv" yaml:"f16_kv" toml:"f16_kv"`
	TailFreeSamplingZ float32  `json:"tfs_z" yaml:"tfs_z" toml:"tfs_z"`
	TypicalP          float32  `json:"typical_p" yaml:"typical_p" toml:"typical_p"`
	FrequencyPenalty  float32  `json:"frequency_penalty" yaml:"frequency_penalty" toml:"frequency_penalty"`
	PresencePenalty   float32  `json:"presence_penalty" yaml:"presence_penalty" toml:"presence_penalty"`
	Mirostat          int      `json:"mirostat" yaml:"mirostat" toml:"mirostat"`
	MirostatETA       float32  `json:"mirostat_eta" yaml:"mirostat_eta" toml:"mirostat_eta"`
	MirostatTAU       float32  `json:"mirostat_tau" yaml:"mirostat_tau" toml:"mirostat_tau"`
	PenalizeNL        bool     `json:"penalize_nl" yaml:"penalize_nl" toml:"penalize_nl"`
	LogitBias         string   `json:"logit_bias" yaml:"logit_bias" toml:"logit_bias"`
	PathPromptCache   string   `json:"prompt_cache" yaml:"prompt_cache" toml:"prompt_cache"`
	PromptCacheAll    bool     `json:"prompt_cache_all" yaml:"prompt_cache_all" toml:"prompt_cache_all"`
	PromptCacheRO     bool     `json:"prompt_cache_ro" yaml:"prompt_cache_ro" toml:"prompt_cache_ro"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// MaxWait returns MaxWaitSeconds as a duration; zero when unset.
func (c Config) MaxWait() time.Duration { return time.Duration(c.MaxWaitSeconds) * time.Second }

func (c Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// ModelOptions maps the model section onto llama model options.
func (c Config) ModelOptions() llama.ModelOptions {
	m := c.Model
	opts := []llama.ModelOption{}
	if m.ContextSize > 0 {
		opts = append(opts, llama.SetContext(m.ContextSize))
	}
	if m.Seed != 0 {
		opts = append(opts, llama.SetModelSeed(m.Seed))
	}
	if m.NBatch > 0 {
		opts = append(opts, llama.SetNBatch(m.NBatch))
	}
	if m.NGPULayers > 0 {
		opts = append(opts, llama.SetGPULayers(m.NGPULayers))
	}
	if m.MainGPU != "" {
		opts = append(opts, llama.SetMainGPU(m.MainGPU))
	}
	if m.TensorSplit != "" {
		opts = append(opts, llama.SetTensorSplit(m.TensorSplit))
	}
	if m.MMap != nil {
		opts = append(opts, llama.SetMMap(*m.MMap))
	}
	if m.F16Memory {
		opts = append(opts, llama.EnableF16Memory)
	}
	if m.MLock {
		opts = append(opts, llama.EnableMLock)
	}
	if m.LowVRAM {
		opts = append(opts, llama.EnableLowVRAM)
	}
	if m.Embeddings {
		opts = append(opts, llama.EnableEmbeddings)
	}
	if m.NUMA {
		opts = append(opts, llama.EnableNUMA)
	}
	return llama.NewModelOptions(opts...)
}

// PredictDefaults maps the predict section onto llama prediction options.
func (c Config) PredictDefaults() llama.PredictOptions {
	p := c.Predict
	po := llama.NewPredictOptions()
	if p.Seed != nil {
		po.Seed = *p.Seed
	}
	setInt(&po.Threads, p.Threads)
	setInt(&po.Tokens, p.Tokens)
	setInt(&po.TopK, p.TopK)
	setInt(&po.Repeat, p.Repeat)
	setInt(&po.Batch, p.Batch)
	setInt(&po.NKeep, p.NKeep)
	setInt(&po.Mirostat, p.Mirostat)
	setFloat(&po.TopP, p.TopP)
	setFloat(&po.Temperature, p.Temperature)
	setFloat(&po.Penalty, p.Penalty)
	setFloat(&po.TailFreeSamplingZ, p.TailFreeSamplingZ)
	setFloat(&po.TypicalP, p.TypicalP)
	setFloat(&po.FrequencyPenalty, p.FrequencyPenalty)
	setFloat(&po.PresencePenalty, p.PresencePenalty)
	setFloat(&po.MirostatETA, p.MirostatETA)
	setFloat(&po.MirostatTAU, p.MirostatTAU)
	if len(p.Stop) > 0 {
		po.StopPrompts = append([]string(nil), p.Stop...)
	}
	po.IgnoreEOS = p.IgnoreEOS
	po.F16KV = p.F16KV
	po.PenalizeNL = p.PenalizeNL
	po.LogitBias = p.LogitBias
	po.PathPromptCache = p.PathPromptCache
	po.PromptCacheAll = p.PromptCacheAll
	po.PromptCacheRO = p.PromptCacheRO
	return po
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float32, v float32) {
	if v != 0 {
		*dst = v
	}
}
