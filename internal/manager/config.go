package manager

import (
	"time"

	"github.com/rs/zerolog"

	"llamad/pkg/llama"
	"llamad/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// ModelOptions is used for every model load; zero value means llama.DefaultModelOptions.
	ModelOptions *llama.ModelOptions
	// PredictDefaults is the base of every request; request fields override it.
	PredictDefaults *llama.PredictOptions
	// StateDir holds saved engine states; state endpoints fail with 400 when empty.
	StateDir  string
	Loader    Loader
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateLoading,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		stateDir:     cfg.StateDir,
		instances:    make(map[string]*Instance),
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if cfg.ModelOptions != nil {
		m.modelOpts = *cfg.ModelOptions
	} else {
		m.modelOpts = llama.NewModelOptions()
	}
	if cfg.PredictDefaults != nil {
		m.predictDefaults = *cfg.PredictDefaults
	} else {
		m.predictDefaults = llama.NewPredictOptions()
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	} else {
		m.publisher = noopPublisher{}
	}
	if cfg.Loader != nil {
		m.loader = cfg.Loader
	} else {
		m.loader = NewLlamaLoader(m.log)
	}
	m.startTime = time.Now()
	return m
}
