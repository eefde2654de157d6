package manager

import (
	"context"
	"time"
)

// EnsureInstance makes sure modelID is loaded and ready, evicting idle
// instances first when a VRAM budget is configured. Concurrent callers for the
// same model share one load. An empty modelID means the default model, and is
// a no-op when there is none.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return nil
		}
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return errManagerClosed
		}
		inst := m.instances[modelID]
		if inst == nil {
			m.mu.Unlock()
			break
		}
		switch inst.State {
		case StateReady:
			inst.LastUsed = time.Now()
			m.mu.Unlock()
			return nil
		case StateDraining:
			m.mu.Unlock()
			return tooBusyError{modelID: modelID}
		}
		loading := inst.loading
		m.mu.Unlock()
		select {
		case <-loading:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.RLock()
		lerr := inst.loadErr
		m.mu.RUnlock()
		if lerr != nil {
			return lerr
		}
	}

	m.log.Debug().Str("model", modelID).Msg("ensure start")
	m.publish(Event{Name: "ensure_start", ModelID: modelID})

	mdl, ok := m.getModelByID(modelID)
	if !ok {
		m.publish(Event{Name: "ensure_model_not_found", ModelID: modelID})
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateVRAMMB(mdl)

	// Evict until it fits budget + margin, if budget configured
	if m.budgetMB > 0 {
		if err := m.evictUntilFits(reqMB); err != nil {
			m.log.Warn().Str("model", modelID).Err(err).Msg("ensure budget fail")
			m.publish(Event{Name: "ensure_budget_fail", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errManagerClosed
	}
	if m.instances[modelID] != nil {
		// Another caller started loading while we were evicting.
		m.mu.Unlock()
		return m.EnsureInstance(ctx, modelID)
	}
	inst := &Instance{
		ID:        modelID,
		State:     StateLoading,
		LastUsed:  time.Now(),
		EstVRAMMB: reqMB,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, m.maxQueueDepth),
		loading:   make(chan struct{}),
	}
	m.instances[modelID] = inst
	m.usedEstMB += reqMB
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	// The native load cannot be interrupted, so ctx is not consulted here.
	sess, err := m.loader.Load(mdl.Path, m.modelOpts)
	observeEngineCall("load", err, startTs)

	m.mu.Lock()
	if err == nil && m.closed {
		err = errManagerClosed
		defer func() { _ = sess.Close() }()
	}
	if err != nil {
		delete(m.instances, modelID)
		m.usedEstMB -= reqMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
		inst.loadErr = err
		m.state = StateError
		m.err = err.Error()
		close(inst.loading)
		m.mu.Unlock()
		m.log.Error().Str("model", modelID).Str("path", mdl.Path).Err(err).Msg("model load failed")
		m.publish(Event{Name: "ensure_load_error", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		return err
	}
	inst.Session = sess
	inst.State = StateReady
	inst.LastUsed = time.Now()
	m.cur = &ModelInfo{ID: modelID, Name: mdl.Name, Path: mdl.Path, Quant: mdl.Quant, Family: mdl.Family}
	m.state = StateReady
	m.err = ""
	close(inst.loading)
	loaded := len(m.instances)
	m.mu.Unlock()

	m.loadsTotal.Add(1)
	setLoadedModels(loaded)
	durMS := int(time.Since(startTs) / time.Millisecond)
	m.log.Info().Str("model", modelID).Int("est_vram_mb", reqMB).Int("dur_ms", durMS).Msg("model ready")
	m.publish(Event{Name: "ensure_ready", ModelID: modelID, Fields: map[string]any{"dur_ms": durMS}})
	return nil
}

// EnsureModel is EnsureInstance for callers that only care about the current
// model; it keeps the older single-model entry point.
func (m *Manager) EnsureModel(ctx context.Context, modelID string) error {
	if modelID == "" {
		return nil
	}
	return m.EnsureInstance(ctx, modelID)
}
