package manager

import (
	"time"

	"go.uber.org/multierr"
)

// Unload initiates a graceful drain of a model instance and removes it.
// - Sets instance state to draining to reject new enqueues.
// - Waits up to drainTimeout for in-flight and queued requests to finish.
// - Closes the engine session and removes the instance entry.
// If the drain times out, the session is closed anyway; a call still running
// on it finishes first because the engine serialises Close behind it.
func (m *Manager) Unload(modelID string) error {
	if modelID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.Lock()
	inst := m.instances[modelID]
	if inst == nil {
		m.mu.Unlock()
		return ErrModelNotFound(modelID)
	}
	if inst.State == StateLoading {
		m.mu.Unlock()
		return tooBusyError{modelID: modelID}
	}
	inst.State = StateDraining
	m.mu.Unlock()
	m.publish(Event{Name: "unload_start", ModelID: modelID})

	m.drain(inst)

	m.mu.Lock()
	if m.instances[modelID] == inst {
		m.usedEstMB -= inst.EstVRAMMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
		delete(m.instances, modelID)
	}
	if m.cur != nil && m.cur.ID == modelID {
		m.cur = nil
	}
	loaded := len(m.instances)
	m.mu.Unlock()

	var err error
	if inst.Session != nil {
		err = inst.Session.Close()
	}
	setLoadedModels(loaded)
	m.log.Info().Str("model", modelID).Err(err).Msg("unloaded")
	m.publish(Event{Name: "unload_done", ModelID: modelID})
	return err
}

// drain waits until inst has no queued or in-flight work, or drainTimeout passes.
func (m *Manager) drain(inst *Instance) {
	deadline := time.Now().Add(m.drainTimeout)
	for {
		qlen := len(inst.queueCh)
		inflight := len(inst.genCh)
		if inflight == 0 && qlen == 0 {
			return
		}
		if time.Now().After(deadline) {
			m.log.Warn().Str("model", inst.ID).Int("inflight", inflight).Int("queue", qlen).Msg("drain timeout")
			m.publish(Event{Name: "unload_timeout", ModelID: inst.ID, Fields: map[string]any{"inflight": inflight, "queue": qlen}})
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close drains and closes every instance and rejects further work. Errors
// from individual sessions are combined. Calling Close again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	insts := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		// A loading instance is closed by EnsureInstance once its load returns.
		if inst.State == StateLoading {
			continue
		}
		inst.State = StateDraining
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	var errs error
	for _, inst := range insts {
		m.drain(inst)
		if inst.Session != nil {
			errs = multierr.Append(errs, inst.Session.Close())
		}
	}

	m.mu.Lock()
	m.instances = make(map[string]*Instance)
	m.usedEstMB = 0
	m.cur = nil
	m.mu.Unlock()
	setLoadedModels(0)
	m.publish(Event{Name: "manager_closed", Fields: map[string]any{"instances": len(insts)}})
	return errs
}
