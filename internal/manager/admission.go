package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, modelID string) (func(), error) {
	_, release, err := m.acquire(ctx, modelID)
	return release, err
}

// acquire is beginGeneration that also hands back the instance whose slot was
// taken. The instance's Session may only be used until release is called.
func (m *Manager) acquire(ctx context.Context, modelID string) (*Instance, func(), error) {
	noop := func() {}
	m.mu.RLock()
	inst := m.instances[modelID]
	m.mu.RUnlock()
	if inst == nil {
		return nil, noop, modelNotFoundError{id: modelID}
	}
	// If draining, reject new work to allow graceful shutdown/unload
	m.mu.RLock()
	draining := inst.State == StateDraining
	m.mu.RUnlock()
	if draining {
		return nil, noop, tooBusyError{modelID: modelID}
	}

	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return nil, noop, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case inst.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return nil, noop, ctx.Err()
	case <-timer.C:
		return nil, noop, tooBusyError{modelID: modelID}
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-inst.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, noop, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case inst.genCh <- struct{}{}:
	case <-ctx.Done():
		return nil, noop, ctx.Err()
	case <-timer2.C:
		return nil, noop, tooBusyError{modelID: modelID}
	}

	m.mu.Lock()
	// The instance may have been evicted or unloaded while we waited.
	if m.instances[modelID] != inst || inst.State != StateReady || inst.Session == nil {
		m.mu.Unlock()
		<-inst.genCh
		return nil, noop, tooBusyError{modelID: modelID}
	}
	acquired = true
	inst.LastUsed = time.Now()
	m.mu.Unlock()
	return inst, func() { <-inst.genCh; <-inst.queueCh }, nil
}
