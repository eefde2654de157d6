package manager

// evictUntilFits closes LRU idle instances until requiredMB fits budget +
// margin. It fails with a budget error when nothing idle is left to evict.
func (m *Manager) evictUntilFits(requiredMB int) error {
	for {
		m.mu.Lock()
		fits := (m.usedEstMB + requiredMB + m.marginMB) <= m.budgetMB
		if fits {
			m.mu.Unlock()
			return nil
		}
		// Pick LRU idle instance (ready, no in-flight and no queued requests)
		var lru *Instance
		for _, inst := range m.instances {
			if inst.State != StateReady || len(inst.genCh) > 0 || len(inst.queueCh) > 0 {
				continue
			}
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		if lru == nil {
			used := m.usedEstMB
			m.mu.Unlock()
			return budgetExceededError{requiredMB: requiredMB + used + m.marginMB, budgetMB: m.budgetMB}
		}
		delete(m.instances, lru.ID)
		m.usedEstMB -= lru.EstVRAMMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
		if m.cur != nil && m.cur.ID == lru.ID {
			m.cur = nil
		}
		loaded := len(m.instances)
		m.mu.Unlock()

		if lru.Session != nil {
			if err := lru.Session.Close(); err != nil {
				m.log.Warn().Str("model", lru.ID).Err(err).Msg("close evicted instance")
			}
		}
		m.evictionsTotal.Add(1)
		setLoadedModels(loaded)
		m.log.Info().Str("model", lru.ID).Int("freed_mb", lru.EstVRAMMB).Msg("evicted")
		m.publish(Event{Name: "evict", ModelID: lru.ID, Fields: map[string]any{"freed_mb": lru.EstVRAMMB}})
	}
}
