package manager

import (
	"context"

	"github.com/google/uuid"
)

// Switch kicks off an async model ensure and returns an operation ID. The
// outcome is published as a switch_done or switch_failed event carrying the
// id; callers can also poll Status().
func (m *Manager) Switch(ctx context.Context, modelID string) (string, error) {
	modelID, err := m.resolveModelID(modelID)
	if err != nil {
		return "", err
	}
	if _, ok := m.getModelByID(modelID); !ok {
		return "", ErrModelNotFound(modelID)
	}
	op := uuid.NewString()
	m.publish(Event{Name: "switch_start", ModelID: modelID, Fields: map[string]any{"op_id": op}})
	go func(opID string) {
		// Detached so the load outlives the request that asked for it.
		if err := m.EnsureInstance(context.Background(), modelID); err != nil {
			m.publish(Event{Name: "switch_failed", ModelID: modelID, Fields: map[string]any{"op_id": opID, "error": err.Error()}})
			return
		}
		m.publish(Event{Name: "switch_done", ModelID: modelID, Fields: map[string]any{"op_id": opID}})
	}(op)
	return op, nil
}
