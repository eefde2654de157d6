package manager

import (
	"context"
	"time"

	"llamad/internal/common/fsutil"
	"llamad/pkg/types"
)

// SaveState writes the engine state of modelID to name under the state directory.
func (m *Manager) SaveState(ctx context.Context, modelID, name string) (types.StateResponse, error) {
	return m.stateOp(ctx, "save_state", modelID, name, func(s Session, path string) error {
		return s.SaveState(path)
	})
}

// LoadState restores the engine state of modelID from name under the state directory.
func (m *Manager) LoadState(ctx context.Context, modelID, name string) (types.StateResponse, error) {
	return m.stateOp(ctx, "load_state", modelID, name, func(s Session, path string) error {
		return s.LoadState(path)
	})
}

func (m *Manager) stateOp(ctx context.Context, op, modelID, name string, fn func(Session, string) error) (types.StateResponse, error) {
	if m.stateDir == "" {
		return types.StateResponse{}, ErrInvalidRequest("state directory not configured")
	}
	modelID, err := m.resolveModelID(modelID)
	if err != nil {
		return types.StateResponse{}, err
	}
	path, err := fsutil.ResolveUnder(m.stateDir, name)
	if err != nil {
		return types.StateResponse{}, ErrInvalidRequest(err.Error())
	}
	if op == "save_state" {
		if _, err := fsutil.EnsureDir(m.stateDir); err != nil {
			return types.StateResponse{}, err
		}
	}
	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return types.StateResponse{}, err
	}
	inst, release, err := m.acquire(ctx, modelID)
	if err != nil {
		return types.StateResponse{}, err
	}
	defer release()

	start := time.Now()
	err = fn(inst.Session, path)
	observeEngineCall(op, err, start)
	if err != nil {
		m.log.Warn().Str("model", modelID).Str("path", path).Err(err).Msg(op + " failed")
		return types.StateResponse{}, err
	}
	m.publish(Event{Name: op, ModelID: modelID, Fields: map[string]any{"path": path}})
	return types.StateResponse{Model: modelID, Name: name, Path: path}, nil
}
