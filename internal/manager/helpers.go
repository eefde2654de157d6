package manager

import (
	"os"

	"llamad/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Helper: estimate VRAM from the model file size in MB, never less than 1 so an
// unreadable file cannot bypass budget checks.
func (m *Manager) estimateVRAMMB(mdl types.Model) int {
	fi, err := os.Stat(mdl.Path)
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}
