package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llamad/internal/common/fsutil"
	"llamad/pkg/types"
)

// DefaultExtensions are the model file suffixes LoadDir picks up.
var DefaultExtensions = []string{".gguf", ".bin"}

// Scanner discovers model files in a directory by extension.
type Scanner struct {
	exts []string
}

// NewScanner matches any of exts, compared case-insensitively.
func NewScanner(exts ...string) *Scanner {
	s := &Scanner{}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.exts = append(s.exts, e)
	}
	return s
}

// NewGGUFScanner matches *.gguf only.
func NewGGUFScanner() *Scanner { return NewScanner(".gguf") }

func (s *Scanner) match(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan lists matching files in dir, sorted by filename. ID is the full
// filename (including extension); Path is the absolute file path. The quant
// and family are guessed from the filename when it follows the usual naming.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !s.match(e.Name()) {
			continue
		}
		name := e.Name()
		models = append(models, types.Model{
			ID:     name,
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   filepath.Join(abs, name),
			Quant:  guessQuant(name),
			Family: guessFamily(name),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with DefaultExtensions.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner(DefaultExtensions...).Scan(dir)
}

// guessQuant picks a quantization tag such as Q4_K_M or F16 out of a filename.
func guessQuant(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.FieldsFunc(stem, func(r rune) bool { return r == '.' || r == '-' })
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.ToUpper(parts[i]); isQuantTag(p) {
			return p
		}
	}
	return ""
}

func isQuantTag(p string) bool {
	switch p {
	case "F16", "F32", "BF16":
		return true
	}
	return len(p) >= 2 && p[0] == 'Q' && p[1] >= '0' && p[1] <= '9'
}

var families = []string{"llama", "mistral", "mixtral", "phi", "gemma", "qwen", "falcon", "gpt2", "starcoder"}

func guessFamily(name string) string {
	lower := strings.ToLower(name)
	for _, f := range families {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}
