// Package appspec loads the deployment spec shipped at the root of every bundle.
package appspec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"bundle-deployer/internal/models"
)

// FileName is the spec document looked up at the bundle root.
const FileName = "appspec.yml"

var (
	ErrSpecMissing        = errors.New("appspec file not found")
	ErrSpecInvalid        = errors.New("appspec file is not valid")
	ErrSpecEmpty          = errors.New("appspec file is empty")
	ErrFileMappingInvalid = errors.New("invalid files entry")
)

type FileMapping struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Validate reports a mapping missing its source or destination.
func (m FileMapping) Validate() error {
	switch {
	case m.Source == "":
		return fmt.Errorf("%w: missing source", ErrFileMappingInvalid)
	case m.Destination == "":
		return fmt.Errorf("%w: missing destination for %s", ErrFileMappingInvalid, m.Source)
	}
	return nil
}

type Hook struct {
	Location string `yaml:"location"`
}

type Spec struct {
	Files []FileMapping           `yaml:"files"`
	Hooks map[models.Phase][]Hook `yaml:"hooks"`
}

// HooksFor returns the hooks configured for phase, in document order.
func (s *Spec) HooksFor(phase models.Phase) []Hook {
	return s.Hooks[phase]
}

// Parse decodes a spec document. A document with no top-level keys is
// rejected with ErrSpecEmpty.
func Parse(data []byte) (*Spec, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if len(raw) == 0 {
		return nil, ErrSpecEmpty
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if spec.Hooks == nil {
		spec.Hooks = map[models.Phase][]Hook{}
	}
	return &spec, nil
}

// Load reads and parses FileName from the root of an extracted bundle.
func Load(bundleRoot string) (*Spec, error) {
	path := filepath.Join(bundleRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpecMissing, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}
