package export

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/feedcurve/internal/model"
)

// Manifest describes one curation run next to its output tables.
type Manifest struct {
	RunID     string              `yaml:"run_id"`
	Input     string              `yaml:"input"`
	CreatedAt time.Time           `yaml:"created_at"`
	Params    model.RunParams     `yaml:"params"`
	Summary   model.RunSummary    `yaml:"summary"`
	Stages    []model.StageReport `yaml:"stages"`
	Outputs   []string            `yaml:"outputs"`
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "export: marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "export: unmarshal manifest")
	}
	return &m, nil
}
