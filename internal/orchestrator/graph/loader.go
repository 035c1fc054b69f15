package graph

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/go-conveyor/conveyor/pkg/log"
)

// pipelineFile mirrors the YAML pipeline definition layout.
type pipelineFile struct {
	Pipeline struct {
		Name          string `json:"name"`
		Notifications struct {
			NotifyOnSuccess *bool `json:"notify_on_success,omitempty"`
			NotifyOnFailure *bool `json:"notify_on_failure,omitempty"`
		} `json:"notifications"`
		Defaults struct {
			Retries *uint `json:"retries,omitempty"`
		} `json:"defaults"`
		Stages []StageDefinition `json:"stages"`
	} `json:"pipeline"`
}

// Loader resolves the pipeline definition for a repository: a per-repo
// file under <dir>/pipelines/<repo>.yaml when present, otherwise the
// shared <dir>/pipeline.yaml.
type Loader struct {
	dir      string
	defaults Defaults
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string, defaults Defaults) *Loader {
	return &Loader{dir: dir, defaults: defaults}
}

// ForRepo loads the stage graph that applies to repo.
func (l *Loader) ForRepo(repo string) (*StageGraph, error) {
	repoPath := filepath.Join(l.dir, "pipelines", repo+".yaml")
	if _, err := os.Stat(repoPath); err == nil {
		log.Debugf("using repository pipeline definition: %s", repoPath)
		return LoadFile(repoPath, l.defaults)
	}
	return LoadFile(filepath.Join(l.dir, "pipeline.yaml"), l.defaults)
}

// LoadFile parses and validates a single pipeline definition file.
func LoadFile(path string, defaults Defaults) (*StageGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pipeline definition %s", path)
	}
	return Parse(raw, defaults)
}

// Parse builds a StageGraph from raw YAML.
func Parse(raw []byte, defaults Defaults) (*StageGraph, error) {
	var file pipelineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse pipeline definition")
	}

	p := file.Pipeline
	if p.Defaults.Retries != nil {
		defaults.MaxRetries = *p.Defaults.Retries
	}
	if p.Notifications.NotifyOnSuccess != nil {
		defaults.NotifyOnSuccess = *p.Notifications.NotifyOnSuccess
	}
	if p.Notifications.NotifyOnFailure != nil {
		defaults.NotifyOnFailure = *p.Notifications.NotifyOnFailure
	}

	name := p.Name
	if name == "" {
		name = "default"
	}
	return Build(name, p.Stages, defaults)
}
