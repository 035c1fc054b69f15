// Package graph holds the immutable per-pipeline stage graph: stage
// names, dependencies, retry budgets and notification policy.
package graph

import (
	"github.com/pkg/errors"

	"github.com/go-conveyor/conveyor/pkg/dag"
)

// StageDefinition describes one stage as declared in a pipeline file.
// Unset retry and notification fields inherit the graph-level defaults.
type StageDefinition struct {
	Name            string   `json:"name"`
	Dependencies    []string `json:"dependencies,omitempty"`
	Retries         *uint    `json:"retries,omitempty"`
	NotifyOnSuccess *bool    `json:"notify_on_success,omitempty"`
	NotifyOnFailure *bool    `json:"notify_on_failure,omitempty"`
}

func (d StageDefinition) NodeName() string {
	return d.Name
}

func (d StageDefinition) PrevNodeNames() []string {
	return d.Dependencies
}

// Defaults are the graph-level values a stage inherits when it does not
// override them.
type Defaults struct {
	MaxRetries      uint
	NotifyOnSuccess bool
	NotifyOnFailure bool
}

// Stage is a resolved stage with all inherited values applied.
type Stage struct {
	Name            string
	Dependencies    []string
	MaxRetries      uint
	NotifyOnSuccess bool
	NotifyOnFailure bool
}

// StageGraph is an immutable, validated stage dependency graph.
type StageGraph struct {
	Name string

	// pipeline-level notification policy
	NotifyOnSuccess bool
	NotifyOnFailure bool

	stages map[string]Stage
	dag    *dag.DAG
}

// Build validates the definitions (unique names, resolvable dependencies,
// no cycle) and resolves per-stage settings against the defaults.
func Build(name string, defs []StageDefinition, defaults Defaults) (*StageGraph, error) {
	if len(defs) == 0 {
		return nil, errors.Errorf("pipeline %q has no stages", name)
	}

	nodes := make([]dag.NamedNode, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.Errorf("pipeline %q contains a stage without a name", name)
		}
		nodes = append(nodes, d)
	}

	g, err := dag.New(nodes)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stage graph for pipeline %q", name)
	}

	stages := make(map[string]Stage, len(defs))
	for _, d := range defs {
		s := Stage{
			Name:            d.Name,
			Dependencies:    d.Dependencies,
			MaxRetries:      defaults.MaxRetries,
			NotifyOnSuccess: defaults.NotifyOnSuccess,
			NotifyOnFailure: defaults.NotifyOnFailure,
		}
		if d.Retries != nil {
			s.MaxRetries = *d.Retries
		}
		if d.NotifyOnSuccess != nil {
			s.NotifyOnSuccess = *d.NotifyOnSuccess
		}
		if d.NotifyOnFailure != nil {
			s.NotifyOnFailure = *d.NotifyOnFailure
		}
		stages[d.Name] = s
	}

	return &StageGraph{
		Name:            name,
		NotifyOnSuccess: defaults.NotifyOnSuccess,
		NotifyOnFailure: defaults.NotifyOnFailure,
		stages:          stages,
		dag:             g,
	}, nil
}

// Stage returns the named stage.
func (g *StageGraph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// StageNames returns all stage names in topological order.
func (g *StageGraph) StageNames() []string {
	return g.dag.TopologicalOrder()
}

// Len returns the number of stages.
func (g *StageGraph) Len() int {
	return len(g.stages)
}

// InitialStages returns the stages with no dependencies, the only stages
// eligible for dispatch with zero prior state.
func (g *StageGraph) InitialStages() []string {
	return g.dag.Roots()
}

// Schedulable returns the stages whose dependencies are all contained in
// done, excluding stages already in done.
func (g *StageGraph) Schedulable(done map[string]bool) []string {
	return g.dag.Schedulable(done)
}
