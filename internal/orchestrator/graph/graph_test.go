package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintp(v uint) *uint { return &v }
func boolp(v bool) *bool { return &v }

func defaultDefs() []StageDefinition {
	return []StageDefinition{
		{Name: "lint"},
		{Name: "test", Dependencies: []string{"lint"}},
		{Name: "build", Dependencies: []string{"test"}},
		{Name: "security", Dependencies: []string{"test"}},
	}
}

func TestBuild(t *testing.T) {
	g, err := Build("default", defaultDefs(), Defaults{MaxRetries: 3, NotifyOnFailure: true})
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"lint"}, g.InitialStages())

	s, ok := g.Stage("test")
	require.True(t, ok)
	assert.Equal(t, uint(3), s.MaxRetries)
	assert.False(t, s.NotifyOnSuccess)
	assert.True(t, s.NotifyOnFailure)
}

func TestBuildStageOverrides(t *testing.T) {
	defs := []StageDefinition{
		{Name: "lint", Retries: uintp(1), NotifyOnSuccess: boolp(true), NotifyOnFailure: boolp(false)},
	}
	g, err := Build("default", defs, Defaults{MaxRetries: 3, NotifyOnFailure: true})
	require.NoError(t, err)

	s, _ := g.Stage("lint")
	assert.Equal(t, uint(1), s.MaxRetries)
	assert.True(t, s.NotifyOnSuccess)
	assert.False(t, s.NotifyOnFailure)
}

func TestBuildRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name string
		defs []StageDefinition
	}{
		{"empty", nil},
		{"unnamed stage", []StageDefinition{{Name: ""}}},
		{"duplicate name", []StageDefinition{{Name: "lint"}, {Name: "lint"}}},
		{"dangling dependency", []StageDefinition{{Name: "test", Dependencies: []string{"lint"}}}},
		{"cycle", []StageDefinition{
			{Name: "a", Dependencies: []string{"b"}},
			{Name: "b", Dependencies: []string{"a"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build("default", tt.defs, Defaults{})
			assert.Error(t, err)
		})
	}
}

func TestSchedulable(t *testing.T) {
	g, err := Build("default", defaultDefs(), Defaults{})
	require.NoError(t, err)

	done := map[string]bool{"lint": true, "test": true}
	assert.Equal(t, []string{"build", "security"}, g.Schedulable(done))
}

const samplePipeline = `
pipeline:
  name: default
  notifications:
    notify_on_success: true
    notify_on_failure: true
  defaults:
    retries: 2
  stages:
    - name: lint
    - name: test
      dependencies: [lint]
    - name: build
      dependencies: [test]
      retries: 0
    - name: security
      dependencies: [test]
      notify_on_success: false
`

func TestParse(t *testing.T) {
	g, err := Parse([]byte(samplePipeline), Defaults{MaxRetries: 3})
	require.NoError(t, err)

	assert.Equal(t, "default", g.Name)
	assert.True(t, g.NotifyOnSuccess)
	assert.True(t, g.NotifyOnFailure)

	build, _ := g.Stage("build")
	assert.Equal(t, uint(0), build.MaxRetries)

	test, _ := g.Stage("test")
	assert.Equal(t, uint(2), test.MaxRetries)

	security, _ := g.Stage("security")
	assert.False(t, security.NotifyOnSuccess)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("pipeline: ["), Defaults{})
	assert.Error(t, err)
}

func TestLoaderForRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte(samplePipeline), 0o644))

	repoDir := filepath.Join(dir, "pipelines", "acme")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	repoPipeline := `
pipeline:
  name: acme-widgets
  stages:
    - name: deploy
`
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "widgets.yaml"), []byte(repoPipeline), 0o644))

	l := NewLoader(dir, Defaults{MaxRetries: 3})

	g, err := l.ForRepo("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme-widgets", g.Name)
	assert.Equal(t, 1, g.Len())

	g, err = l.ForRepo("other/repo")
	require.NoError(t, err)
	assert.Equal(t, "default", g.Name)
	assert.Equal(t, 4, g.Len())
}
