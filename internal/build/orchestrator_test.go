package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databao-dev/contextd/internal/plugin"
	"github.com/databao-dev/contextd/internal/store"
)

// fakePlugin is a minimal Plugin used to exercise the orchestrator without
// a real datasource backend.
type fakePlugin struct {
	fullTypes  []string
	execErr    error
	chunks     []plugin.EmbeddableChunk
	divideErr  error
	executions int
}

func (p *fakePlugin) FullTypes() []string { return p.fullTypes }

func (p *fakePlugin) Execute(ctx context.Context, fullType, name string, config map[string]any) (plugin.ExecutionResult, error) {
	p.executions++
	if p.execErr != nil {
		return plugin.ExecutionResult{}, p.execErr
	}
	return plugin.ExecutionResult{Name: name, Type: fullType, Result: config}, nil
}

func (p *fakePlugin) DivideIntoChunks(ctx context.Context, result plugin.ExecutionResult) ([]plugin.EmbeddableChunk, error) {
	if p.divideErr != nil {
		return nil, p.divideErr
	}
	return p.chunks, nil
}

func newProjectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "widgets"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "src", "widgets", "one.yaml"),
		[]byte("type: widgets/demo\nname: one\nconnection: {}\n"),
		0o644,
	))
	return dir
}

func TestOrchestrator_Build_RunsDiscoveredDatasourceAndWritesArtifact(t *testing.T) {
	projectDir := newProjectDir(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	registry := plugin.NewRegistry()
	p := &fakePlugin{fullTypes: []string{"widgets/demo"}, chunks: []plugin.EmbeddableChunk{{EmbeddableText: "hi", Content: "hi"}}}
	registry.Register(p)

	orch := NewOrchestrator(st, registry, nil, NewArtifactWriter(), nil)

	result, err := orch.Build(context.Background(), Config{
		ProjectDir:    projectDir,
		ProjectID:     "proj",
		EngineVersion: "test",
		RunName:       "run1",
	})
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSuccess, result.Status)
	assert.Equal(t, 1, result.DatasourcesRun)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, p.executions)

	artifactPath := filepath.Join(projectDir, "output", "run1", "widgets", "one.yaml")
	_, err = os.Stat(artifactPath)
	assert.NoError(t, err)
}

func TestOrchestrator_Build_UnmatchedFullTypeIsSkippedNotFailed(t *testing.T) {
	projectDir := newProjectDir(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	orch := NewOrchestrator(st, plugin.NewRegistry(), nil, NewArtifactWriter(), nil)

	result, err := orch.Build(context.Background(), Config{
		ProjectDir:    projectDir,
		ProjectID:     "proj",
		EngineVersion: "test",
		RunName:       "run1",
	})
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSuccess, result.Status)
	assert.Equal(t, 0, result.DatasourcesRun)
	assert.Equal(t, 1, result.DatasourcesSkipped)
}

func TestOrchestrator_Build_PluginExecuteFailureSkipsButRunSucceeds(t *testing.T) {
	projectDir := newProjectDir(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	registry := plugin.NewRegistry()
	registry.Register(&fakePlugin{fullTypes: []string{"widgets/demo"}, execErr: assertErr})

	orch := NewOrchestrator(st, registry, nil, NewArtifactWriter(), nil)

	result, err := orch.Build(context.Background(), Config{
		ProjectDir:    projectDir,
		ProjectID:     "proj",
		EngineVersion: "test",
		RunName:       "run1",
	})
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSuccess, result.Status)
	assert.Equal(t, 1, result.DatasourcesSkipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "execute", result.Errors[0].Stage)
}

func TestOrchestrator_Build_EmptyChunksSkipsDatasourceRunCreation(t *testing.T) {
	projectDir := newProjectDir(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	registry := plugin.NewRegistry()
	registry.Register(&fakePlugin{fullTypes: []string{"widgets/demo"}})

	orch := NewOrchestrator(st, registry, nil, NewArtifactWriter(), nil)

	result, err := orch.Build(context.Background(), Config{
		ProjectDir:    projectDir,
		ProjectID:     "proj",
		EngineVersion: "test",
		RunName:       "run1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DatasourcesSkipped)
	assert.Equal(t, 0, result.DatasourcesRun)
}

var assertErr = fakeErr("execute failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
