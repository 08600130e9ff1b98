package build

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/datasource"
	"github.com/databao-dev/contextd/internal/plugin"
)

// ArtifactWriter writes one datasource's rendered context artifact (spec
// §4.4 step 3e, §6 "Context file"): a YAML document produced by the
// plugin-specific renderer, named `<path>.yaml` for YAML-configured
// datasources or `<path><orig_ext>.yaml` for raw files so that two raw
// files sharing a stem never collide.
//
// Grounded on internal/index/runner.go's pattern of writing per-stage
// output under a project-relative directory, generalized from a single
// fixed index file to one artifact per discovered datasource.
type ArtifactWriter struct{}

// NewArtifactWriter constructs an ArtifactWriter.
func NewArtifactWriter() *ArtifactWriter { return &ArtifactWriter{} }

// Write renders result as YAML and writes it to
// <projectDir>/output/<runName>/<id.ContextFilePath()>, creating parent
// directories as needed.
func (w *ArtifactWriter) Write(projectDir, runName string, id datasource.ID, result plugin.ExecutionResult) error {
	doc := map[string]any{
		"id":          id.String(),
		"name":        result.Name,
		"type":        result.Type,
		"executed_at": result.ExecutedAt,
		"version":     result.Version,
		"description": result.Description,
		"result":      result.Result,
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "render context artifact for %s", id.String())
	}

	dest := filepath.Join(projectDir, "output", runName, filepath.FromSlash(id.ContextFilePath()))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "create output directory for %s", id.String())
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "write context artifact %s", dest)
	}
	return nil
}
