package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "src", cfg.Project.SourceDir)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, "RAW_QUERY", cfg.Retrieval.DefaultRAGMode)
	assert.Equal(t, "HYBRID_SEARCH", cfg.Retrieval.DefaultSearchMode)
	assert.Equal(t, 10, cfg.Retrieval.DefaultLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "src", cfg.Project.SourceDir)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))

	yamlContent := `
project:
  id: my-project
  source_dir: data
embeddings:
  provider: static
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "my-project", cfg.Project.ID)
	assert.Equal(t, "data", cfg.Project.SourceDir)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yml"), []byte("project:\n  id: yml-project\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "yml-project", cfg.Project.ID)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yaml"), []byte("project:\n  id: from-yaml\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yml"), []byte("project:\n  id: from-yml\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Project.ID)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yaml"), []byte("not: valid: yaml: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_InvalidProvider_ReturnsValidationError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".contextd.yaml"), []byte("embeddings:\n  provider: bogus\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_EnvVarOverridesProvider(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	t.Setenv("CONTEXTD_EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesDefaultLimit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	t.Setenv("CONTEXTD_DEFAULT_LIMIT", "25")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Retrieval.DefaultLimit)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	t.Setenv("CONTEXTD_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-xdg"))
	t.Setenv("CONTEXTD_EMBEDDINGS_PROVIDER", "")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Embeddings.Provider)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	assert.Equal(t, filepath.Join("/custom/xdg", "contextd", "config.yaml"), GetUserConfigPath())
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	assert.Equal(t, filepath.Join("/custom/xdg", "contextd"), GetUserConfigDir())
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "missing"))
	assert.False(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	xdgHome := filepath.Join(t.TempDir(), "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)
	require.NoError(t, os.MkdirAll(filepath.Join(xdgHome, "contextd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdgHome, "contextd", "config.yaml"),
		[]byte("embeddings:\n  model: user-model\n"), 0o644))

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "user-model", cfg.Embeddings.Model)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	xdgHome := filepath.Join(t.TempDir(), "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)
	require.NoError(t, os.MkdirAll(filepath.Join(xdgHome, "contextd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdgHome, "contextd", "config.yaml"),
		[]byte("embeddings:\n  model: user-model\n"), 0o644))

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".contextd.yaml"),
		[]byte("embeddings:\n  model: project-model\n"), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
}

func TestFindProjectRoot_GitDirectory_ReturnsGitRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, err := FindProjectRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRoot_ConfigFile_ReturnsConfigLocation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".contextd.yaml"), []byte("version: 1\n"), 0o644))
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, err := FindProjectRoot(sub)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRoot_NoMarkers_ReturnsCurrentDir(t *testing.T) {
	dir := t.TempDir()
	found, err := FindProjectRoot(dir)
	require.NoError(t, err)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	resolvedFound, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, resolvedDir, resolvedFound)
}

func TestValidate_RejectsNegativeDefaultLimit(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.DefaultLimit = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownRAGMode(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.DefaultRAGMode = "NOT_A_MODE"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownSearchMode(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.DefaultSearchMode = "NOT_A_MODE"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownEmbeddingsProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "openai"
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Project.ID = "roundtrip"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	reloaded := NewConfig()
	require.NoError(t, reloaded.loadYAML(path))
	assert.Equal(t, "roundtrip", reloaded.Project.ID)
}

func TestLoadUserConfig_ReturnsNilWhenAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "missing"))
	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
