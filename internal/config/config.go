// Package config loads the engine's project configuration, mirroring the
// teacher's layered precedence model: hardcoded defaults, then a user/global
// file, then a project file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one contextd project.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Project    ProjectConfig    `yaml:"project" json:"project"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ProjectConfig identifies the project being indexed (spec §3: Run.project_id).
type ProjectConfig struct {
	ID        string `yaml:"id" json:"id"`
	SourceDir string `yaml:"source_dir" json:"source_dir"` // loaded and merged only; datasource discovery always walks <project>/src
}

// StoreConfig configures the embedded storage layer (spec §4.1).
type StoreConfig struct {
	Path string `yaml:"path" json:"path"` // SQLite database file

	// KeywordBackend selects the keyword-search backend: "fts5" (default,
	// the embedded store's own virtual table) or "bleve" (an alternative
	// on-disk BM25 index, spec's DOMAIN STACK "Alternative/optional BM25
	// backend behind the same KeywordIndex interface").
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
}

// EmbeddingsConfig configures the embedding Provider (spec §4.3, §GLOSSARY).
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" or "static".
	// Empty selects Ollama; no reachability check or static fallback is made.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	Host     string `yaml:"host" json:"host"` // Ollama endpoint, default http://localhost:11434
	Dim      int    `yaml:"dim" json:"dim"`   // 0 lets the provider report its own dimension
}

// RetrievalConfig holds default request parameters for the Retrieval
// Engine (spec §4.5). They are loaded, merged and validated here; the
// search command takes its limit and modes from its own flags and does
// not read these fields. The RRF constant (K=60) and the vector distance
// threshold (0.75) are engine constants and are not configurable here.
type RetrievalConfig struct {
	DefaultLimit      int    `yaml:"default_limit" json:"default_limit"`
	DefaultRAGMode    string `yaml:"default_rag_mode" json:"default_rag_mode"`       // RAW_QUERY | QUERY_WITH_INSTRUCTION | REWRITE_QUERY
	DefaultSearchMode string `yaml:"default_search_mode" json:"default_search_mode"` // KEYWORD_SEARCH | VECTOR_SEARCH | HYBRID_SEARCH
}

// LoggingConfig holds logger settings (spec's ambient stack, mirrored from
// the teacher's internal/logging.Config). They are loaded, merged and
// validated here; the CLI's logger setup does not read them.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig returns a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Project: ProjectConfig{
			SourceDir: "src",
		},
		Store: StoreConfig{
			Path:           defaultStorePath(),
			KeywordBackend: "fts5",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "", // empty selects Ollama
			Model:    "nomic-embed-text",
			Host:     "",
			Dim:      0,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:      10,
			DefaultRAGMode:    "RAW_QUERY",
			DefaultSearchMode: "HYBRID_SEARCH",
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".contextd", "store.db")
	}
	return filepath.Join(home, ".contextd", "store.db")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "contextd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "contextd", "config.yaml")
	}
	return filepath.Join(home, ".config", "contextd", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir, applying, in order
// of increasing precedence: hardcoded defaults, the user/global config, the
// project config (.contextd.yaml), then CONTEXTD_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".contextd.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".contextd.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Project.ID != "" {
		c.Project.ID = other.Project.ID
	}
	if other.Project.SourceDir != "" {
		c.Project.SourceDir = other.Project.SourceDir
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Dim != 0 {
		c.Embeddings.Dim = other.Embeddings.Dim
	}
	if other.Retrieval.DefaultLimit != 0 {
		c.Retrieval.DefaultLimit = other.Retrieval.DefaultLimit
	}
	if other.Retrieval.DefaultRAGMode != "" {
		c.Retrieval.DefaultRAGMode = other.Retrieval.DefaultRAGMode
	}
	if other.Retrieval.DefaultSearchMode != "" {
		c.Retrieval.DefaultSearchMode = other.Retrieval.DefaultSearchMode
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies CONTEXTD_* environment variable overrides, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONTEXTD_PROJECT_ID"); v != "" {
		c.Project.ID = v
	}
	if v := os.Getenv("CONTEXTD_SOURCE_DIR"); v != "" {
		c.Project.SourceDir = v
	}
	if v := os.Getenv("CONTEXTD_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CONTEXTD_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CONTEXTD_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CONTEXTD_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("CONTEXTD_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.DefaultLimit = n
		}
	}
	if v := os.Getenv("CONTEXTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports whether the configuration is well-formed.
func (c *Config) Validate() error {
	if c.Retrieval.DefaultLimit < 0 {
		return fmt.Errorf("retrieval.default_limit must be non-negative, got %d", c.Retrieval.DefaultLimit)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (ollama), got %s", c.Embeddings.Provider)
		}
	}

	validRAGModes := map[string]bool{"RAW_QUERY": true, "QUERY_WITH_INSTRUCTION": true, "REWRITE_QUERY": true}
	if !validRAGModes[c.Retrieval.DefaultRAGMode] {
		return fmt.Errorf("retrieval.default_rag_mode must be RAW_QUERY, QUERY_WITH_INSTRUCTION, or REWRITE_QUERY, got %s", c.Retrieval.DefaultRAGMode)
	}

	validSearchModes := map[string]bool{"KEYWORD_SEARCH": true, "VECTOR_SEARCH": true, "HYBRID_SEARCH": true}
	if !validSearchModes[c.Retrieval.DefaultSearchMode] {
		return fmt.Errorf("retrieval.default_search_mode must be KEYWORD_SEARCH, VECTOR_SEARCH, or HYBRID_SEARCH, got %s", c.Retrieval.DefaultSearchMode)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, or (nil, nil) if absent.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .contextd.yaml/.yml file, falling back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".contextd.yaml")) ||
			fileExists(filepath.Join(currentDir, ".contextd.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
