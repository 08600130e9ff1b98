package datasource

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the parsed shape of a datasource's YAML config file (spec §6:
// "Config file shape").
type Config struct {
	Type              string         `yaml:"type"`
	Name              string         `yaml:"name"`
	Connection        map[string]any `yaml:"connection"`
	IntrospectionScope map[string]any `yaml:"introspection_scope,omitempty"`
}

// Discovered pairs a parsed (or synthesized, for raw files) Config with the
// ID it was found at.
type Discovered struct {
	ID     ID
	Config Config
	// IsRawFile is true when this datasource has no YAML config of its own
	// (src/files/<name>.<ext>) and Config was synthesized.
	IsRawFile bool
}

// Discover walks srcDir (the project's src/ directory) and returns every
// datasource it finds, in deterministic path-sorted order, per spec §4.4
// step 2 ("Discover datasources by walking the project source directory").
//
// Two shapes are recognized:
//   - "<anything>/*.yaml|*.yml" other than "files/" is a structured config.
//   - "files/<name>.<ext>" is a raw-file datasource; no YAML is parsed, the
//     full_type defaults to "files/<ext-without-dot>".
func Discover(srcDir string, logger *slog.Logger) ([]Discovered, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var found []Discovered
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		isRawFile := strings.HasPrefix(rel, "files/")
		ext := strings.ToLower(filepath.Ext(rel))

		if !isRawFile && ext != ".yaml" && ext != ".yml" {
			logger.Debug("skipping non-config file during datasource discovery", "path", rel)
			return nil
		}

		id, err := ParseConfigFilePath(rel)
		if err != nil {
			logger.Warn("skipping malformed datasource path", "path", rel, "error", err)
			return nil
		}

		disc := Discovered{ID: id, IsRawFile: isRawFile}
		if isRawFile {
			disc.Config = Config{
				Type: "files/" + strings.TrimPrefix(ext, "."),
				Name: id.Name(),
			}
		} else {
			raw, err := os.ReadFile(p)
			if err != nil {
				logger.Warn("skipping unreadable datasource config", "path", rel, "error", err)
				return nil
			}
			var cfg Config
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				logger.Warn("skipping unparsable datasource config", "path", rel, "error", err)
				return nil
			}
			if cfg.Name == "" {
				cfg.Name = id.Name()
			}
			disc.Config = cfg
		}

		found = append(found, disc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].ID.String() < found[j].ID.String()
	})
	return found, nil
}
