// Package datasource implements the DatasourceId value type and the
// project source-tree discovery that walks src/ and prepares datasource
// configs for the build orchestrator.
package datasource

import (
	"fmt"
	"path"
	"strings"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// Kind classifies a DatasourceId as a structured config-backed datasource
// or a raw file datasource.
type Kind string

const (
	KindConfig Kind = "config"
	KindFile   Kind = "file"
)

// contextFileSuffix is appended to a datasource path to name its rendered
// context artifact (see spec §6, "Context file").
const contextFileSuffix = ".yaml"

var allowedYAMLSuffixes = map[string]bool{".yaml": true, ".yml": true}

// ID identifies a datasource by the path to its config (or raw) file,
// relative to the project's src/ directory, split into the path without
// suffix and the suffix itself. It is the Go analogue of the Python
// DatasourceId frozen dataclass: an immutable value, constructed only
// through the parse functions below so its invariants always hold.
type ID struct {
	path   string // datasource path without suffix, e.g. "databases/my_pg"
	suffix string // file suffix including leading dot, e.g. ".yaml"
}

// newID validates and constructs an ID. It is unexported: callers use
// ParseConfigFilePath or ParseContextFilePath so an ID is never built with
// an un-validated suffix.
func newID(dsPath, suffix string) (ID, error) {
	if strings.TrimSpace(dsPath) == "" {
		return ID{}, contexterr.Valuef("datasource path must not be empty")
	}
	if strings.TrimSpace(suffix) == "" {
		return ID{}, contexterr.Valuef("datasource suffix must not be empty")
	}
	if !strings.HasPrefix(suffix, ".") {
		return ID{}, contexterr.Valuef("datasource suffix %q must start with '.'", suffix)
	}
	if strings.HasSuffix(dsPath, suffix) {
		return ID{}, contexterr.Valuef("datasource path %q must not already contain suffix %q", dsPath, suffix)
	}
	return ID{path: dsPath, suffix: suffix}, nil
}

// Kind reports whether id names a raw file datasource (path begins with
// "files/", or suffix isn't a YAML extension) or a structured config.
func (id ID) Kind() Kind {
	if strings.HasPrefix(id.path, "files/") {
		return KindFile
	}
	if allowedYAMLSuffixes[id.suffix] {
		return KindConfig
	}
	return KindFile
}

// Name returns the base filename of the datasource.
func (id ID) Name() string {
	switch id.Kind() {
	case KindFile:
		full := id.path + id.suffix
		return full[strings.LastIndex(full, "/")+1:]
	default:
		return id.path[strings.LastIndex(id.path, "/")+1:]
	}
}

// Path returns the datasource path without its suffix.
func (id ID) Path() string { return id.path }

// Suffix returns the datasource's file suffix, including the leading dot.
func (id ID) Suffix() string { return id.suffix }

// String returns path+suffix, the canonical serialized form. It round
// trips through ParseConfigFilePath: ParseConfigFilePath(id.String()) == id.
func (id ID) String() string {
	return id.path + id.suffix
}

// ConfigFilePath returns the path to this datasource's config file,
// relative to the project's src/ directory.
func (id ID) ConfigFilePath() string {
	return id.path + id.suffix
}

// ContextFilePath returns the path to this datasource's rendered context
// artifact, relative to an output run directory. YAML-configured
// datasources get "<path>.yaml"; raw-file datasources keep their original
// suffix and append ".yaml" ("files/a.txt" -> "files/a.txt.yaml") so that
// two raw files with the same stem and different extensions don't collide.
func (id ID) ContextFilePath() string {
	if allowedYAMLSuffixes[id.suffix] {
		return id.path + contextFileSuffix
	}
	return id.path + id.suffix + contextFileSuffix
}

// ParseConfigFilePath parses a project-relative config (or raw) file path
// into a DatasourceId, e.g. "databases/my_pg.yaml" -> {path: "databases/my_pg", suffix: ".yaml"}.
func ParseConfigFilePath(relPath string) (ID, error) {
	if path.IsAbs(relPath) {
		return ID{}, contexterr.Valuef("datasource config path %q must be relative to project src/", relPath)
	}
	suffix := path.Ext(relPath)
	dsPath := strings.TrimSuffix(relPath, suffix)
	return newID(dsPath, suffix)
}

// ParseContextFilePath parses a project-relative context file path back
// into a DatasourceId. Context files produced for raw-file datasources
// carry a double suffix (e.g. "files/a.txt.yaml"): the trailing ".yaml" is
// stripped to recover the original suffix.
func ParseContextFilePath(relPath string) (ID, error) {
	if path.IsAbs(relPath) {
		return ID{}, contexterr.Valuef("datasource context path %q must be a relative path", relPath)
	}

	candidate := relPath
	base := path.Base(candidate)
	if strings.Count(base, ".") > 1 && strings.HasSuffix(candidate, contextFileSuffix) {
		candidate = strings.TrimSuffix(candidate, contextFileSuffix)
	}

	suffix := path.Ext(candidate)
	dsPath := strings.TrimSuffix(candidate, suffix)
	return newID(dsPath, suffix)
}

// FullTypeMatches reports whether fullType equals previousFullType, treating
// an empty previousFullType (no earlier record) as a match. The build
// orchestrator does not call it.
func FullTypeMatches(previousFullType, fullType string) bool {
	return previousFullType == "" || previousFullType == fullType
}

// MustParseConfigFilePath is a convenience used in tests and static
// registrations where the path is known to be well formed.
func MustParseConfigFilePath(relPath string) ID {
	id, err := ParseConfigFilePath(relPath)
	if err != nil {
		panic(fmt.Sprintf("datasource: invalid config path %q: %v", relPath, err))
	}
	return id
}
