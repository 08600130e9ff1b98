// Package plugin defines the build plugin contract (spec §4.8): an
// external collaborator the core only consumes, plus a registry keyed by
// full_type and a default, introspect-only implementation.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// EmbeddableChunk is a plugin-produced chunk, pre-persistence: text to
// embed plus an arbitrary content object (spec §4.8, §GLOSSARY).
type EmbeddableChunk struct {
	EmbeddableText string
	Content        any
}

// ExecutionResult is what a plugin's Execute returns (spec §4.8).
type ExecutionResult struct {
	ID          string
	Name        string
	Type        string
	ExecutedAt  time.Time
	Version     string
	Description string
	Result      any
}

// Plugin is the contract a datasource type implementation must satisfy.
type Plugin interface {
	// FullTypes returns the set of full_type strings this plugin handles,
	// e.g. "databases/postgres".
	FullTypes() []string

	// Execute runs the plugin against one configured datasource.
	Execute(ctx context.Context, fullType, name string, config map[string]any) (ExecutionResult, error)

	// DivideIntoChunks turns an ExecutionResult into EmbeddableChunks.
	DivideIntoChunks(ctx context.Context, result ExecutionResult) ([]EmbeddableChunk, error)
}

// ConnectionChecker is an optional capability: a plugin may implement it to
// validate connectivity ahead of a full Execute. Plugins that don't
// implement it are treated as always-reachable by the core.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context, fullType, name string, config map[string]any) error
}

// SQLRunner is an optional capability exposed by database-backed plugins
// (spec §4.7 "Run-SQL contract", §6 "run_sql").
type SQLRunner interface {
	RunSQL(ctx context.Context, sql string, params []any, readOnly bool) (SQLExecutionResult, error)
}

// SQLExecutionResult is the generic tabular result of RunSQL (spec §6).
type SQLExecutionResult struct {
	Columns []string
	Rows    [][]any
}

// Registry maps full_type strings to the Plugin that handles them (spec §9
// "Plugin polymorphism": "Model it as a registry... keyed by full_type").
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds p under every full_type it declares. Registering a
// full_type twice is a programmer error and panics, matching this
// codebase's style for registry collisions discovered at startup.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ft := range p.FullTypes() {
		if _, exists := r.plugins[ft]; exists {
			panic(fmt.Sprintf("plugin: full_type %q already registered", ft))
		}
		r.plugins[ft] = p
	}
}

// Lookup returns the plugin registered for fullType, or ok=false if no
// plugin declares it (spec §4.4 step 2: "Unmatched types are skipped").
func (r *Registry) Lookup(fullType string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[fullType]
	return p, ok
}

// FullTypes returns every registered full_type, sorted.
func (r *Registry) FullTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for ft := range r.plugins {
		out = append(out, ft)
	}
	sort.Strings(out)
	return out
}

// DefaultPlugin is the blanket implementation for trivial datasources: it
// returns the config dict as the result and a single chunk over it (spec
// §4.8: "A default plugin implementation returns its config as the result
// and a single-chunk division").
type DefaultPlugin struct {
	SupportedFullTypes []string
}

var _ Plugin = (*DefaultPlugin)(nil)

func (p *DefaultPlugin) FullTypes() []string { return p.SupportedFullTypes }

func (p *DefaultPlugin) Execute(ctx context.Context, fullType, name string, config map[string]any) (ExecutionResult, error) {
	return ExecutionResult{
		Name:       name,
		Type:       fullType,
		ExecutedAt: time.Now().UTC(),
		Result:     config,
	}, nil
}

func (p *DefaultPlugin) DivideIntoChunks(ctx context.Context, result ExecutionResult) ([]EmbeddableChunk, error) {
	return []EmbeddableChunk{
		{EmbeddableText: fmt.Sprintf("%v", result.Result), Content: result.Result},
	}, nil
}

// CheckConnection is a no-op for the default plugin: there is nothing to
// connect to for a plain config/result datasource.
func (p *DefaultPlugin) CheckConnection(ctx context.Context, fullType, name string, config map[string]any) error {
	return nil
}

// ErrCapabilityNotSupported is returned by callers that probe an optional
// capability interface (ConnectionChecker, SQLRunner) and find it absent.
var ErrCapabilityNotSupported = contexterr.NotSupportedf("optional capability is not implemented by this plugin")
