package introspect

import "strings"

// ScopeRule is one include/exclude rule: an exact (catalog, schema) pair,
// or a catalog-wide pattern when Schema is empty (spec §4.7 "Scope matcher
// contract": "include/exclude rules are matched as exact (catalog, schema)
// pairs or catalog-wide patterns").
type ScopeRule struct {
	Catalog string
	Schema  string // empty means "every schema in Catalog"
}

// Scope is a user-supplied filter pruning the catalogs/schemas a dialect
// is allowed to walk (spec §GLOSSARY "Introspection scope").
type Scope struct {
	Include []ScopeRule
	Exclude []ScopeRule
}

// FilteredScope is the result of applying a Scope to a dialect's
// discovered catalogs/schemas.
type FilteredScope struct {
	Catalogs        []string
	SchemasPerCatalog map[string][]string
}

// ScopeMatcher resolves a user Scope plus a dialect's always-denied
// schemas into the concrete set of (catalog, schema) pairs to introspect
// (spec §4.7 steps 1 and 3, "Scope matcher contract").
type ScopeMatcher struct {
	scope          *Scope // nil means "no scope given"
	ignoredSchemas map[string]struct{}
}

// NewScopeMatcher builds a matcher from an optional user scope and the
// dialect's deny-list (e.g. "information_schema", "pg_catalog").
func NewScopeMatcher(scope *Scope, ignoredSchemas []string) *ScopeMatcher {
	denied := make(map[string]struct{}, len(ignoredSchemas))
	for _, s := range ignoredSchemas {
		denied[s] = struct{}{}
	}
	return &ScopeMatcher{scope: scope, ignoredSchemas: denied}
}

// FilterScopes applies the matcher to the discovered catalogs and their
// schemas, returning the in-scope subset (spec §4.7 step 3).
func (m *ScopeMatcher) FilterScopes(catalogs []string, schemasPerCatalog map[string][]string) FilteredScope {
	out := FilteredScope{SchemasPerCatalog: make(map[string][]string)}
	for _, catalog := range catalogs {
		var kept []string
		for _, schema := range schemasPerCatalog[catalog] {
			if _, denied := m.ignoredSchemas[schema]; denied {
				continue
			}
			if m.allowed(catalog, schema) {
				kept = append(kept, schema)
			}
		}
		if len(kept) > 0 {
			out.Catalogs = append(out.Catalogs, catalog)
			out.SchemasPerCatalog[catalog] = kept
		}
	}
	return out
}

// allowed decides one (catalog, schema) pair. Exclude rules take
// precedence over include rules (spec §4.7 "exclude takes precedence over
// include"). With no scope configured, everything not denied is included
// (spec §4.7 "If no scope is given, include all discovered catalogs minus
// denied schemas").
func (m *ScopeMatcher) allowed(catalog, schema string) bool {
	if m.scope == nil {
		return true
	}
	for _, rule := range m.scope.Exclude {
		if ruleMatches(rule, catalog, schema) {
			return false
		}
	}
	if len(m.scope.Include) == 0 {
		return true
	}
	for _, rule := range m.scope.Include {
		if ruleMatches(rule, catalog, schema) {
			return true
		}
	}
	return false
}

func ruleMatches(rule ScopeRule, catalog, schema string) bool {
	if !strings.EqualFold(rule.Catalog, catalog) {
		return false
	}
	return rule.Schema == "" || strings.EqualFold(rule.Schema, schema)
}
