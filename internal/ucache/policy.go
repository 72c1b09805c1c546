package ucache

import "time"

// Scope controls which params contribute to a cache key.
type Scope int

const (
	// ScopeFile includes the file path and params in the key.
	ScopeFile Scope = iota
	// ScopeWorkspace substitutes the workspace id for the file path.
	ScopeWorkspace
	// ScopeGlobal uses only the params.
	ScopeGlobal
)

func (s Scope) discriminator() string {
	switch s {
	case ScopeWorkspace:
		return "ws"
	case ScopeGlobal:
		return "global"
	default:
		return "file"
	}
}

// Method is the closed set of cacheable LSP-mediation methods.
type Method string

const (
	MethodDefinition      Method = "Definition"
	MethodReferences      Method = "References"
	MethodHover           Method = "Hover"
	MethodDocumentSymbols Method = "DocumentSymbols"
	// MethodCallHierarchy covers both directions: the daemon fetches
	// incoming and outgoing calls in one operation and caches the
	// combined payload under this single key.
	MethodCallHierarchy Method = "CallHierarchy"
)

// Policy is the per-method cache policy: whether caching is enabled, the
// key scope, and the entry TTL.
type Policy struct {
	Enabled bool
	Scope   Scope
	TTL     time.Duration
}

// Registry maps each Method to its Policy. A method with no explicit
// entry is treated as disabled (fail-closed).
type Registry struct {
	policies map[Method]Policy
}

// DefaultRegistry returns the registry's default policy table: everything
// enabled, file-scoped, with a generous TTL, except CallHierarchy which
// is workspace-scoped because call graphs are meaningful beyond a single
// file.
func DefaultRegistry() *Registry {
	r := &Registry{policies: make(map[Method]Policy)}
	r.Set(MethodDefinition, Policy{Enabled: true, Scope: ScopeFile, TTL: 10 * time.Minute})
	r.Set(MethodReferences, Policy{Enabled: true, Scope: ScopeFile, TTL: 10 * time.Minute})
	r.Set(MethodHover, Policy{Enabled: true, Scope: ScopeFile, TTL: 5 * time.Minute})
	r.Set(MethodDocumentSymbols, Policy{Enabled: true, Scope: ScopeFile, TTL: 10 * time.Minute})
	r.Set(MethodCallHierarchy, Policy{Enabled: true, Scope: ScopeWorkspace, TTL: 30 * time.Minute})
	return r
}

// Set installs or replaces the policy for method.
func (r *Registry) Set(method Method, p Policy) {
	r.policies[method] = p
}

// Get returns method's policy and whether one was registered.
func (r *Registry) Get(method Method) (Policy, bool) {
	p, ok := r.policies[method]
	return p, ok
}
