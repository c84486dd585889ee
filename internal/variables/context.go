// Package variables implements flowtest's variable system (spec §4.4):
// layered scopes, the `{{...}}` interpolation grammar, JMESPath-based
// capture, the skip-condition evaluator, and snapshot/restore for the call
// strategy's context isolation.
package variables

import (
	"github.com/alexisbeaulieu97/flowtest/internal/registry"
)

// Context holds one suite's layered variable scopes. Lookup precedence,
// highest first: runtime, registry-exports, suite, imported, environment.
type Context struct {
	Runtime     map[string]interface{}
	Suite       map[string]interface{}
	Imported    map[string]interface{}
	Environment map[string]interface{}
	Registry    *registry.Registry
}

// New creates an empty Context backed by the given global registry.
func New(reg *registry.Registry) *Context {
	return &Context{
		Runtime:     make(map[string]interface{}),
		Suite:       make(map[string]interface{}),
		Imported:    make(map[string]interface{}),
		Environment: make(map[string]interface{}),
		Registry:    reg,
	}
}

// ResetScopes clears runtime, suite, and imported scopes, per the executor's
// per-suite "scope cleanup" step (spec §4.2 step 3). Environment and the
// global registry are untouched.
func (c *Context) ResetScopes() {
	c.Runtime = make(map[string]interface{})
	c.Suite = make(map[string]interface{})
	c.Imported = make(map[string]interface{})
}

// Get resolves name by scope precedence. A dotted name first checks the
// registry as nodeId.varName; a bare name is also checked for registry
// unambiguity as a last resort, per spec §4.4.
func (c *Context) Get(name string) (interface{}, bool) {
	if v, ok := c.Runtime[name]; ok {
		return v, true
	}
	if c.Registry != nil {
		if nodeID, varName, ok := splitQualified(name); ok {
			if v, ok := c.Registry.Get(nodeID, varName); ok {
				return v, true
			}
		}
	}
	if v, ok := c.Suite[name]; ok {
		return v, true
	}
	if v, ok := c.Imported[name]; ok {
		return v, true
	}
	if v, ok := c.Environment[name]; ok {
		return v, true
	}
	if c.Registry != nil {
		if v, ok := c.Registry.GetUnambiguous(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Set writes name into the runtime scope (the only scope steps write into
// during execution, per spec §4.3.1 step 8 and §4.3.5).
func (c *Context) Set(name string, value interface{}) {
	c.Runtime[name] = value
}

// AllForInterpolation flattens every scope (lowest precedence first, so
// higher-precedence scopes win on key collision) plus the registry's
// GetAllExported map, for use as a JS sandbox's `variables` binding.
func (c *Context) AllForInterpolation() map[string]interface{} {
	out := make(map[string]interface{})
	if c.Registry != nil {
		for k, v := range c.Registry.GetAllExported() {
			out[k] = v
		}
	}
	for k, v := range c.Environment {
		out[k] = v
	}
	for k, v := range c.Imported {
		out[k] = v
	}
	for k, v := range c.Suite {
		out[k] = v
	}
	for k, v := range c.Runtime {
		out[k] = v
	}
	return out
}

func splitQualified(name string) (nodeID, varName string, ok bool) {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}

// Snapshot is a restorable copy of runtime+suite+imported scopes (plus a
// registry snapshot for the same purpose), per spec §4.4 "Snapshot/restore".
// Environment scope is not captured.
type Snapshot struct {
	runtime      map[string]interface{}
	suite        map[string]interface{}
	imported     map[string]interface{}
	registryData map[string]map[string]interface{}
	registry     *registry.Registry
}

// Snapshot captures the current restorable state.
func (c *Context) Snapshot() Snapshot {
	snap := Snapshot{
		runtime:  cloneMap(c.Runtime),
		suite:    cloneMap(c.Suite),
		imported: cloneMap(c.Imported),
		registry: c.Registry,
	}
	if c.Registry != nil {
		snap.registryData = c.Registry.Snapshot()
	}
	return snap
}

// Restore replaces the context's runtime+suite+imported scopes (and the
// registry's published values) with the snapshot's contents.
func (c *Context) Restore(snap Snapshot) {
	c.Runtime = cloneMap(snap.runtime)
	c.Suite = cloneMap(snap.suite)
	c.Imported = cloneMap(snap.imported)
	if c.Registry != nil && snap.registry == c.Registry {
		c.Registry.Restore(snap.registryData)
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
