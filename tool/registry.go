package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe catalog of tools available to a session. A
// registry is built per agent variant from the control tools plus the
// variant's own tool set; additional tools can be registered at runtime.
//
// Compiled argument schemas are cached per tool name so repeated validation
// does not recompile.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*compiledSchema
}

// NewRegistry creates a registry holding the given tools. Registration
// failures (duplicate names, invalid schemas) are reported immediately so a
// misconfigured variant fails at construction rather than mid-session.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*compiledSchema),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry. The tool's parameter schema is
// compiled eagerly; a schema that does not compile rejects the registration.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool: cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool: cannot register tool with empty name")
	}

	schema, err := compileSchema(t.Parameters())
	if err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q: already registered", name)
	}
	r.tools[name] = t
	r.schemas[name] = schema

	return nil
}

// Get returns the tool with the given name, or false if none is registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// schemaFor returns the cached compiled schema for a registered tool,
// compiling on demand for tools queried before registration completed.
func (r *Registry) schemaFor(t Tool) (*compiledSchema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[t.Name()]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	schema, err := compileSchema(t.Parameters())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.schemas[t.Name()] = schema
	r.mu.Unlock()

	return schema, nil
}
