package mcp

import (
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Registry maps tool names to their handlers. It is filled once at startup
// and handed to NewServer; after that it is only read, so concurrent
// lookups need no locking.
type Registry struct {
	order   []string
	entries map[string]registryEntry
}

type registryEntry struct {
	handler  ToolHandler
	def      Tool
	resolved *jsonschema.Resolved
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds tool under its declared name. Registering a name twice
// replaces the earlier tool but keeps its listing position.
func (r *Registry) Register(tool ToolHandler) error {
	if tool == nil {
		return errors.New("tool is nil")
	}

	def := tool.Definition()
	name := tool.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}
	if def.Name != name {
		return fmt.Errorf("tool %q: definition name %q does not match", name, def.Name)
	}

	schema := def.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
		def.InputSchema = schema
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %q: resolving input schema: %w", name, err)
	}

	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = registryEntry{handler: tool, def: def, resolved: resolved}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tools ...ToolHandler) *Registry {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
	return r
}

// List returns the tool definitions in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].def)
	}
	return tools
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (ToolHandler, bool) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.handler, true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// prepareArguments validates args against the named tool's input schema and
// fills in schema defaults. A nil map is treated as an empty object.
func (r *Registry) prepareArguments(name string, args map[string]interface{}) (map[string]interface{}, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	if err := entry.resolved.ApplyDefaults(&args); err != nil {
		return nil, err
	}
	if err := entry.resolved.Validate(args); err != nil {
		return nil, err
	}
	return args, nil
}
