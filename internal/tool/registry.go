package tool

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotRegistered indicates an invoke against an unknown tool name. This is
// a wiring bug in the caller, not a provider failure, so it surfaces as a
// plain error rather than entering the taxonomy.
var ErrNotRegistered = errors.New("tool not registered")

// Validator checks an invocation payload before the handler runs.
type Validator func(payload map[string]any) error

// Registration describes one named capability.
type Registration struct {
	Name        string
	Handler     Handler
	Description string
	// ValidateInput, when set, runs before the handler; a returned error is
	// classified as INVALID_INPUT.
	ValidateInput Validator
}

// Registry maps capability names to registrations. Construct one per process
// (or per test) and inject it; registrations are explicit, never global.
type Registry struct {
	tools map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds a capability. Registering a duplicate name is a setup-time
// hard error, never a silent overwrite.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if reg.Handler == nil {
		return fmt.Errorf("tool %q: handler is required", reg.Name)
	}
	if _, exists := r.tools[reg.Name]; exists {
		return fmt.Errorf("tool %q is already registered", reg.Name)
	}
	r.tools[reg.Name] = reg
	return nil
}

// Get looks up a registration by name.
func (r *Registry) Get(name string) (Registration, bool) {
	reg, ok := r.tools[name]
	return reg, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
