package loader

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Capabilities maps capability names to interface types. A component has a
// capability when its pointer type implements the interface, and the name
// is then reported among its supertypes.
type Capabilities struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewCapabilities creates an empty registry.
func NewCapabilities() *Capabilities {
	return &Capabilities{byName: make(map[string]reflect.Type)}
}

// Register binds name to the interface type iface. Registering the same
// pair again is a no-op.
func (c *Capabilities) Register(name string, iface reflect.Type) error {
	if name == "" {
		return fmt.Errorf("%w: empty capability name", ErrUnsupportedTarget)
	}
	if iface == nil || iface.Kind() != reflect.Interface {
		return fmt.Errorf("%w: capability %q must be an interface type, got %v", ErrUnsupportedTarget, name, iface)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[name]; ok {
		if existing == iface {
			return nil
		}
		return fmt.Errorf("%w: %q is %s, not %s", ErrCapabilityConflict, name, existing, iface)
	}
	c.byName[name] = iface
	return nil
}

// Lookup returns the interface type registered under name.
func (c *Capabilities) Lookup(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	return t, ok
}

// Names returns the registered capability names, sorted.
func (c *Capabilities) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// implementedBy returns the sorted names of capabilities t satisfies.
func (c *Capabilities) implementedBy(t reflect.Type) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, iface := range c.byName {
		if t.Implements(iface) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
