package behaviour

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
)

// ErrUnknownFunction is returned when a binding names an unregistered
// dynamic function.
var ErrUnknownFunction = errors.New("unknown dynamic function")

// DynamicCall is the input of a dynamic function.
type DynamicCall struct {
	Symbol  string
	Type    mibtypes.Resolved
	Index   []mibtypes.ResolvedValue // empty for scalars
	Params  map[string]any
	Now     time.Time
	Started time.Time // store creation
}

// DynamicFunc computes a value at read time. It must not touch store state
// and must return promptly. The result is parsed leniently against the
// target's type.
type DynamicFunc func(call DynamicCall) (any, error)

// DynamicRegistry maps function names to implementations.
type DynamicRegistry struct {
	mu    sync.RWMutex
	funcs map[string]DynamicFunc
}

// NewDynamicRegistry returns an empty registry.
func NewDynamicRegistry() *DynamicRegistry {
	return &DynamicRegistry{funcs: make(map[string]DynamicFunc)}
}

// Register adds fn under name. Names are unique.
func (r *DynamicRegistry) Register(name string, fn DynamicFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("behaviour: dynamic function needs a name and a body")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("behaviour: dynamic function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *DynamicRegistry) Lookup(name string) (DynamicFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names lists the registered functions.
func (r *DynamicRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Binding attaches a dynamic function to a scalar or column. A bound target
// is read-only regardless of its declared access.
type Binding struct {
	Name     string
	Function string
	Params   map[string]any
}
