package mibtypes

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

// Registry is the type catalogue. It is safe for concurrent use; lookups take
// a read lock and Register swaps in a fully resolved set in one step.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]TypeDescriptor
	resolved map[string]Resolved
}

// NewRegistry returns a Registry pre-loaded with the SMI base types,
// the SNMPv2-SMI application types and the common textual conventions.
func NewRegistry() *Registry {
	r := &Registry{
		defs:     make(map[string]TypeDescriptor),
		resolved: make(map[string]Resolved),
	}
	if err := r.Register(Builtins()...); err != nil {
		panic(fmt.Sprintf("mibtypes: builtin catalogue: %v", err))
	}
	return r
}

// Register adds or replaces type descriptors. Every chain in the resulting
// catalogue must resolve to a base category; if any does not, the registry is
// left unchanged and an error wrapping ErrUnknownType is returned.
func (r *Registry) Register(defs ...TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]TypeDescriptor, len(r.defs)+len(defs))
	for k, v := range r.defs {
		next[k] = v
	}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("mibtypes: type descriptor without a name")
		}
		next[d.Name] = d
	}

	resolved := make(map[string]Resolved, len(next))
	for name := range next {
		if _, err := resolveInto(name, next, resolved, map[string]bool{}); err != nil {
			return err
		}
	}

	r.defs = next
	r.resolved = resolved
	return nil
}

// resolveInto walks name's parent chain, memoising every resolved ancestor.
func resolveInto(name string, defs map[string]TypeDescriptor, out map[string]Resolved, visiting map[string]bool) (Resolved, error) {
	if res, ok := out[name]; ok {
		return res, nil
	}
	d, ok := defs[name]
	if !ok {
		return Resolved{}, fmt.Errorf("mibtypes: %q: %w", name, ErrUnknownType)
	}
	if visiting[name] {
		return Resolved{}, fmt.Errorf("mibtypes: %q: cyclic parent chain: %w", name, ErrUnknownType)
	}
	visiting[name] = true

	res := Resolved{
		Name:        d.Name,
		Base:        d.Base,
		Syntax:      d.Syntax,
		Constraints: append([]Constraint(nil), d.Constraints...),
		Enums:       sortedEnums(d.Enums),
		DisplayHint: d.DisplayHint,
		Chain:       []string{d.Name},
	}

	if d.Parent == "" {
		if d.Base == 0 {
			return Resolved{}, fmt.Errorf("mibtypes: %q has neither a parent nor a base category: %w", name, ErrUnknownType)
		}
	} else {
		parent, err := resolveInto(d.Parent, defs, out, visiting)
		if err != nil {
			return Resolved{}, fmt.Errorf("mibtypes: %q: parent: %w", name, err)
		}
		if d.Base != 0 && d.Base != parent.Base {
			return Resolved{}, fmt.Errorf("mibtypes: %q declares %s but parent %q is %s: %w",
				name, d.Base, d.Parent, parent.Base, ErrUnknownType)
		}
		res.Base = parent.Base
		if res.Syntax == "" {
			res.Syntax = parent.Syntax
		}
		if len(res.Constraints) == 0 {
			res.Constraints = parent.Constraints
		}
		if len(res.Enums) == 0 {
			res.Enums = parent.Enums
		}
		if res.DisplayHint == "" {
			res.DisplayHint = parent.DisplayHint
		}
		res.Chain = append(res.Chain, parent.Chain...)
	}

	out[name] = res
	return res, nil
}

// Resolve returns the effective descriptor for name.
func (r *Registry) Resolve(name string) (Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resolved[name]
	if !ok {
		return Resolved{}, fmt.Errorf("mibtypes: %q: %w", name, ErrUnknownType)
	}
	return res, nil
}

// ResolveBase returns the base category name resolves to.
func (r *Registry) ResolveBase(name string) (Base, error) {
	res, err := r.Resolve(name)
	if err != nil {
		return 0, err
	}
	return res.Base, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolved[name]
	return ok
}

// Names returns every registered type name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.resolved))
	for n := range r.resolved {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Built-in catalogue
// ─────────────────────────────────────────────────────────────────────────────

func rng(min, max int64) []Constraint {
	return []Constraint{{Kind: KindRange, Min: min, Max: max}}
}

func size(min, max int64) []Constraint {
	return []Constraint{{Kind: KindSize, Min: min, Max: max}}
}

// Builtins returns the catalogue every Registry starts with.
func Builtins() []TypeDescriptor {
	const maxU32 = math.MaxUint32
	const maxI32 = math.MaxInt32

	return []TypeDescriptor{
		// Base categories.
		{Name: "INTEGER", Base: BaseInteger},
		{Name: "OCTET STRING", Base: BaseOctetString},
		{Name: "OBJECT IDENTIFIER", Base: BaseObjectIdentifier},

		// SNMPv2-SMI.
		{Name: "Integer32", Parent: "INTEGER", Syntax: SyntaxInteger32, Constraints: rng(math.MinInt32, maxI32)},
		{Name: "Unsigned32", Parent: "INTEGER", Syntax: SyntaxUnsigned32, Constraints: rng(0, maxU32)},
		{Name: "Gauge32", Parent: "INTEGER", Syntax: SyntaxGauge32, Constraints: rng(0, maxU32)},
		{Name: "Counter32", Parent: "INTEGER", Syntax: SyntaxCounter32, Constraints: rng(0, maxU32)},
		{Name: "TimeTicks", Parent: "INTEGER", Syntax: SyntaxTimeTicks, Constraints: rng(0, maxU32)},
		{Name: "Counter64", Parent: "INTEGER", Syntax: SyntaxCounter64, Constraints: rng(0, math.MaxInt64)},
		{Name: "IpAddress", Parent: "OCTET STRING", Syntax: SyntaxIPAddress, Constraints: size(4, 4), DisplayHint: "1d."},
		{Name: "Opaque", Parent: "OCTET STRING", Syntax: SyntaxOpaque},
		{Name: "BITS", Parent: "OCTET STRING"},

		// SNMPv2-TC.
		{Name: "DisplayString", Parent: "OCTET STRING", Constraints: size(0, 255), DisplayHint: "255a"},
		{Name: "PhysAddress", Parent: "OCTET STRING", DisplayHint: "1x:"},
		{Name: "MacAddress", Parent: "OCTET STRING", Constraints: size(6, 6), DisplayHint: "1x:"},
		{Name: "TruthValue", Parent: "INTEGER", Enums: []EnumValue{{1, "true"}, {2, "false"}}},
		{Name: "TestAndIncr", Parent: "Integer32", Constraints: rng(0, maxI32)},
		{Name: "AutonomousType", Parent: "OBJECT IDENTIFIER"},
		{Name: "VariablePointer", Parent: "OBJECT IDENTIFIER"},
		{Name: "RowPointer", Parent: "OBJECT IDENTIFIER"},
		{Name: "RowStatus", Parent: "INTEGER", Enums: []EnumValue{
			{1, "active"}, {2, "notInService"}, {3, "notReady"},
			{4, "createAndGo"}, {5, "createAndWait"}, {6, "destroy"},
		}},
		{Name: "TimeStamp", Parent: "TimeTicks"},
		{Name: "TimeInterval", Parent: "Integer32", Constraints: rng(0, maxI32)},
		{Name: "DateAndTime", Parent: "OCTET STRING", DisplayHint: "2d-1d-1d,1d:1d:1d.1d,1a1d:1d",
			Constraints: []Constraint{{Kind: KindSize, Min: 8, Max: 8}, {Kind: KindSize, Min: 11, Max: 11}}},
		{Name: "StorageType", Parent: "INTEGER", Enums: []EnumValue{
			{1, "other"}, {2, "volatile"}, {3, "nonVolatile"}, {4, "permanent"}, {5, "readOnly"},
		}},
		{Name: "TDomain", Parent: "OBJECT IDENTIFIER"},
		{Name: "TAddress", Parent: "OCTET STRING", Constraints: size(1, 255)},

		// SNMP-FRAMEWORK-MIB, IF-MIB, SNMPv2-MIB.
		{Name: "SnmpAdminString", Parent: "OCTET STRING", Constraints: size(0, 255), DisplayHint: "255t"},
		{Name: "InterfaceIndex", Parent: "Integer32", Constraints: rng(1, maxI32), DisplayHint: "d"},
		{Name: "InterfaceIndexOrZero", Parent: "Integer32", Constraints: rng(0, maxI32), DisplayHint: "d"},
		{Name: "ObjectName", Parent: "OBJECT IDENTIFIER"},
		{Name: "NotificationName", Parent: "OBJECT IDENTIFIER"},
	}
}
