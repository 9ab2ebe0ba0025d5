package models

// ─────────────────────────────────────────────────────────────────────────────
// Compiled symbol descriptors
// ─────────────────────────────────────────────────────────────────────────────

// Role is the part a symbol plays in the object tree, as emitted by the MIB
// compiler.
type Role string

const (
	RoleScalar      Role = "scalar"
	RoleTable       Role = "table"
	RoleTableEntry  Role = "table-entry"
	RoleIndexColumn Role = "index-column"
	RoleDataColumn  Role = "data-column"
)

// Access is the MAX-ACCESS clause of a symbol.
type Access string

const (
	AccessNotAccessible       Access = "not-accessible"
	AccessAccessibleForNotify Access = "accessible-for-notify"
	AccessReadOnly            Access = "read-only"
	AccessReadWrite           Access = "read-write"
	AccessReadCreate          Access = "read-create"
)

// SymbolDescriptor is one compiled MIB symbol.
//
// Columns name their entry in Table. Entries list their index column names in
// Indexes (columns of this entry, or of another entry for foreign indexes),
// or name the entry they extend in Augments.
type SymbolDescriptor struct {
	Name     string   `yaml:"name"`
	OID      string   `yaml:"oid"`
	Role     Role     `yaml:"role"`
	Type     string   `yaml:"type,omitempty"`
	Access   Access   `yaml:"access,omitempty"`
	Table    string   `yaml:"table,omitempty"`
	Indexes  []string `yaml:"indexes,omitempty"`
	Implied  bool     `yaml:"implied,omitempty"`
	Augments string   `yaml:"augments,omitempty"`

	// Initial, when set, is the value the symbol starts with. It is parsed
	// leniently against Type.
	Initial any `yaml:"initial,omitempty"`
}

// SeedRow is a table row declared alongside the symbols. Index holds one
// value per index column in declaration order; Values is keyed by column
// name.
type SeedRow struct {
	Table  string         `yaml:"table"`
	Index  []any          `yaml:"index"`
	Values map[string]any `yaml:"values,omitempty"`
}

// MIBDefinition is everything one MIB module contributes. Several files may
// declare the same MIB; their symbols and rows are merged.
type MIBDefinition struct {
	Name    string             `yaml:"mib"`
	Symbols []SymbolDescriptor `yaml:"symbols"`
	Rows    []SeedRow          `yaml:"rows,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Type definitions
// ─────────────────────────────────────────────────────────────────────────────

// TypeDefinition declares a named type or textual convention in YAML.
// Either Base (for a new root) or Parent must be set.
type TypeDefinition struct {
	Name   string            `yaml:"name"`
	Parent string            `yaml:"parent,omitempty"`
	Base   string            `yaml:"base,omitempty"`
	Syntax string            `yaml:"syntax,omitempty"`
	Ranges []BoundDefinition `yaml:"ranges,omitempty"`
	Sizes  []BoundDefinition `yaml:"sizes,omitempty"`
	Enums  []EnumDefinition  `yaml:"enums,omitempty"`
	Hint   string            `yaml:"display_hint,omitempty"`
}

// BoundDefinition is an inclusive interval.
type BoundDefinition struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// EnumDefinition is one named number.
type EnumDefinition struct {
	Value int64  `yaml:"value"`
	Label string `yaml:"label"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Behaviour definitions
// ─────────────────────────────────────────────────────────────────────────────

// BindingDefinition attaches a dynamic function to a scalar or column. The
// target is named either by symbol Name or by OID (object OID, without
// instance).
type BindingDefinition struct {
	Name     string         `yaml:"name,omitempty"`
	OID      string         `yaml:"oid,omitempty"`
	Function string         `yaml:"function"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// LinkDefinition declares symbols whose values stay synchronised.
// Scope is "per-instance" (default) or "global".
type LinkDefinition struct {
	ID      string   `yaml:"id"`
	Columns []string `yaml:"columns"`
	Scope   string   `yaml:"scope,omitempty"`
}

// ValueDefinition is a runtime value applied at load time. Scalars set Name
// only; table cells also give the row Index.
type ValueDefinition struct {
	Name  string `yaml:"name"`
	Index []any  `yaml:"index,omitempty"`
	Value any    `yaml:"value"`
}

// BehaviourDefinition is the behaviour attached to one MIB.
type BehaviourDefinition struct {
	MIB      string              `yaml:"mib"`
	Bindings []BindingDefinition `yaml:"bindings,omitempty"`
	Links    []LinkDefinition    `yaml:"links,omitempty"`
	Values   []ValueDefinition   `yaml:"values,omitempty"`
}
