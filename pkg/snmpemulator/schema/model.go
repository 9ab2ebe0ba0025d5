// Package schema turns the compiled symbol descriptors of one MIB into an
// immutable object model of scalars and tables, each carrying its resolved
// type, access mode and generated initial value.
//
// A Model is built once and only read afterwards. Runtime state lives in the
// behaviour store, so a Model can be rebuilt from changed descriptors
// without touching anything written at runtime.
package schema

import (
	"errors"
	"fmt"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ErrSchemaBuild is returned for malformed table or column declarations.
var ErrSchemaBuild = errors.New("schema build error")

// ─────────────────────────────────────────────────────────────────────────────
// Role / Access
// ─────────────────────────────────────────────────────────────────────────────

// Role is the closed set of parts a symbol can play. It is decided once while
// building and never re-derived.
type Role int

const (
	RoleScalar Role = iota + 1
	RoleTable
	RoleEntry
	RoleIndexColumn
	RoleDataColumn
)

func (r Role) String() string {
	switch r {
	case RoleScalar:
		return "scalar"
	case RoleTable:
		return "table"
	case RoleEntry:
		return "table-entry"
	case RoleIndexColumn:
		return "index-column"
	case RoleDataColumn:
		return "data-column"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps the compiler's role string.
func ParseRole(r models.Role) (Role, error) {
	switch r {
	case models.RoleScalar:
		return RoleScalar, nil
	case models.RoleTable:
		return RoleTable, nil
	case models.RoleTableEntry:
		return RoleEntry, nil
	case models.RoleIndexColumn:
		return RoleIndexColumn, nil
	case models.RoleDataColumn:
		return RoleDataColumn, nil
	}
	return 0, fmt.Errorf("schema: unknown role %q: %w", r, ErrSchemaBuild)
}

// Access is MAX-ACCESS, ordered from least to most permissive.
type Access int

const (
	AccessNotAccessible Access = iota
	AccessForNotify
	AccessReadOnly
	AccessReadWrite
	AccessReadCreate
)

func (a Access) String() string {
	switch a {
	case AccessNotAccessible:
		return "not-accessible"
	case AccessForNotify:
		return "accessible-for-notify"
	case AccessReadOnly:
		return "read-only"
	case AccessReadWrite:
		return "read-write"
	case AccessReadCreate:
		return "read-create"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// ParseAccess maps the compiler's access string. Empty means read-only.
func ParseAccess(a models.Access) (Access, error) {
	switch a {
	case "", models.AccessReadOnly:
		return AccessReadOnly, nil
	case models.AccessNotAccessible:
		return AccessNotAccessible, nil
	case models.AccessAccessibleForNotify:
		return AccessForNotify, nil
	case models.AccessReadWrite:
		return AccessReadWrite, nil
	case models.AccessReadCreate:
		return AccessReadCreate, nil
	}
	return 0, fmt.Errorf("schema: unknown access %q: %w", a, ErrSchemaBuild)
}

// Readable reports whether GET may return the object.
func (a Access) Readable() bool { return a >= AccessReadOnly }

// Writable reports whether SET may change the object.
func (a Access) Writable() bool { return a >= AccessReadWrite }

// ─────────────────────────────────────────────────────────────────────────────
// Descriptors
// ─────────────────────────────────────────────────────────────────────────────

// Scalar is a single-instance object, addressed at OID.0.
type Scalar struct {
	Name     string
	OID      oid.OID
	Instance oid.OID
	Type     string
	Access   Access
	Initial  mibtypes.ResolvedValue
}

// Column is one field of a table entry.
type Column struct {
	Name    string
	Table   string // entry name
	OID     oid.OID
	Suffix  uint32 // last arc, relative to the entry
	Type    string
	Access  Access
	IsIndex bool

	// Initial is the value the column holds in a row that does not say
	// otherwise.
	Initial mibtypes.ResolvedValue
}

// Row is a seed row with every column filled in.
type Row struct {
	Index  []mibtypes.ResolvedValue
	Values map[string]mibtypes.ResolvedValue
}

// Table is a conceptual table, named after its entry.
type Table struct {
	Name     string
	EntryOID oid.OID

	// Indexes are the columns whose values form the row suffix, in order.
	// They may belong to another entry (foreign index).
	Indexes []*Column

	// Implied marks the last index as IMPLIED.
	Implied bool

	// Augments names the entry whose rows this table shares.
	Augments string

	// Columns is ordered by ascending Suffix.
	Columns []*Column

	SeedRows []Row

	byName map[string]*Column
	owner  string
}

// Column returns the column called name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// ColumnBySuffix returns the column with the given entry-relative arc.
func (t *Table) ColumnBySuffix(suffix uint32) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Suffix == suffix {
			return c, true
		}
	}
	return nil, false
}

// IndexNames returns the names of the index columns in order.
func (t *Table) IndexNames() []string {
	out := make([]string, len(t.Indexes))
	for i, c := range t.Indexes {
		out[i] = c.Name
	}
	return out
}

// RowOwner is the table whose row set this table uses: itself, or the root
// of its AUGMENTS chain.
func (t *Table) RowOwner() string {
	if t.owner == "" {
		return t.Name
	}
	return t.owner
}

// ─────────────────────────────────────────────────────────────────────────────
// Model
// ─────────────────────────────────────────────────────────────────────────────

// Model is the immutable structure of one MIB.
type Model struct {
	Name string

	// Scalars is ordered by instance OID.
	Scalars []*Scalar

	// Tables is ordered by entry OID.
	Tables []*Table

	scalars map[string]*Scalar
	tables  map[string]*Table
	columns map[string]*Column
}

// Scalar returns the scalar called name.
func (m *Model) Scalar(name string) (*Scalar, bool) {
	s, ok := m.scalars[name]
	return s, ok
}

// Table returns the table whose entry is called name.
func (m *Model) Table(name string) (*Table, bool) {
	t, ok := m.tables[name]
	return t, ok
}

// Column returns the column called name together with its table.
func (m *Model) Column(name string) (*Table, *Column, bool) {
	c, ok := m.columns[name]
	if !ok {
		return nil, nil, false
	}
	return m.tables[c.Table], c, true
}

// NameOf returns the scalar or column whose object OID is o.
func (m *Model) NameOf(o oid.OID) (string, bool) {
	for _, s := range m.Scalars {
		if s.OID.Equal(o) {
			return s.Name, true
		}
	}
	for _, t := range m.Tables {
		for _, c := range t.Columns {
			if c.OID.Equal(o) {
				return c.Name, true
			}
		}
	}
	return "", false
}
