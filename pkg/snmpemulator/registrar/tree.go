// Package registrar assembles the addressable instance space of every loaded
// MIB: one instance per readable scalar and one per (readable column,
// existing row). Lookups are exact; successor queries walk tables
// column-major, every row of a column before the next column.
package registrar

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/tableindex"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

var (
	// ErrNotFound is returned when no known object covers an OID.
	ErrNotFound = errors.New("no such object")

	// ErrNoSuchInstance is returned when the object exists but the instance
	// does not. It wraps ErrNotFound.
	ErrNoSuchInstance = fmt.Errorf("no such instance: %w", ErrNotFound)

	// ErrEndOfTree is returned by Next past the last instance.
	ErrEndOfTree = errors.New("end of MIB view")
)

// ─────────────────────────────────────────────────────────────────────────────
// Instance
// ─────────────────────────────────────────────────────────────────────────────

// Instance is one addressable OID with its read and write hooks.
type Instance struct {
	OID    oid.OID
	Name   string
	MIB    string
	Target behaviour.Target

	store *behaviour.Store
}

// Read resolves the current value.
func (i Instance) Read() (mibtypes.ResolvedValue, error) { return i.store.Get(i.Target) }

// CheckWrite validates v without applying it.
func (i Instance) CheckWrite(v any) (mibtypes.ResolvedValue, error) {
	return i.store.CheckWrite(i.Target, v)
}

// Write applies v and its link propagation.
func (i Instance) Write(v any) error { return i.store.Set(i.Target, v) }

// Store is the behaviour store that owns the instance.
func (i Instance) Store() *behaviour.Store { return i.store }

// ─────────────────────────────────────────────────────────────────────────────
// Tree
// ─────────────────────────────────────────────────────────────────────────────

type scalarNode struct {
	scalar *schema.Scalar
	store  *behaviour.Store
}

type columnNode struct {
	table  *schema.Table
	column *schema.Column
	store  *behaviour.Store
}

var noRows = tableindex.New(tableindex.Codec{})

// rows returns the store's current index for the column's table, so a
// schema swap in the store is seen before the tree is rebuilt.
func (n columnNode) rows() *tableindex.Index {
	if idx := n.store.Index(n.table); idx != nil {
		return idx
	}
	return noRows
}

// Tree is an immutable snapshot of the object layout. Row membership is
// read live from the stores' indexes, so rows added or removed after Build,
// including those of a swapped schema, are visible without rebuilding.
// Objects added by a swap need a new Tree.
type Tree struct {
	scalars []scalarNode // by instance OID
	columns []columnNode // by column OID
}

// Build lays out the objects of every store. When two MIBs define the same
// OID the first store wins and the duplicate is logged.
func Build(stores []*behaviour.Store, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	t := &Tree{}
	seen := make(map[string]string)
	claim := func(o oid.OID, mib, name string) bool {
		k := o.String()
		if prev, dup := seen[k]; dup {
			logger.Warn("registrar: duplicate OID ignored",
				"oid", k,
				"object", name,
				"mib", mib,
				"kept", prev,
			)
			return false
		}
		seen[k] = mib + "::" + name
		return true
	}

	for _, st := range stores {
		m := st.Model()
		for _, sc := range m.Scalars {
			if !sc.Access.Readable() || !claim(sc.OID, m.Name, sc.Name) {
				continue
			}
			t.scalars = append(t.scalars, scalarNode{scalar: sc, store: st})
		}
		for _, tbl := range m.Tables {
			for _, c := range tbl.Columns {
				if !c.Access.Readable() || !claim(c.OID, m.Name, c.Name) {
					continue
				}
				t.columns = append(t.columns, columnNode{table: tbl, column: c, store: st})
			}
		}
	}
	sort.Slice(t.scalars, func(i, j int) bool { return t.scalars[i].scalar.Instance.Less(t.scalars[j].scalar.Instance) })
	sort.Slice(t.columns, func(i, j int) bool { return t.columns[i].column.OID.Less(t.columns[j].column.OID) })

	logger.Debug("registrar: tree built",
		"scalars", len(t.scalars),
		"columns", len(t.columns),
	)
	return t
}

// Objects returns the number of registered scalars and columns.
func (t *Tree) Objects() (scalars, columns int) { return len(t.scalars), len(t.columns) }

// Size counts the current instances.
func (t *Tree) Size() int {
	n := len(t.scalars)
	for _, c := range t.columns {
		n += c.rows().Len()
	}
	return n
}

func (n scalarNode) instance() Instance {
	return Instance{
		OID:    n.scalar.Instance.Clone(),
		Name:   n.scalar.Name,
		MIB:    n.store.MIB(),
		Target: behaviour.Target{Scalar: n.scalar},
		store:  n.store,
	}
}

func (n columnNode) instance(row oid.OID) Instance {
	return Instance{
		OID:    n.column.OID.Concat(row),
		Name:   n.column.Name,
		MIB:    n.store.MIB(),
		Target: behaviour.Target{Table: n.table, Column: n.column, Row: row.Clone()},
		store:  n.store,
	}
}

// Locate returns the instance at exactly o.
func (t *Tree) Locate(o oid.OID) (Instance, error) {
	i := sort.Search(len(t.scalars), func(i int) bool { return t.scalars[i].scalar.Instance.Compare(o) >= 0 })
	if i < len(t.scalars) && t.scalars[i].scalar.Instance.Equal(o) {
		return t.scalars[i].instance(), nil
	}
	if i > 0 && o.HasPrefix(t.scalars[i-1].scalar.OID) {
		return Instance{}, fmt.Errorf("registrar: %s: %w", o, ErrNoSuchInstance)
	}
	if i < len(t.scalars) && o.HasPrefix(t.scalars[i].scalar.OID) {
		return Instance{}, fmt.Errorf("registrar: %s: %w", o, ErrNoSuchInstance)
	}

	if c, ok := t.columnCovering(o); ok {
		row, _ := o.TrimPrefix(c.column.OID)
		if len(row) > 0 {
			if _, exists := c.rows().LookupSuffix(row); exists {
				return c.instance(row), nil
			}
		}
		return Instance{}, fmt.Errorf("registrar: %s: %w", o, ErrNoSuchInstance)
	}
	return Instance{}, fmt.Errorf("registrar: %s: %w", o, ErrNotFound)
}

// columnCovering returns the column whose OID is a prefix of o.
func (t *Tree) columnCovering(o oid.OID) (columnNode, bool) {
	j := sort.Search(len(t.columns), func(i int) bool { return t.columns[i].column.OID.Compare(o) > 0 })
	if j > 0 && o.HasPrefix(t.columns[j-1].column.OID) {
		return t.columns[j-1], true
	}
	return columnNode{}, false
}

// Next returns the first instance strictly after o, or ErrEndOfTree.
func (t *Tree) Next(o oid.OID) (Instance, error) {
	var (
		best  Instance
		found bool
	)

	i := sort.Search(len(t.scalars), func(i int) bool { return t.scalars[i].scalar.Instance.Compare(o) > 0 })
	if i < len(t.scalars) {
		best, found = t.scalars[i].instance(), true
	}

	if inst, ok := t.nextColumnInstance(o, best, found); ok {
		best, found = inst, true
	}
	if !found {
		return Instance{}, ErrEndOfTree
	}
	return best, nil
}

// nextColumnInstance finds the first table instance after o that also sorts
// before the current best candidate.
func (t *Tree) nextColumnInstance(o oid.OID, best Instance, haveBest bool) (Instance, bool) {
	j := sort.Search(len(t.columns), func(i int) bool { return t.columns[i].column.OID.Compare(o) > 0 })
	if j > 0 && o.HasPrefix(t.columns[j-1].column.OID) {
		c := t.columns[j-1]
		rest, _ := o.TrimPrefix(c.column.OID)
		if row, _, ok := c.rows().NextAfter(rest); ok {
			inst := c.instance(row)
			if haveBest && best.OID.Less(inst.OID) {
				return Instance{}, false
			}
			return inst, true
		}
	}
	for ; j < len(t.columns); j++ {
		c := t.columns[j]
		if haveBest && best.OID.Less(c.column.OID) {
			return Instance{}, false
		}
		if row, _, ok := c.rows().First(); ok {
			inst := c.instance(row)
			if haveBest && best.OID.Less(inst.OID) {
				return Instance{}, false
			}
			return inst, true
		}
	}
	return Instance{}, false
}

// Walk calls fn for every instance after from, in order, until fn returns
// false. Instances that disappear while walking are skipped.
func (t *Tree) Walk(from oid.OID, fn func(Instance, mibtypes.ResolvedValue) bool) error {
	cur := from
	for {
		inst, err := t.Next(cur)
		if errors.Is(err, ErrEndOfTree) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = inst.OID
		v, err := inst.Read()
		if errors.Is(err, tableindex.ErrNoSuchRow) {
			continue
		}
		if err != nil {
			return fmt.Errorf("registrar: read %s: %w", inst.OID, err)
		}
		if !fn(inst, v) {
			return nil
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
