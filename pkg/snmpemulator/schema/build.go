package schema

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Build
// ─────────────────────────────────────────────────────────────────────────────

// Build constructs the Model for def. Types are resolved through types;
// initial values come from a declared initial, then defaults, then the type
// default. It fails with ErrSchemaBuild for malformed tables and with an
// error wrapping mibtypes.ErrUnknownType for unresolvable type names.
//
// Columns whose entry is missing are not part of any table; they are logged
// and skipped.
func Build(def models.MIBDefinition, types *mibtypes.Registry, defaults Defaults, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	b := &builder{
		def:      def,
		types:    types,
		defaults: defaults,
		logger:   logger,
		model: &Model{
			Name:    def.Name,
			scalars: make(map[string]*Scalar),
			tables:  make(map[string]*Table),
			columns: make(map[string]*Column),
		},
		entryIndexes: make(map[string][]string),
		tableOIDs:    make(map[string]oid.OID),
	}
	if err := b.build(); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", def.Name, err)
	}
	return b.model, nil
}

type builder struct {
	def      models.MIBDefinition
	types    *mibtypes.Registry
	defaults Defaults
	logger   *slog.Logger
	model    *Model

	entryIndexes map[string][]string
	tableOIDs    map[string]oid.OID // RoleTable name → OID
}

type pendingColumn struct {
	sym  models.SymbolDescriptor
	role Role
	o    oid.OID
}

func (b *builder) build() error {
	seen := make(map[string]bool, len(b.def.Symbols))
	var columns []pendingColumn

	// 1. Classify symbols.
	for _, sym := range b.def.Symbols {
		if sym.Name == "" {
			return fmt.Errorf("symbol without a name: %w", ErrSchemaBuild)
		}
		if seen[sym.Name] {
			return fmt.Errorf("duplicate symbol %q: %w", sym.Name, ErrSchemaBuild)
		}
		seen[sym.Name] = true

		role, err := ParseRole(sym.Role)
		if err != nil {
			return fmt.Errorf("%s: %w", sym.Name, err)
		}
		o, err := oid.Parse(sym.OID)
		if err != nil || len(o) == 0 {
			return fmt.Errorf("%s: bad oid %q: %w", sym.Name, sym.OID, ErrSchemaBuild)
		}

		switch role {
		case RoleScalar:
			if err := b.addScalar(sym, o); err != nil {
				return err
			}
		case RoleTable:
			b.tableOIDs[sym.Name] = o
		case RoleEntry:
			b.model.tables[sym.Name] = &Table{
				Name:     sym.Name,
				EntryOID: o,
				Implied:  sym.Implied,
				Augments: sym.Augments,
				byName:   make(map[string]*Column),
			}
			b.entryIndexes[sym.Name] = sym.Indexes
		case RoleIndexColumn, RoleDataColumn:
			columns = append(columns, pendingColumn{sym: sym, role: role, o: o})
		}
	}

	// 2. Attach columns to their entries.
	for _, pc := range columns {
		if err := b.addColumn(pc); err != nil {
			return err
		}
	}

	// 3. Resolve indexes, plain tables before augmenting ones.
	names := make([]string, 0, len(b.model.tables))
	for name := range b.model.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := b.model.tables[name]
		if t.Augments == "" {
			if err := b.resolveIndexes(t); err != nil {
				return err
			}
		}
	}
	for _, name := range names {
		t := b.model.tables[name]
		if t.Augments != "" {
			if err := b.resolveAugments(t); err != nil {
				return err
			}
		}
	}

	// 4. Seed rows.
	for i, row := range b.def.Rows {
		if err := b.addSeedRow(row); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	// 5. Order everything by OID.
	for _, s := range b.model.scalars {
		b.model.Scalars = append(b.model.Scalars, s)
	}
	sort.Slice(b.model.Scalars, func(i, j int) bool {
		return b.model.Scalars[i].Instance.Less(b.model.Scalars[j].Instance)
	})
	for _, t := range b.model.tables {
		sort.Slice(t.Columns, func(i, j int) bool { return t.Columns[i].Suffix < t.Columns[j].Suffix })
		b.model.Tables = append(b.model.Tables, t)
	}
	sort.Slice(b.model.Tables, func(i, j int) bool {
		return b.model.Tables[i].EntryOID.Less(b.model.Tables[j].EntryOID)
	})
	return nil
}

func (b *builder) addScalar(sym models.SymbolDescriptor, o oid.OID) error {
	access, err := ParseAccess(sym.Access)
	if err != nil {
		return fmt.Errorf("%s: %w", sym.Name, err)
	}
	init, err := b.initial(sym.Name, sym.Type, sym.Initial)
	if err != nil {
		return err
	}
	b.model.scalars[sym.Name] = &Scalar{
		Name:     sym.Name,
		OID:      o,
		Instance: o.Append(0),
		Type:     sym.Type,
		Access:   access,
		Initial:  init,
	}
	return nil
}

// entryFor maps a column's table reference to an entry. The compiler may name
// either the entry or the table above it.
func (b *builder) entryFor(ref string) (*Table, bool) {
	if t, ok := b.model.tables[ref]; ok {
		return t, true
	}
	if to, ok := b.tableOIDs[ref]; ok {
		for _, t := range b.model.tables {
			if t.EntryOID.Equal(to.Append(1)) {
				return t, true
			}
		}
	}
	return nil, false
}

func (b *builder) addColumn(pc pendingColumn) error {
	sym := pc.sym
	t, ok := b.entryFor(sym.Table)
	if !ok {
		b.logger.Warn("schema: column without a table entry skipped",
			"mib", b.def.Name, "column", sym.Name, "table", sym.Table)
		return nil
	}
	rest, ok := pc.o.TrimPrefix(t.EntryOID)
	if !ok || len(rest) != 1 {
		return fmt.Errorf("%s: oid %s is not a direct child of entry %s: %w",
			sym.Name, pc.o, t.EntryOID, ErrSchemaBuild)
	}
	if other, ok := t.ColumnBySuffix(rest[0]); ok {
		return fmt.Errorf("%s: suffix %d already used by %s in %s: %w",
			sym.Name, rest[0], other.Name, t.Name, ErrSchemaBuild)
	}
	access, err := ParseAccess(sym.Access)
	if err != nil {
		return fmt.Errorf("%s: %w", sym.Name, err)
	}
	init, err := b.initial(sym.Name, sym.Type, sym.Initial)
	if err != nil {
		return err
	}
	col := &Column{
		Name:    sym.Name,
		Table:   t.Name,
		OID:     pc.o,
		Suffix:  rest[0],
		Type:    sym.Type,
		Access:  access,
		IsIndex: pc.role == RoleIndexColumn,
		Initial: init,
	}
	t.Columns = append(t.Columns, col)
	t.byName[col.Name] = col
	b.model.columns[col.Name] = col
	return nil
}

func (b *builder) resolveIndexes(t *Table) error {
	names := b.entryIndexes[t.Name]
	if len(names) == 0 {
		// Fall back to the columns the compiler flagged as indexes.
		for _, c := range t.Columns {
			if c.IsIndex {
				names = append(names, c.Name)
			}
		}
		sort.SliceStable(names, func(i, j int) bool {
			return t.byName[names[i]].Suffix < t.byName[names[j]].Suffix
		})
	}
	if len(names) == 0 {
		return fmt.Errorf("table %s has no index columns: %w", t.Name, ErrSchemaBuild)
	}
	for _, name := range names {
		col, ok := t.byName[name]
		if !ok {
			col, ok = b.model.columns[name]
		}
		if !ok {
			return fmt.Errorf("table %s: index %q is not a known column: %w", t.Name, name, ErrSchemaBuild)
		}
		if col.Table == t.Name {
			col.IsIndex = true
		}
		t.Indexes = append(t.Indexes, col)
	}
	return nil
}

func (b *builder) resolveAugments(t *Table) error {
	base := t
	for hops := 0; base.Augments != ""; hops++ {
		next, ok := b.model.tables[base.Augments]
		if !ok {
			return fmt.Errorf("table %s augments unknown entry %q: %w", t.Name, base.Augments, ErrSchemaBuild)
		}
		if hops > len(b.model.tables) {
			return fmt.Errorf("table %s: cyclic AUGMENTS: %w", t.Name, ErrSchemaBuild)
		}
		base = next
	}
	if len(base.Indexes) == 0 {
		return fmt.Errorf("table %s: augmented entry %s has no index columns: %w", t.Name, base.Name, ErrSchemaBuild)
	}
	t.Indexes = base.Indexes
	t.Implied = base.Implied
	t.owner = base.Name
	return nil
}

func (b *builder) addSeedRow(def models.SeedRow) error {
	t, ok := b.model.tables[def.Table]
	if !ok {
		return fmt.Errorf("unknown table %q: %w", def.Table, ErrSchemaBuild)
	}
	if len(def.Index) != len(t.Indexes) {
		return fmt.Errorf("table %s: %d index values for %d index columns: %w",
			t.Name, len(def.Index), len(t.Indexes), ErrSchemaBuild)
	}

	row := Row{
		Index:  make([]mibtypes.ResolvedValue, len(t.Indexes)),
		Values: make(map[string]mibtypes.ResolvedValue, len(t.Columns)),
	}
	for i, col := range t.Indexes {
		v, err := b.types.Coerce(col.Type, def.Index[i])
		if err != nil {
			return fmt.Errorf("table %s: index %s: %w", t.Name, col.Name, err)
		}
		row.Index[i] = v
	}
	for name := range def.Values {
		if _, ok := t.byName[name]; !ok {
			return fmt.Errorf("table %s: unknown column %q: %w", t.Name, name, ErrSchemaBuild)
		}
	}
	for _, col := range t.Columns {
		if col.IsIndex {
			if v, ok := IndexValue(t, row.Index, col.Name); ok {
				row.Values[col.Name] = v
				continue
			}
		}
		raw, ok := def.Values[col.Name]
		if !ok {
			row.Values[col.Name] = col.Initial
			continue
		}
		v, err := b.types.Coerce(col.Type, raw)
		if err != nil {
			return fmt.Errorf("table %s: column %s: %w", t.Name, col.Name, err)
		}
		row.Values[col.Name] = v
	}
	t.SeedRows = append(t.SeedRows, row)
	return nil
}

// initial picks the starting value of a symbol.
func (b *builder) initial(name, typeName string, declared any) (mibtypes.ResolvedValue, error) {
	res, err := b.types.Resolve(typeName)
	if err != nil {
		return mibtypes.ResolvedValue{}, fmt.Errorf("%s: %w", name, err)
	}
	if declared != nil {
		v, err := b.types.Coerce(typeName, declared)
		if err != nil {
			return mibtypes.ResolvedValue{}, fmt.Errorf("%s: initial value: %w", name, err)
		}
		return v, nil
	}
	if raw, ok := b.defaults.Lookup(res, name); ok {
		v, err := b.types.Coerce(typeName, raw)
		if err == nil {
			return v, nil
		}
		b.logger.Warn("schema: default provider value rejected",
			"mib", b.def.Name, "symbol", name, "type", typeName, "error", err.Error())
	}
	return b.types.DefaultValue(typeName)
}

// IndexValue returns the element of index that belongs to the index column
// called name.
func IndexValue(t *Table, index []mibtypes.ResolvedValue, name string) (mibtypes.ResolvedValue, bool) {
	for i, c := range t.Indexes {
		if c.Name == name && i < len(index) {
			return index[i], true
		}
	}
	return mibtypes.ResolvedValue{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
