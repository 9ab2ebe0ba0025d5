// Package behaviour holds the runtime state of one MIB: values written at
// runtime, administratively created and deleted rows, dynamic bindings and
// value links. The schema model underneath stays immutable; the store is an
// overlay on top of it.
//
// A read resolves, in order: the dynamic binding of the object, the runtime
// overlay, the seed row value, the column's initial value and finally the
// type default. Every mutation is written through to the Persister.
package behaviour

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/tableindex"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

var (
	// ErrAccessDenied is returned for writes to read-only, bound or index
	// objects.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnknownObject is returned when a name is neither a scalar nor a
	// column of the store's MIB.
	ErrUnknownObject = errors.New("unknown object")
)

// Change sources.
const (
	SourceWrite   = "write"
	SourceLink    = "link"
	SourceCreate  = "create"
	SourceDelete  = "delete"
	SourceRestore = "restore"
	SourceReset   = "reset"
)

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Target addresses one instance: a scalar, or a column in the row with
// suffix Row.
type Target struct {
	Scalar *schema.Scalar
	Table  *schema.Table
	Column *schema.Column
	Row    oid.OID
}

// Name is the scalar or column name.
func (t Target) Name() string {
	if t.Scalar != nil {
		return t.Scalar.Name
	}
	if t.Column != nil {
		return t.Column.Name
	}
	return ""
}

// Type is the declared type of the target.
func (t Target) Type() string {
	if t.Scalar != nil {
		return t.Scalar.Type
	}
	return t.Column.Type
}

// Access is the declared access of the target.
func (t Target) Access() schema.Access {
	if t.Scalar != nil {
		return t.Scalar.Access
	}
	return t.Column.Access
}

// OID is the instance OID.
func (t Target) OID() oid.OID {
	if t.Scalar != nil {
		return t.Scalar.Instance.Clone()
	}
	return t.Column.OID.Concat(t.Row)
}

func (t Target) String() string { return t.OID().String() }

// Change describes one applied mutation. Changes are delivered to the
// Observer after the store lock is released.
type Change struct {
	MIB      string
	Source   string
	Name     string // scalar, column or table name
	Table    string
	Row      oid.OID
	OID      oid.OID
	Value    mibtypes.ResolvedValue
	Previous mibtypes.ResolvedValue
	Time     time.Time
}

// RowState is the runtime view of one row of a row-owning table.
type RowState struct {
	Key      oid.OID
	Index    []mibtypes.ResolvedValue
	Cells    map[string]Cell // overlay values by column name
	Seed     bool
	Modified time.Time
}

// Config configures a Store.
type Config struct {
	// Persister receives every mutation. Nil keeps state in memory only.
	Persister Persister

	// Links propagates writes between linked objects. Nil disables links.
	Links *links.Manager

	// Dynamic resolves binding functions. Nil disables bindings.
	Dynamic *DynamicRegistry

	// Observer, when set, receives every applied change.
	Observer func(Change)

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Persister == nil {
		c.Persister = nopPersister{}
	}
	if c.Links == nil {
		c.Links = links.NewManager(nil)
	}
	if c.Dynamic == nil {
		c.Dynamic = NewDynamicRegistry()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// Store is the mutable state of one MIB. It is safe for concurrent use; a
// write and the link propagation it triggers are applied under one lock so
// readers never observe half of a pass.
type Store struct {
	cfg     Config
	types   *mibtypes.Registry
	logger  *slog.Logger
	started time.Time

	mu       sync.RWMutex
	model    *schema.Model
	bindings map[string]Binding
	scalars  map[string]Cell
	indexes  map[string]*tableindex.Index         // row owner → index
	rows     map[string]map[string]*RowState      // row owner → key → row
	seeds    map[string]map[string]schema.Row     // table → key → seed row
	deleted  map[string]map[string]deletedSeedRow // row owner → key → row
}

type deletedSeedRow struct {
	key   oid.OID
	index []mibtypes.ResolvedValue
}

// New builds the row indexes of model and returns an empty overlay.
func New(model *schema.Model, types *mibtypes.Registry, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:      cfg,
		types:    types,
		logger:   logger,
		started:  cfg.Now(),
		bindings: make(map[string]Binding),
		scalars:  make(map[string]Cell),
		rows:     make(map[string]map[string]*RowState),
		deleted:  make(map[string]map[string]deletedSeedRow),
	}
	if err := s.install(model, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// MIB returns the name of the store's MIB.
func (s *Store) MIB() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Name
}

// Model returns the current schema model.
func (s *Store) Model() *schema.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Types returns the type registry values are checked against.
func (s *Store) Types() *mibtypes.Registry { return s.types }

// Started is the store creation time, the zero point of uptime counters.
func (s *Store) Started() time.Time { return s.started }

// Index returns the row index shared by t and every table augmenting the
// same owner.
func (s *Store) Index(t *schema.Table) *tableindex.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[t.RowOwner()]
}

// ScalarTarget returns the target of scalar name.
func (s *Store) ScalarTarget(name string) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.model.Scalar(name)
	if !ok {
		return Target{}, fmt.Errorf("behaviour: scalar %q: %w", name, ErrUnknownObject)
	}
	return Target{Scalar: sc}, nil
}

// CellTarget returns the target of column name in row.
func (s *Store) CellTarget(column string, row oid.OID) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellTargetLocked(column, row)
}

// TargetFor addresses name by index values rather than by encoded row: a
// scalar when index is empty, otherwise the cell of column name in the row
// whose index columns hold index.
func (s *Store) TargetFor(name string, index []any) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(index) == 0 {
		if sc, ok := s.model.Scalar(name); ok {
			return Target{Scalar: sc}, nil
		}
	}
	t, c, ok := s.model.Column(name)
	if !ok {
		return Target{}, fmt.Errorf("behaviour: %q: %w", name, ErrUnknownObject)
	}
	tuple, err := s.tupleLocked(t, index)
	if err != nil {
		return Target{}, err
	}
	key, err := s.indexes[t.RowOwner()].Codec().Encode(tuple)
	if err != nil {
		return Target{}, fmt.Errorf("behaviour: %s: %w", name, err)
	}
	return Target{Table: t, Column: c, Row: key}, nil
}

func (s *Store) cellTargetLocked(column string, row oid.OID) (Target, error) {
	t, c, ok := s.model.Column(column)
	if !ok {
		return Target{}, fmt.Errorf("behaviour: column %q: %w", column, ErrUnknownObject)
	}
	return Target{Table: t, Column: c, Row: row.Clone()}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the current value of t. A cell in a row that does not exist
// fails with tableindex.ErrNoSuchRow.
func (s *Store) Get(t Target) (mibtypes.ResolvedValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(t)
}

func (s *Store) getLocked(t Target) (mibtypes.ResolvedValue, error) {
	var row *RowState
	if t.Column != nil {
		row = s.rowLocked(t.Table, t.Row)
		if row == nil {
			return mibtypes.ResolvedValue{}, fmt.Errorf("behaviour: %s: %w", t, tableindex.ErrNoSuchRow)
		}
	}

	if b, ok := s.bindings[t.Name()]; ok {
		var index []mibtypes.ResolvedValue
		if row != nil {
			index = row.Index
		}
		v, err := s.evaluate(b, t, index)
		if err == nil {
			return v, nil
		}
		s.logger.Warn("behaviour: dynamic value failed",
			"mib", s.model.Name,
			"object", t.Name(),
			"function", b.Function,
			"error", err.Error(),
		)
	}

	if t.Scalar != nil {
		if c, ok := s.scalars[t.Scalar.Name]; ok {
			return c.Value, nil
		}
		return s.fallback(t.Scalar.Initial, t.Scalar.Type)
	}

	if v, ok := schema.IndexValue(t.Table, row.Index, t.Column.Name); ok && t.Column.IsIndex {
		return v, nil
	}
	if c, ok := row.Cells[t.Column.Name]; ok {
		return c.Value, nil
	}
	if seed, ok := s.seeds[t.Table.Name][row.Key.String()]; ok {
		if v, ok := seed.Values[t.Column.Name]; ok {
			return v, nil
		}
	}
	return s.fallback(t.Column.Initial, t.Column.Type)
}

func (s *Store) fallback(initial mibtypes.ResolvedValue, typeName string) (mibtypes.ResolvedValue, error) {
	if !initial.IsZero() {
		return initial, nil
	}
	return s.types.DefaultValue(typeName)
}

func (s *Store) evaluate(b Binding, t Target, index []mibtypes.ResolvedValue) (mibtypes.ResolvedValue, error) {
	fn, ok := s.cfg.Dynamic.Lookup(b.Function)
	if !ok {
		return mibtypes.ResolvedValue{}, fmt.Errorf("%q: %w", b.Function, ErrUnknownFunction)
	}
	res, err := s.types.Resolve(t.Type())
	if err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	raw, err := fn(DynamicCall{
		Symbol:  t.Name(),
		Type:    res,
		Index:   index,
		Params:  b.Params,
		Now:     s.cfg.Now(),
		Started: s.started,
	})
	if err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	return s.types.Coerce(t.Type(), raw)
}

func (s *Store) rowLocked(t *schema.Table, key oid.OID) *RowState {
	return s.rows[t.RowOwner()][key.String()]
}

// Rows returns the row suffixes of table in index order.
func (s *Store) Rows(table string) ([]oid.OID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.model.Table(table)
	if !ok {
		return nil, fmt.Errorf("behaviour: table %q: %w", table, ErrUnknownObject)
	}
	return s.indexes[t.RowOwner()].Keys(), nil
}

// Row returns a copy of the runtime state of one row.
func (s *Store) Row(table string, key oid.OID) (RowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.model.Table(table)
	if !ok {
		return RowState{}, false
	}
	r := s.rowLocked(t, key)
	if r == nil {
		return RowState{}, false
	}
	out := *r
	out.Cells = make(map[string]Cell, len(r.Cells))
	for k, v := range r.Cells {
		out.Cells[k] = v
	}
	return out, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// CheckWrite runs every check Set would without changing anything and
// returns the value Set would store.
func (s *Store) CheckWrite(t Target, raw any) (mibtypes.ResolvedValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkWriteLocked(t, raw, true)
}

// checkWriteLocked validates a write. honourAccess is false for link
// targets and administrative writes.
func (s *Store) checkWriteLocked(t Target, raw any, honourAccess bool) (mibtypes.ResolvedValue, error) {
	name := t.Name()
	if _, bound := s.bindings[name]; bound {
		return mibtypes.ResolvedValue{}, fmt.Errorf("behaviour: %s is bound to a dynamic value: %w", name, ErrAccessDenied)
	}
	if honourAccess && !t.Access().Writable() {
		return mibtypes.ResolvedValue{}, fmt.Errorf("behaviour: %s is %s: %w", name, t.Access(), ErrAccessDenied)
	}
	if t.Column != nil {
		if t.Column.IsIndex {
			return mibtypes.ResolvedValue{}, fmt.Errorf("behaviour: %s is an index column: %w", name, ErrAccessDenied)
		}
		if s.rowLocked(t.Table, t.Row) == nil {
			return mibtypes.ResolvedValue{}, fmt.Errorf("behaviour: %s: %w", t, tableindex.ErrNoSuchRow)
		}
	}
	v, err := s.types.CreateProtocolValue(t.Type(), raw)
	if err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	if err := s.types.Validate(t.Type(), v); err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	return v, nil
}

// Set stores raw at t and propagates it to linked objects. raw must already
// have the native kind of t's type (see mibtypes.CreateProtocolValue). On
// error nothing is changed.
func (s *Store) Set(t Target, raw any) error {
	return s.set(t, raw, true)
}

// SetValue is the administrative write: raw is parsed leniently and the
// declared access is not enforced. Bound objects and index columns still
// cannot be written.
func (s *Store) SetValue(t Target, raw any) error {
	v, err := s.types.Coerce(t.Type(), raw)
	if err != nil {
		return err
	}
	return s.set(t, v, false)
}

func (s *Store) set(t Target, raw any, honourAccess bool) error {
	s.mu.Lock()
	v, err := s.checkWriteLocked(t, raw, honourAccess)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changes := []Change{s.writeLocked(t, v, SourceWrite)}
	changes = s.propagateLocked(t, v, changes)
	s.mu.Unlock()

	s.notify(changes)
	return nil
}

func (s *Store) writeLocked(t Target, v mibtypes.ResolvedValue, source string) Change {
	now := s.cfg.Now()
	prev, _ := s.getLocked(t)
	cell := Cell{Value: v, Modified: now}

	ch := Change{
		MIB:      s.model.Name,
		Source:   source,
		Name:     t.Name(),
		Row:      t.Row.Clone(),
		OID:      t.OID(),
		Value:    v,
		Previous: prev,
		Time:     now,
	}
	var key ValueKey
	if t.Scalar != nil {
		s.scalars[t.Scalar.Name] = cell
		key = ValueKey{Name: t.Scalar.Name}
	} else {
		row := s.rowLocked(t.Table, t.Row)
		row.Cells[t.Column.Name] = cell
		row.Modified = now
		ch.Table = t.Table.Name
		key = ValueKey{Table: t.Table.RowOwner(), Row: row.Key, Name: t.Column.Name}
	}
	if err := s.cfg.Persister.SaveValue(s.model.Name, key, cell); err != nil {
		s.logger.Error("behaviour: persist value failed",
			"mib", s.model.Name,
			"oid", ch.OID.String(),
			"error", err.Error(),
		)
	}
	return ch
}

func (s *Store) propagateLocked(t Target, v mibtypes.ResolvedValue, changes []Change) []Change {
	if !s.cfg.Links.Linked(t.Name()) {
		return changes
	}
	a := &linkApplier{s: s, changes: changes}
	s.cfg.Links.Propagate(links.Target{Name: t.Name(), Row: t.Row}, v, a)
	return a.changes
}

func (s *Store) notify(changes []Change) {
	if s.cfg.Observer == nil {
		return
	}
	for _, ch := range changes {
		s.cfg.Observer(ch)
	}
}

// Reset discards the overlay value of t so it reads its seed or initial
// value again.
func (s *Store) Reset(t Target) error {
	s.mu.Lock()
	var (
		key ValueKey
		had bool
	)
	prev, _ := s.getLocked(t)
	if t.Scalar != nil {
		_, had = s.scalars[t.Scalar.Name]
		delete(s.scalars, t.Scalar.Name)
		key = ValueKey{Name: t.Scalar.Name}
	} else {
		row := s.rowLocked(t.Table, t.Row)
		if row == nil {
			s.mu.Unlock()
			return fmt.Errorf("behaviour: %s: %w", t, tableindex.ErrNoSuchRow)
		}
		_, had = row.Cells[t.Column.Name]
		delete(row.Cells, t.Column.Name)
		key = ValueKey{Table: t.Table.RowOwner(), Row: row.Key, Name: t.Column.Name}
	}
	if !had {
		s.mu.Unlock()
		return nil
	}
	if err := s.cfg.Persister.DeleteValue(s.model.Name, key); err != nil {
		s.logger.Error("behaviour: persist reset failed", "oid", t.String(), "error", err.Error())
	}
	cur, _ := s.getLocked(t)
	ch := Change{
		MIB: s.model.Name, Source: SourceReset, Name: t.Name(), Row: t.Row.Clone(),
		OID: t.OID(), Value: cur, Previous: prev, Time: s.cfg.Now(),
	}
	if t.Table != nil {
		ch.Table = t.Table.Name
	}
	s.mu.Unlock()

	s.notify([]Change{ch})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

// CreateRow inserts a row into table. index and values are parsed
// leniently; index columns in values must repeat the index. The row and all
// its values are applied together or not at all. It returns the row suffix.
func (s *Store) CreateRow(table string, index []any, values map[string]any) (oid.OID, error) {
	s.mu.Lock()
	t, ok := s.model.Table(table)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("behaviour: table %q: %w", table, ErrUnknownObject)
	}
	tuple, err := s.tupleLocked(t, index)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	parsed := make(map[string]mibtypes.ResolvedValue, len(values))
	for name, raw := range values {
		col, ok := t.Column(name)
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("behaviour: table %s: column %q: %w", t.Name, name, ErrUnknownObject)
		}
		v, err := s.types.Coerce(col.Type, raw)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("behaviour: table %s: %w", t.Name, err)
		}
		if col.IsIndex {
			if iv, ok := schema.IndexValue(t, tuple, name); ok && !iv.Equal(v) {
				s.mu.Unlock()
				return nil, fmt.Errorf("behaviour: table %s: %s disagrees with the index: %w",
					t.Name, name, mibtypes.ErrValidation)
			}
			continue
		}
		if _, bound := s.bindings[name]; bound {
			s.mu.Unlock()
			return nil, fmt.Errorf("behaviour: %s is bound to a dynamic value: %w", name, ErrAccessDenied)
		}
		parsed[name] = v
	}

	owner := t.RowOwner()
	key, err := s.indexes[owner].Insert(tuple)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("behaviour: table %s: %w", t.Name, err)
	}
	now := s.cfg.Now()
	seed := s.isSeedLocked(owner, key)
	row := &RowState{Key: key, Index: tuple, Cells: make(map[string]Cell), Seed: seed, Modified: now}
	s.rows[owner][key.String()] = row
	delete(s.deleted[owner], key.String())

	if seed {
		err = s.cfg.Persister.RestoreRow(s.model.Name, owner, key)
	} else {
		err = s.cfg.Persister.SaveRow(s.model.Name, owner, key, now)
	}
	if err != nil {
		s.logger.Error("behaviour: persist row failed", "table", owner, "row", key.String(), "error", err.Error())
	}

	changes := []Change{{
		MIB: s.model.Name, Source: SourceCreate, Name: t.Name, Table: t.Name,
		Row: key.Clone(), OID: t.EntryOID.Concat(key), Time: now,
	}}
	for _, name := range sortedKeys(parsed) {
		target := Target{Table: t, Column: mustColumn(t, name), Row: key}
		v := parsed[name]
		changes = append(changes, s.writeLocked(target, v, SourceWrite))
		changes = s.propagateLocked(target, v, changes)
	}
	s.mu.Unlock()

	s.logger.Debug("behaviour: row created", "mib", s.model.Name, "table", t.Name, "row", key.String())
	s.notify(changes)
	return key, nil
}

// DeleteRow removes a row. Deleting a seed row is remembered so that it
// stays deleted across restarts until restored.
func (s *Store) DeleteRow(table string, index []any) error {
	s.mu.Lock()
	t, ok := s.model.Table(table)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("behaviour: table %q: %w", table, ErrUnknownObject)
	}
	tuple, err := s.tupleLocked(t, index)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	owner := t.RowOwner()
	key, ok := s.indexes[owner].Lookup(tuple)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("behaviour: table %s: %w", t.Name, tableindex.ErrNoSuchRow)
	}
	s.removeRowLocked(owner, key)
	seed := s.isSeedLocked(owner, key)
	if seed {
		s.deleted[owner][key.String()] = deletedSeedRow{key: key, index: tuple}
	}
	if err := s.cfg.Persister.DeleteRow(s.model.Name, owner, key, seed); err != nil {
		s.logger.Error("behaviour: persist row delete failed", "table", owner, "row", key.String(), "error", err.Error())
	}
	ch := Change{
		MIB: s.model.Name, Source: SourceDelete, Name: t.Name, Table: t.Name,
		Row: key.Clone(), OID: t.EntryOID.Concat(key), Time: s.cfg.Now(),
	}
	s.mu.Unlock()

	s.notify([]Change{ch})
	return nil
}

// RestoreRow brings back a deleted seed row with its seed values.
func (s *Store) RestoreRow(table string, index []any) error {
	s.mu.Lock()
	t, ok := s.model.Table(table)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("behaviour: table %q: %w", table, ErrUnknownObject)
	}
	tuple, err := s.tupleLocked(t, index)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	owner := t.RowOwner()
	key, err := s.indexes[owner].Codec().Encode(tuple)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	d, ok := s.deleted[owner][key.String()]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("behaviour: table %s: row %s was not deleted: %w", t.Name, key, tableindex.ErrNoSuchRow)
	}
	if _, err := s.indexes[owner].Insert(d.index); err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.cfg.Now()
	delete(s.deleted[owner], key.String())
	s.rows[owner][key.String()] = &RowState{Key: key, Index: d.index, Cells: make(map[string]Cell), Seed: true, Modified: now}
	if err := s.cfg.Persister.RestoreRow(s.model.Name, owner, key); err != nil {
		s.logger.Error("behaviour: persist row restore failed", "table", owner, "row", key.String(), "error", err.Error())
	}
	ch := Change{
		MIB: s.model.Name, Source: SourceRestore, Name: t.Name, Table: t.Name,
		Row: key.Clone(), OID: t.EntryOID.Concat(key), Time: now,
	}
	s.mu.Unlock()

	s.notify([]Change{ch})
	return nil
}

// Deleted lists the deleted seed rows of table.
func (s *Store) Deleted(table string) []oid.OID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.model.Table(table)
	if !ok {
		return nil
	}
	out := make([]oid.OID, 0, len(s.deleted[t.RowOwner()]))
	for _, d := range s.deleted[t.RowOwner()] {
		out = append(out, d.key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (s *Store) tupleLocked(t *schema.Table, index []any) ([]mibtypes.ResolvedValue, error) {
	if len(index) != len(t.Indexes) {
		return nil, fmt.Errorf("behaviour: table %s: %d index values for %d index columns: %w",
			t.Name, len(index), len(t.Indexes), mibtypes.ErrValidation)
	}
	tuple := make([]mibtypes.ResolvedValue, len(index))
	for i, col := range t.Indexes {
		v, err := s.types.Coerce(col.Type, index[i])
		if err != nil {
			return nil, fmt.Errorf("behaviour: table %s: index %s: %w", t.Name, col.Name, err)
		}
		tuple[i] = v
	}
	return tuple, nil
}

func (s *Store) removeRowLocked(owner string, key oid.OID) {
	_ = s.indexes[owner].RemoveSuffix(key)
	delete(s.rows[owner], key.String())
}

func (s *Store) isSeedLocked(owner string, key oid.OID) bool {
	for _, t := range s.model.Tables {
		if t.RowOwner() != owner {
			continue
		}
		if _, ok := s.seeds[t.Name][key.String()]; ok {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Bindings / links
// ─────────────────────────────────────────────────────────────────────────────

// Bind attaches a dynamic function to a scalar or column. The target
// becomes read-only.
func (s *Store) Bind(b Binding) error {
	if _, ok := s.cfg.Dynamic.Lookup(b.Function); !ok {
		return fmt.Errorf("behaviour: binding %s: %q: %w", b.Name, b.Function, ErrUnknownFunction)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownLocked(b.Name) {
		return fmt.Errorf("behaviour: binding %q: %w", b.Name, ErrUnknownObject)
	}
	s.bindings[b.Name] = b
	return nil
}

// Unbind removes the binding of name, if any.
func (s *Store) Unbind(name string) {
	s.mu.Lock()
	delete(s.bindings, name)
	s.mu.Unlock()
}

// Bindings lists the active bindings by name.
func (s *Store) Bindings() []Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddLink registers a link whose members must all belong to this MIB.
func (s *Store) AddLink(l links.Link) error {
	s.mu.RLock()
	for _, name := range l.Columns {
		if !s.knownLocked(name) {
			s.mu.RUnlock()
			return fmt.Errorf("behaviour: link %s: %q: %w", l.ID, name, ErrUnknownObject)
		}
	}
	s.mu.RUnlock()
	return s.cfg.Links.Add(l)
}

// Links returns the link manager of the store.
func (s *Store) Links() *links.Manager { return s.cfg.Links }

func (s *Store) knownLocked(name string) bool {
	if _, ok := s.model.Scalar(name); ok {
		return true
	}
	_, _, ok := s.model.Column(name)
	return ok
}

// linkApplier performs link writes inside a Set that already holds the
// store lock.
type linkApplier struct {
	s       *Store
	changes []Change
}

func (a *linkApplier) ApplyLinked(lt links.Target, v mibtypes.ResolvedValue) error {
	var t Target
	if sc, ok := a.s.model.Scalar(lt.Name); ok {
		t = Target{Scalar: sc}
	} else {
		var err error
		if t, err = a.s.cellTargetLocked(lt.Name, lt.Row); err != nil {
			return err
		}
	}
	nv, err := a.s.checkWriteLocked(t, v, false)
	if err != nil {
		return err
	}
	a.changes = append(a.changes, a.s.writeLocked(t, nv, SourceLink))
	return nil
}

func (a *linkApplier) Rows(name string) []oid.OID {
	t, _, ok := a.s.model.Column(name)
	if !ok {
		return nil
	}
	return a.s.indexes[t.RowOwner()].Keys()
}

func (a *linkApplier) IsColumn(name string) bool {
	_, _, ok := a.s.model.Column(name)
	return ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Schema swap / restore
// ─────────────────────────────────────────────────────────────────────────────

// SwapSchema replaces the model with one rebuilt from changed definitions.
// Overlay values, created rows and deleted seed rows survive where the new
// model still has the object; values that no longer fit their type are
// dropped.
func (s *Store) SwapSchema(model *schema.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.install(model, s.rows)
}

// install builds indexes for model from its seed rows, the previous runtime
// rows and the deleted set. Callers hold the write lock (or own s).
func (s *Store) install(model *schema.Model, previous map[string]map[string]*RowState) error {
	indexes := make(map[string]*tableindex.Index)
	rows := make(map[string]map[string]*RowState)
	seeds := make(map[string]map[string]schema.Row)

	for _, t := range model.Tables {
		owner := t.RowOwner()
		if _, ok := indexes[owner]; ok {
			continue
		}
		ot, ok := model.Table(owner)
		if !ok {
			return fmt.Errorf("behaviour: table %s: owner %s missing", t.Name, owner)
		}
		codec, err := tableindex.CodecFor(ot, s.types)
		if err != nil {
			return fmt.Errorf("behaviour: table %s: %w", owner, err)
		}
		indexes[owner] = tableindex.New(codec)
		rows[owner] = make(map[string]*RowState)
		if s.deleted[owner] == nil {
			s.deleted[owner] = make(map[string]deletedSeedRow)
		}
	}

	for _, t := range model.Tables {
		owner := t.RowOwner()
		seeds[t.Name] = make(map[string]schema.Row, len(t.SeedRows))
		for _, sr := range t.SeedRows {
			key, err := indexes[owner].Codec().Encode(sr.Index)
			if err != nil {
				return fmt.Errorf("behaviour: table %s: seed row: %w", t.Name, err)
			}
			seeds[t.Name][key.String()] = sr
			if _, gone := s.deleted[owner][key.String()]; gone {
				continue
			}
			if _, ok := rows[owner][key.String()]; ok {
				continue
			}
			if _, err := indexes[owner].Insert(sr.Index); err != nil {
				return fmt.Errorf("behaviour: table %s: seed row %s: %w", t.Name, key, err)
			}
			rows[owner][key.String()] = &RowState{Key: key, Index: sr.Index, Cells: make(map[string]Cell), Seed: true}
		}
	}

	for owner, prevRows := range previous {
		ot, ok := model.Table(owner)
		if !ok {
			continue
		}
		for k, pr := range prevRows {
			tuple, err := indexes[owner].Codec().Decode(pr.Key)
			if err != nil {
				s.logger.Warn("behaviour: dropping row that no longer decodes",
					"table", owner, "row", k, "error", err.Error())
				continue
			}
			nr, exists := rows[owner][k]
			if !exists && pr.Seed {
				continue
			}
			if !exists {
				if _, err := indexes[owner].Insert(tuple); err != nil {
					continue
				}
				nr = &RowState{Key: pr.Key, Index: tuple, Cells: make(map[string]Cell)}
				rows[owner][k] = nr
			}
			nr.Modified = pr.Modified
			for name, c := range pr.Cells {
				t, col, ok := model.Column(name)
				if !ok || t.RowOwner() != ot.Name || s.types.Validate(col.Type, c.Value) != nil {
					continue
				}
				nr.Cells[name] = c
			}
		}
	}

	for name, c := range s.scalars {
		sc, ok := model.Scalar(name)
		if !ok || s.types.Validate(sc.Type, c.Value) != nil {
			delete(s.scalars, name)
		}
	}
	for name := range s.bindings {
		if _, ok := model.Scalar(name); ok {
			continue
		}
		if _, _, ok := model.Column(name); !ok {
			delete(s.bindings, name)
		}
	}

	s.model = model
	s.indexes = indexes
	s.rows = rows
	s.seeds = seeds
	return nil
}

// Restore loads the persisted overlay of the store's MIB. Entries that no
// longer match the model are skipped with a warning.
func (s *Store) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.cfg.Persister.Load(s.model.Name)
	if err != nil {
		return fmt.Errorf("behaviour: load %s: %w", s.model.Name, err)
	}

	for _, d := range snap.Deleted {
		idx, ok := s.indexes[d.Table]
		if !ok {
			continue
		}
		tuple, err := idx.Codec().Decode(d.Row)
		if err != nil {
			s.logger.Warn("behaviour: skipping deleted row", "table", d.Table, "row", d.Row.String(), "error", err.Error())
			continue
		}
		s.removeRowLocked(d.Table, d.Row)
		s.deleted[d.Table][d.Row.String()] = deletedSeedRow{key: d.Row.Clone(), index: tuple}
	}

	for _, c := range snap.Created {
		idx, ok := s.indexes[c.Table]
		if !ok {
			continue
		}
		if _, exists := s.rows[c.Table][c.Row.String()]; exists {
			continue
		}
		tuple, err := idx.Codec().Decode(c.Row)
		if err != nil {
			s.logger.Warn("behaviour: skipping created row", "table", c.Table, "row", c.Row.String(), "error", err.Error())
			continue
		}
		key, err := idx.Insert(tuple)
		if err != nil {
			continue
		}
		s.rows[c.Table][key.String()] = &RowState{Key: key, Index: tuple, Cells: make(map[string]Cell), Modified: c.Modified}
	}

	restored := 0
	for _, sv := range snap.Values {
		if sv.Key.Table == "" {
			sc, ok := s.model.Scalar(sv.Key.Name)
			if !ok || s.types.Validate(sc.Type, sv.Cell.Value) != nil {
				s.logger.Warn("behaviour: skipping stored scalar", "name", sv.Key.Name)
				continue
			}
			v, _ := s.types.CreateProtocolValue(sc.Type, sv.Cell.Value)
			s.scalars[sc.Name] = Cell{Value: v, Modified: sv.Cell.Modified}
			restored++
			continue
		}
		t, col, ok := s.model.Column(sv.Key.Name)
		row := s.rows[sv.Key.Table][sv.Key.Row.String()]
		if !ok || row == nil || t.RowOwner() != sv.Key.Table || s.types.Validate(col.Type, sv.Cell.Value) != nil {
			s.logger.Warn("behaviour: skipping stored cell", "table", sv.Key.Table, "row", sv.Key.Row.String(), "name", sv.Key.Name)
			continue
		}
		v, _ := s.types.CreateProtocolValue(col.Type, sv.Cell.Value)
		row.Cells[col.Name] = Cell{Value: v, Modified: sv.Cell.Modified}
		restored++
	}

	s.logger.Info("behaviour: state restored",
		"mib", s.model.Name,
		"values", restored,
		"created_rows", len(snap.Created),
		"deleted_rows", len(snap.Deleted),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func sortedKeys(m map[string]mibtypes.ResolvedValue) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mustColumn(t *schema.Table, name string) *schema.Column {
	c, _ := t.Column(name)
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
