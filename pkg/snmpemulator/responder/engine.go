// Package responder is the surface the protocol layer and the
// administrative tools call: exact reads, successor reads and writes by
// OID, plus row insertion and removal by table name. It owns the current
// registrar tree and swaps it atomically on rebuild.
package responder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/registrar"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/tableindex"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ErrAmbiguousTable is returned when a bare table name exists in more than
// one MIB.
var ErrAmbiguousTable = errors.New("table name is ambiguous")

// Engine answers requests against every loaded MIB.
type Engine struct {
	tree atomic.Pointer[registrar.Tree]

	mu     sync.RWMutex
	stores []*behaviour.Store

	logger *slog.Logger
}

// New builds the tree for stores.
func New(stores []*behaviour.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	e := &Engine{stores: append([]*behaviour.Store(nil), stores...), logger: logger}
	e.tree.Store(registrar.Build(e.stores, logger))
	return e
}

// Tree returns the current tree.
func (e *Engine) Tree() *registrar.Tree { return e.tree.Load() }

// Stores returns the loaded stores in load order.
func (e *Engine) Stores() []*behaviour.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*behaviour.Store(nil), e.stores...)
}

// Store returns the store of mib.
func (e *Engine) Store(mib string) (*behaviour.Store, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.stores {
		if s.MIB() == mib {
			return s, true
		}
	}
	return nil, false
}

// Rebuild lays the tree out again, after a schema swap or when stores are
// added. Requests in flight finish on the old tree.
func (e *Engine) Rebuild(stores ...*behaviour.Store) {
	e.mu.Lock()
	for _, s := range stores {
		replaced := false
		for i, cur := range e.stores {
			if cur.MIB() == s.MIB() {
				e.stores[i] = s
				replaced = true
			}
		}
		if !replaced {
			e.stores = append(e.stores, s)
		}
	}
	all := append([]*behaviour.Store(nil), e.stores...)
	e.mu.Unlock()

	e.tree.Store(registrar.Build(all, e.logger))
	scalars, columns := e.Tree().Objects()
	e.logger.Info("responder: tree rebuilt",
		"mibs", len(all),
		"scalars", scalars,
		"columns", columns,
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Protocol operations
// ─────────────────────────────────────────────────────────────────────────────

// Locate returns the instance at o.
func (e *Engine) Locate(o oid.OID) (registrar.Instance, error) {
	return e.Tree().Locate(o)
}

// ResolveAt returns the value at exactly o. Misses wrap registrar.ErrNotFound.
func (e *Engine) ResolveAt(o oid.OID) (mibtypes.ResolvedValue, error) {
	inst, err := e.Tree().Locate(o)
	if err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	v, err := inst.Read()
	if errors.Is(err, tableindex.ErrNoSuchRow) {
		return mibtypes.ResolvedValue{}, fmt.Errorf("responder: %s: %w", o, registrar.ErrNoSuchInstance)
	}
	return v, err
}

// NextAfter returns the first instance strictly after o with its value, or
// registrar.ErrEndOfTree.
func (e *Engine) NextAfter(o oid.OID) (oid.OID, mibtypes.ResolvedValue, error) {
	tree := e.Tree()
	cur := o
	for {
		inst, err := tree.Next(cur)
		if err != nil {
			return nil, mibtypes.ResolvedValue{}, err
		}
		v, err := inst.Read()
		if errors.Is(err, tableindex.ErrNoSuchRow) {
			// row removed between the index scan and the read
			cur = inst.OID
			continue
		}
		if err != nil {
			return nil, mibtypes.ResolvedValue{}, err
		}
		return inst.OID, v, nil
	}
}

// CheckWrite runs every check ApplyWrite would, without writing.
func (e *Engine) CheckWrite(o oid.OID, v any) (mibtypes.ResolvedValue, error) {
	inst, err := e.Tree().Locate(o)
	if err != nil {
		return mibtypes.ResolvedValue{}, err
	}
	return inst.CheckWrite(v)
}

// ApplyWrite stores v at o and propagates it to linked objects. A write to
// a row that does not exist fails with registrar.ErrNoSuchInstance; rows
// are created with InsertRow.
func (e *Engine) ApplyWrite(o oid.OID, v any) error {
	inst, err := e.Tree().Locate(o)
	if err != nil {
		return err
	}
	err = inst.Write(v)
	if errors.Is(err, tableindex.ErrNoSuchRow) {
		return fmt.Errorf("responder: %s: %w", o, registrar.ErrNoSuchInstance)
	}
	return err
}

// Walk visits every instance after from in order.
func (e *Engine) Walk(from oid.OID, fn func(registrar.Instance, mibtypes.ResolvedValue) bool) error {
	return e.Tree().Walk(from, fn)
}

// ─────────────────────────────────────────────────────────────────────────────
// Administrative row operations
// ─────────────────────────────────────────────────────────────────────────────

// InsertRow creates a row in table and returns its index suffix. Omitted
// columns read their initial values.
func (e *Engine) InsertRow(table string, index []any, values map[string]any) (oid.OID, error) {
	s, err := e.storeFor(table)
	if err != nil {
		return nil, err
	}
	return s.CreateRow(table, index, values)
}

// RemoveRow deletes a row from table.
func (e *Engine) RemoveRow(table string, index []any) error {
	s, err := e.storeFor(table)
	if err != nil {
		return err
	}
	return s.DeleteRow(table, index)
}

// RestoreRow brings back a deleted seed row.
func (e *Engine) RestoreRow(table string, index []any) error {
	s, err := e.storeFor(table)
	if err != nil {
		return err
	}
	return s.RestoreRow(table, index)
}

func (e *Engine) storeFor(table string) (*behaviour.Store, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var found *behaviour.Store
	for _, s := range e.stores {
		if _, ok := s.Model().Table(table); !ok {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("responder: %q: %w", table, ErrAmbiguousTable)
		}
		found = s
	}
	if found == nil {
		return nil, fmt.Errorf("responder: table %q: %w", table, behaviour.ErrUnknownObject)
	}
	return found, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
