package behaviour

import (
	"time"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Persistence contract
// ─────────────────────────────────────────────────────────────────────────────

// Cell is one overlay value with the time it was written.
type Cell struct {
	Value    mibtypes.ResolvedValue
	Modified time.Time
}

// ValueKey addresses an overlay value. Scalars leave Table and Row empty;
// table cells use the row-owning table and the encoded index suffix.
type ValueKey struct {
	Table string
	Row   oid.OID
	Name  string
}

// StoredValue is a persisted overlay value.
type StoredValue struct {
	Key  ValueKey
	Cell Cell
}

// StoredRow is a persisted row marker.
type StoredRow struct {
	Table    string
	Row      oid.OID
	Modified time.Time
}

// Snapshot is everything persisted for one MIB.
type Snapshot struct {
	Values  []StoredValue
	Created []StoredRow // rows inserted administratively
	Deleted []StoredRow // seed rows removed administratively
}

// Persister stores the runtime overlay. Every successful mutation is written
// through immediately; Load is called once when a store starts.
type Persister interface {
	SaveValue(mib string, key ValueKey, c Cell) error
	DeleteValue(mib string, key ValueKey) error
	SaveRow(mib, table string, row oid.OID, created time.Time) error
	DeleteRow(mib, table string, row oid.OID, seed bool) error
	RestoreRow(mib, table string, row oid.OID) error
	Load(mib string) (Snapshot, error)
}

type nopPersister struct{}

func (nopPersister) SaveValue(string, ValueKey, Cell) error           { return nil }
func (nopPersister) DeleteValue(string, ValueKey) error               { return nil }
func (nopPersister) SaveRow(string, string, oid.OID, time.Time) error { return nil }
func (nopPersister) DeleteRow(string, string, oid.OID, bool) error    { return nil }
func (nopPersister) RestoreRow(string, string, oid.OID) error         { return nil }
func (nopPersister) Load(string) (Snapshot, error)                    { return Snapshot{}, nil }
