package state_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/internal/fixture"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/state"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(state.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_ValuesRoundTrip(t *testing.T) {
	db := openMemory(t)

	contact := behaviour.ValueKey{Name: "sysContact"}
	status := behaviour.ValueKey{Table: "ifEntry", Row: oid.OID{2}, Name: "ifAdminStatus"}
	objectID := behaviour.ValueKey{Name: "sysObjectID"}

	require.NoError(t, db.SaveValue("EMU-TEST-MIB", contact, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "DisplayString", Base: mibtypes.BaseOctetString, Value: []byte("ops")},
		Modified: epoch,
	}))
	require.NoError(t, db.SaveValue("EMU-TEST-MIB", status, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "IfAdminStatus", Base: mibtypes.BaseInteger, Syntax: mibtypes.SyntaxInteger32, Value: int64(3)},
		Modified: epoch.Add(time.Second),
	}))
	require.NoError(t, db.SaveValue("EMU-TEST-MIB", objectID, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "OBJECT IDENTIFIER", Base: mibtypes.BaseObjectIdentifier, Value: oid.MustParse("1.3.6.1.4.1.99999")},
		Modified: epoch,
	}))
	// overwrite keeps one entry
	require.NoError(t, db.SaveValue("EMU-TEST-MIB", contact, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "DisplayString", Base: mibtypes.BaseOctetString, Value: []byte("noc")},
		Modified: epoch.Add(2 * time.Second),
	}))

	snap, err := db.Load("EMU-TEST-MIB")
	require.NoError(t, err)
	require.Len(t, snap.Values, 3)

	byName := make(map[string]behaviour.StoredValue)
	for _, sv := range snap.Values {
		byName[sv.Key.Name] = sv
	}
	assert.Equal(t, []byte("noc"), byName["sysContact"].Cell.Value.Bytes())
	assert.True(t, byName["sysContact"].Cell.Modified.Equal(epoch.Add(2*time.Second)))
	assert.Empty(t, byName["sysContact"].Key.Table)
	assert.Empty(t, byName["sysContact"].Key.Row)

	assert.Equal(t, int64(3), byName["ifAdminStatus"].Cell.Value.Int())
	assert.Equal(t, "IfAdminStatus", byName["ifAdminStatus"].Cell.Value.Type)
	assert.Equal(t, "ifEntry", byName["ifAdminStatus"].Key.Table)
	assert.Equal(t, oid.OID{2}, byName["ifAdminStatus"].Key.Row)

	assert.Equal(t, oid.MustParse("1.3.6.1.4.1.99999"), byName["sysObjectID"].Cell.Value.OID())

	require.NoError(t, db.DeleteValue("EMU-TEST-MIB", status))
	snap, err = db.Load("EMU-TEST-MIB")
	require.NoError(t, err)
	assert.Len(t, snap.Values, 2)
}

func TestDB_RowLifecycle(t *testing.T) {
	db := openMemory(t)
	const mib = "EMU-TEST-MIB"

	require.NoError(t, db.SaveRow(mib, "ifEntry", oid.OID{5}, epoch))
	require.NoError(t, db.SaveValue(mib, behaviour.ValueKey{Table: "ifEntry", Row: oid.OID{2}, Name: "ifAdminStatus"}, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "IfAdminStatus", Base: mibtypes.BaseInteger, Value: int64(1)},
		Modified: epoch,
	}))

	snap, err := db.Load(mib)
	require.NoError(t, err)
	require.Len(t, snap.Created, 1)
	assert.Equal(t, oid.OID{5}, snap.Created[0].Row)
	assert.True(t, snap.Created[0].Modified.Equal(epoch))

	// seed row: remembered as deleted, its cells dropped
	require.NoError(t, db.DeleteRow(mib, "ifEntry", oid.OID{2}, true))
	// inserted row: forgotten
	require.NoError(t, db.DeleteRow(mib, "ifEntry", oid.OID{5}, false))

	snap, err = db.Load(mib)
	require.NoError(t, err)
	assert.Empty(t, snap.Created)
	assert.Empty(t, snap.Values)
	require.Len(t, snap.Deleted, 1)
	assert.Equal(t, "ifEntry", snap.Deleted[0].Table)
	assert.Equal(t, oid.OID{2}, snap.Deleted[0].Row)

	require.NoError(t, db.RestoreRow(mib, "ifEntry", oid.OID{2}))
	snap, err = db.Load(mib)
	require.NoError(t, err)
	assert.Empty(t, snap.Deleted)
}

func TestDB_MIBsAreIsolated(t *testing.T) {
	db := openMemory(t)

	key := behaviour.ValueKey{Name: "sysName"}
	cell := behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "DisplayString", Base: mibtypes.BaseOctetString, Value: []byte("a")},
		Modified: epoch,
	}
	require.NoError(t, db.SaveValue("A-MIB", key, cell))
	require.NoError(t, db.SaveValue("B-MIB", key, cell))
	require.NoError(t, db.SaveRow("A-MIB", "ifEntry", oid.OID{7}, epoch))

	require.NoError(t, db.Purge("A-MIB"))

	a, err := db.Load("A-MIB")
	require.NoError(t, err)
	assert.Empty(t, a.Values)
	assert.Empty(t, a.Created)

	b, err := db.Load("B-MIB")
	require.NoError(t, err)
	assert.Len(t, b.Values, 1)
}

func TestDB_EmptyOctetStringSurvives(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, db.SaveValue("M", behaviour.ValueKey{Name: "sysLocation"}, behaviour.Cell{
		Value:    mibtypes.ResolvedValue{Type: "DisplayString", Base: mibtypes.BaseOctetString, Value: []byte{}},
		Modified: epoch,
	}))
	snap, err := db.Load("M")
	require.NoError(t, err)
	require.Len(t, snap.Values, 1)
	assert.NotNil(t, snap.Values[0].Cell.Value.Value)
	assert.Empty(t, snap.Values[0].Cell.Value.Bytes())
}

func TestDB_RejectsUntypedValue(t *testing.T) {
	db := openMemory(t)
	err := db.SaveValue("M", behaviour.ValueKey{Name: "x"}, behaviour.Cell{})
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Restart through the behaviour store
// ─────────────────────────────────────────────────────────────────────────────

func newStore(t *testing.T, db *state.DB) *behaviour.Store {
	t.Helper()
	m, reg := fixture.Model(t, fixture.MIB())
	s, err := behaviour.New(m, reg, behaviour.Config{
		Persister: db,
		Now:       func() time.Time { return epoch },
	}, nil)
	require.NoError(t, err)
	return s
}

func TestDB_OverlaySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.db")

	db, err := state.Open(state.Config{Path: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())

	s := newStore(t, db)
	contact, err := s.ScalarTarget("sysContact")
	require.NoError(t, err)
	require.NoError(t, s.Set(contact, "noc@example.com"))

	_, err = s.CreateRow("ifEntry", []any{5}, map[string]any{"ifDescr": "eth5"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteRow("ifEntry", []any{2}))

	status, err := s.CellTarget("ifAdminStatus", oid.OID{1})
	require.NoError(t, err)
	require.NoError(t, s.Set(status, 2))
	require.NoError(t, db.Close())

	db, err = state.Open(state.Config{Path: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	restarted := newStore(t, db)
	require.NoError(t, restarted.Restore())

	rows, err := restarted.Rows("ifEntry")
	require.NoError(t, err)
	assert.Equal(t, []oid.OID{{1}, {5}}, rows)
	assert.Equal(t, []oid.OID{{2}}, restarted.Deleted("ifEntry"))

	contact, err = restarted.ScalarTarget("sysContact")
	require.NoError(t, err)
	v, err := restarted.Get(contact)
	require.NoError(t, err)
	assert.Equal(t, "noc@example.com", string(v.Bytes()))

	descr, err := restarted.CellTarget("ifDescr", oid.OID{5})
	require.NoError(t, err)
	v, err = restarted.Get(descr)
	require.NoError(t, err)
	assert.Equal(t, "eth5", string(v.Bytes()))

	status, err = restarted.CellTarget("ifAdminStatus", oid.OID{1})
	require.NoError(t, err)
	v, err = restarted.Get(status)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Int())

	// restoring the seed row clears the marker for the next restart
	require.NoError(t, restarted.RestoreRow("ifEntry", []any{2}))
	snap, err := db.Load(restarted.MIB())
	require.NoError(t, err)
	assert.Empty(t, snap.Deleted)
}
