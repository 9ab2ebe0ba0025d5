package responder_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/internal/fixture"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/registrar"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/responder"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/tableindex"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

func newEngine(t *testing.T, def models.MIBDefinition) (*responder.Engine, *behaviour.Store) {
	t.Helper()
	m, reg := fixture.Model(t, def)
	s, err := behaviour.New(m, reg, behaviour.Config{}, nil)
	require.NoError(t, err)
	return responder.New([]*behaviour.Store{s}, nil), s
}

func ifCell(column, row uint32) oid.OID {
	return oid.MustParse(fixture.IfEntry).Append(column, row)
}

// ─────────────────────────────────────────────────────────────────────────────
// ifEntry scenario
// ─────────────────────────────────────────────────────────────────────────────

func TestScenario_IfEntryColumnMajor(t *testing.T) {
	e, _ := newEngine(t, fixture.Bare())

	_, err := e.InsertRow("ifEntry", []any{1}, map[string]any{"ifDescr": "eth0", "ifAdminStatus": 1})
	require.NoError(t, err)

	v, err := e.ResolveAt(ifCell(2, 1))
	require.NoError(t, err)
	assert.Equal(t, "eth0", string(v.Bytes()))

	// single row: the walk leaves ifDescr for the first row of the next
	// column, ifPhysAddress (.6)
	next, v, err := e.NextAfter(ifCell(2, 1))
	require.NoError(t, err)
	assert.Equal(t, ifCell(6, 1), next)
	assert.Equal(t, make([]byte, 6), v.Bytes(), "physical address defaults to six zero octets")

	_, err = e.InsertRow("ifEntry", []any{2}, map[string]any{"ifDescr": "eth1"})
	require.NoError(t, err)

	// with a second row ifDescr.2 comes first
	next, v, err = e.NextAfter(ifCell(2, 1))
	require.NoError(t, err)
	assert.Equal(t, ifCell(2, 2), next)
	assert.Equal(t, "eth1", string(v.Bytes()))
}

func TestScenario_OutOfRangeEnumLeavesValue(t *testing.T) {
	e, _ := newEngine(t, fixture.MIB())
	target := ifCell(7, 1)

	err := e.ApplyWrite(target, 7)
	assert.ErrorIs(t, err, mibtypes.ErrValidation)

	v, err := e.ResolveAt(target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int())
}

// ─────────────────────────────────────────────────────────────────────────────
// Ordering properties
// ─────────────────────────────────────────────────────────────────────────────

func TestNextAfter_WalkFromZero(t *testing.T) {
	e, _ := newEngine(t, fixture.MIB())
	_, err := e.InsertRow("testEntry", []any{"b", "10.0.0.2"}, nil)
	require.NoError(t, err)
	_, err = e.InsertRow("testEntry", []any{"a", "192.168.1.1"}, nil)
	require.NoError(t, err)

	var (
		walked []oid.OID
		cur    = oid.OID{}
	)
	for {
		next, _, err := e.NextAfter(cur)
		if errors.Is(err, registrar.ErrEndOfTree) {
			break
		}
		require.NoError(t, err)
		walked = append(walked, next)
		cur = next
		require.Less(t, len(walked), 1000, "walk does not terminate")
	}

	assert.Len(t, walked, e.Tree().Size())
	seen := make(map[string]bool)
	for i, o := range walked {
		assert.False(t, seen[o.String()], "visited twice: %s", o)
		seen[o.String()] = true
		if i > 0 {
			assert.True(t, walked[i-1].Less(o), "%s !< %s", walked[i-1], o)
		}
		_, err := e.ResolveAt(o)
		assert.NoError(t, err, o.String())
	}

	// shorter string index sorts first: "a" (length 1) before "alpha"
	testA := oid.MustParse(fixture.TestEntry + ".3")
	var rows []oid.OID
	for _, o := range walked {
		if row, ok := o.TrimPrefix(testA); ok {
			rows = append(rows, row)
		}
	}
	require.Len(t, rows, 3)
	assert.Equal(t, oid.OID{1, 'a', 192, 168, 1, 1}, rows[0])
	assert.Equal(t, oid.OID{1, 'b', 10, 0, 0, 2}, rows[1])
}

func TestWalk_MatchesNextAfter(t *testing.T) {
	e, _ := newEngine(t, fixture.MIB())

	var viaWalk []string
	require.NoError(t, e.Walk(nil, func(i registrar.Instance, _ mibtypes.ResolvedValue) bool {
		viaWalk = append(viaWalk, i.OID.String())
		return true
	}))
	assert.Len(t, viaWalk, 25)
	assert.Equal(t, fixture.SysDescr+".0", viaWalk[0])
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

func TestApplyWrite(t *testing.T) {
	e, _ := newEngine(t, fixture.MIB())
	sysName := oid.MustParse(fixture.SysName + ".0")

	require.NoError(t, e.ApplyWrite(sysName, "edge-1"))
	v, err := e.ResolveAt(sysName)
	require.NoError(t, err)
	assert.Equal(t, "edge-1", string(v.Bytes()))

	assert.ErrorIs(t, e.ApplyWrite(ifCell(2, 1), "x"), behaviour.ErrAccessDenied)
	assert.ErrorIs(t, e.ApplyWrite(ifCell(7, 9), 1), registrar.ErrNoSuchInstance)
	assert.ErrorIs(t, e.ApplyWrite(oid.MustParse("1.3.6.1.6.1.0"), 1), registrar.ErrNotFound)

	_, err = e.CheckWrite(ifCell(7, 1), 2)
	require.NoError(t, err)
	v, _ = e.ResolveAt(ifCell(7, 1))
	assert.Equal(t, int64(1), v.Int(), "CheckWrite changes nothing")
}

func TestApplyWrite_BoundIsReadOnly(t *testing.T) {
	m, reg := fixture.Model(t, fixture.MIB())
	dyn := behaviour.NewDynamicRegistry()
	require.NoError(t, dyn.Register("fixed", func(behaviour.DynamicCall) (any, error) { return "bound", nil }))
	s, err := behaviour.New(m, reg, behaviour.Config{Dynamic: dyn}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Bind(behaviour.Binding{Name: "sysContact", Function: "fixed"}))
	e := responder.New([]*behaviour.Store{s}, nil)

	target := oid.MustParse(fixture.SysContact + ".0")
	assert.ErrorIs(t, e.ApplyWrite(target, "other"), behaviour.ErrAccessDenied)
	v, err := e.ResolveAt(target)
	require.NoError(t, err)
	assert.Equal(t, "bound", string(v.Bytes()))
}

func TestApplyWrite_LinkedColumns(t *testing.T) {
	e, s := newEngine(t, fixture.MIB())
	require.NoError(t, s.AddLink(links.Link{ID: "ab", Columns: []string{"testA", "testB"}}))
	row := oid.OID{5, 'a', 'l', 'p', 'h', 'a', 10, 0, 0, 1}
	a := oid.MustParse(fixture.TestEntry + ".3").Concat(row)
	b := oid.MustParse(fixture.TestEntry + ".4").Concat(row)

	require.NoError(t, e.ApplyWrite(a, 4))
	va, _ := e.ResolveAt(a)
	vb, _ := e.ResolveAt(b)
	assert.Equal(t, int64(4), va.Int())
	assert.Equal(t, int64(4), vb.Int())

	require.NoError(t, e.ApplyWrite(b, 9))
	va, _ = e.ResolveAt(a)
	vb, _ = e.ResolveAt(b)
	assert.Equal(t, int64(9), va.Int())
	assert.Equal(t, int64(9), vb.Int())
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

func TestRowOperations(t *testing.T) {
	e, _ := newEngine(t, fixture.MIB())

	_, err := e.InsertRow("ifEntry", []any{1}, nil)
	assert.ErrorIs(t, err, tableindex.ErrDuplicateRow)

	require.NoError(t, e.RemoveRow("ifEntry", []any{2}))
	_, err = e.ResolveAt(ifCell(2, 2))
	assert.ErrorIs(t, err, registrar.ErrNoSuchInstance)
	assert.ErrorIs(t, e.RemoveRow("ifEntry", []any{2}), tableindex.ErrNoSuchRow)

	require.NoError(t, e.RestoreRow("ifEntry", []any{2}))
	v, err := e.ResolveAt(ifCell(2, 2))
	require.NoError(t, err)
	assert.Equal(t, "eth1", string(v.Bytes()))

	_, err = e.InsertRow("nope", nil, nil)
	assert.ErrorIs(t, err, behaviour.ErrUnknownObject)
}

func TestRebuild_AfterSchemaSwap(t *testing.T) {
	e, s := newEngine(t, fixture.MIB())
	require.NoError(t, e.ApplyWrite(oid.MustParse(fixture.SysLocation+".0"), "lab"))

	bare, _ := fixture.Model(t, fixture.Bare())
	require.NoError(t, s.SwapSchema(bare))
	e.Rebuild(s)

	_, err := e.ResolveAt(ifCell(2, 1))
	assert.ErrorIs(t, err, registrar.ErrNoSuchInstance)
	v, err := e.ResolveAt(oid.MustParse(fixture.SysLocation + ".0"))
	require.NoError(t, err)
	assert.Equal(t, "lab", string(v.Bytes()))
	assert.Len(t, e.Stores(), 1)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	e, s := newEngine(t, fixture.MIB())
	require.NoError(t, s.AddLink(links.Link{ID: "ab", Columns: []string{"testA", "testB"}}))
	row := oid.OID{5, 'a', 'l', 'p', 'h', 'a', 10, 0, 0, 1}
	a := oid.MustParse(fixture.TestEntry + ".3").Concat(row)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, e.ApplyWrite(a, w*100+i))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := e.InsertRow("ifEntry", []any{100 + r*20 + i}, nil)
				assert.NoError(t, err)
				assert.NoError(t, e.Walk(nil, func(registrar.Instance, mibtypes.ResolvedValue) bool { return true }))
			}
		}(r)
	}
	// a linked pair is never seen half written
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				st, ok := s.Row("testEntry", row)
				if !assert.True(t, ok) {
					return
				}
				ca, okA := st.Cells["testA"]
				cb, okB := st.Cells["testB"]
				assert.Equal(t, okA, okB, "read %d", i)
				if okA && okB {
					assert.Equal(t, ca.Value.Int(), cb.Value.Int(), "read %d", i)
				}
			}
		}()
	}
	wg.Wait()

	rows, err := s.Rows("ifEntry")
	require.NoError(t, err)
	assert.Len(t, rows, 82)

	b := oid.MustParse(fixture.TestEntry + ".4").Concat(row)
	va, err := e.ResolveAt(a)
	require.NoError(t, err)
	vb, err := e.ResolveAt(b)
	require.NoError(t, err)
	assert.Equal(t, va.Int(), vb.Int())
}
