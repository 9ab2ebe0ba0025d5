package registrar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/internal/fixture"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/registrar"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

func store(t *testing.T, def models.MIBDefinition) *behaviour.Store {
	t.Helper()
	m, reg := fixture.Model(t, def)
	s, err := behaviour.New(m, reg, behaviour.Config{}, nil)
	require.NoError(t, err)
	return s
}

func TestLocate(t *testing.T) {
	tree := registrar.Build([]*behaviour.Store{store(t, fixture.MIB())}, nil)

	inst, err := tree.Locate(oid.MustParse(fixture.SysName + ".0"))
	require.NoError(t, err)
	assert.Equal(t, "sysName", inst.Name)
	assert.Equal(t, "EMU-TEST-MIB", inst.MIB)

	inst, err = tree.Locate(oid.MustParse(fixture.IfEntry + ".2.2"))
	require.NoError(t, err)
	assert.Equal(t, "ifDescr", inst.Name)
	assert.Equal(t, oid.OID{2}, inst.Target.Row)
	v, err := inst.Read()
	require.NoError(t, err)
	assert.Equal(t, "eth1", string(v.Bytes()))

	cases := []struct {
		oid  string
		want error
	}{
		{fixture.SysName, registrar.ErrNoSuchInstance},
		{fixture.SysName + ".1", registrar.ErrNoSuchInstance},
		{fixture.IfEntry + ".2", registrar.ErrNoSuchInstance},
		{fixture.IfEntry + ".2.9", registrar.ErrNoSuchInstance},
		{fixture.IfEntry + ".3.1", registrar.ErrNotFound},
		{fixture.TestEntry + ".1.5.97.108.112.104.97.10.0.0.1", registrar.ErrNotFound},
		{"1.3.6.1.6", registrar.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := tree.Locate(oid.MustParse(tc.oid))
		assert.ErrorIs(t, err, tc.want, tc.oid)
	}
	_, err = tree.Locate(oid.MustParse("1.3.6.1.6"))
	assert.NotErrorIs(t, err, registrar.ErrNoSuchInstance)
}

func TestNext_ColumnMajor(t *testing.T) {
	tree := registrar.Build([]*behaviour.Store{store(t, fixture.MIB())}, nil)

	steps := []struct{ from, want string }{
		{"", fixture.SysDescr + ".0"},
		{fixture.SysLocation + ".0", fixture.IfNumber + ".0"},
		{fixture.IfNumber + ".0", fixture.IfEntry + ".1.1"},
		{fixture.IfEntry + ".1.2", fixture.IfEntry + ".2.1"},
		{fixture.IfEntry + ".2.1", fixture.IfEntry + ".2.2"},
		{fixture.IfEntry + ".2.2", fixture.IfEntry + ".6.1"},
		{fixture.IfEntry + ".3", fixture.IfEntry + ".6.1"},
		{fixture.IfEntry + ".8.2", fixture.IfXEntry + ".1.1"},
		{fixture.IfXEntry + ".1.2", fixture.IfXEntry + ".18.1"},
		{fixture.IfXEntry + ".18.2", fixture.TestEntry + ".3.5.97.108.112.104.97.10.0.0.1"},
		{"1.3.6.1.2.1.2.2.1.2.1.5", fixture.IfEntry + ".2.2"},
	}
	for _, s := range steps {
		inst, err := tree.Next(oid.MustParse(s.from))
		require.NoError(t, err, s.from)
		assert.Equal(t, s.want, inst.OID.String(), "after %s", s.from)
	}

	_, err := tree.Next(oid.MustParse(fixture.TestEntry + ".6.5.97.108.112.104.97.10.0.0.1"))
	assert.ErrorIs(t, err, registrar.ErrEndOfTree)
}

func TestNext_InterleavesMIBs(t *testing.T) {
	other := models.MIBDefinition{
		Name: "OTHER-MIB",
		Symbols: []models.SymbolDescriptor{
			{Name: "otherSysDescr", OID: fixture.SysDescr, Role: models.RoleScalar, Type: "DisplayString"},
			{Name: "between", OID: "1.3.6.1.2.1.3", Role: models.RoleScalar, Type: "Integer32"},
		},
	}
	tree := registrar.Build([]*behaviour.Store{store(t, fixture.MIB()), store(t, other)}, nil)

	inst, err := tree.Locate(oid.MustParse(fixture.SysDescr + ".0"))
	require.NoError(t, err)
	assert.Equal(t, "EMU-TEST-MIB", inst.MIB, "first MIB keeps a duplicated OID")

	inst, err = tree.Next(oid.MustParse(fixture.IfEntry + ".8.2"))
	require.NoError(t, err)
	assert.Equal(t, "between", inst.Name)
	assert.Equal(t, "OTHER-MIB", inst.MIB)
}

func TestWalk_VisitsEveryInstanceOnce(t *testing.T) {
	tree := registrar.Build([]*behaviour.Store{store(t, fixture.MIB())}, nil)

	var seen []oid.OID
	require.NoError(t, tree.Walk(nil, func(i registrar.Instance, _ mibtypes.ResolvedValue) bool {
		seen = append(seen, i.OID)
		return true
	}))
	// 7 scalars, 5 ifEntry and 2 ifXEntry columns over 2 rows, 4 readable
	// testEntry columns over 1 row
	assert.Len(t, seen, 25)
	assert.Equal(t, 25, tree.Size())
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].Less(seen[i]), "%s !< %s", seen[i-1], seen[i])
	}

	n := 0
	require.NoError(t, tree.Walk(nil, func(registrar.Instance, mibtypes.ResolvedValue) bool {
		n++
		return n < 3
	}))
	assert.Equal(t, 3, n)
}

func TestTree_SeesRowsOfSwappedSchema(t *testing.T) {
	s := store(t, fixture.MIB())
	tree := registrar.Build([]*behaviour.Store{s}, nil)

	bare, _ := fixture.Model(t, fixture.Bare())
	require.NoError(t, s.SwapSchema(bare))
	_, err := s.CreateRow("ifEntry", []any{9}, map[string]any{"ifDescr": "eth9"})
	require.NoError(t, err)

	_, err = tree.Locate(oid.MustParse(fixture.IfEntry + ".2.1"))
	assert.ErrorIs(t, err, registrar.ErrNoSuchInstance, "seed rows left with the old schema")

	inst, err := tree.Locate(oid.MustParse(fixture.IfEntry + ".2.9"))
	require.NoError(t, err)
	v, err := inst.Read()
	require.NoError(t, err)
	assert.Equal(t, "eth9", string(v.Bytes()))

	inst, err = tree.Next(oid.MustParse(fixture.IfEntry + ".2"))
	require.NoError(t, err)
	assert.Equal(t, fixture.IfEntry+".2.9", inst.OID.String())
}
