// Package fixture provides a small MIB used by the emulator's package tests:
// part of the system group, ifTable with ifXTable augmenting it, and a
// two-index private table for index encoding and value links.
package fixture

import (
	"testing"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
)

// Well-known OIDs of the fixture.
const (
	SysDescr    = "1.3.6.1.2.1.1.1"
	SysObjectID = "1.3.6.1.2.1.1.2"
	SysUpTime   = "1.3.6.1.2.1.1.3"
	SysContact  = "1.3.6.1.2.1.1.4"
	SysName     = "1.3.6.1.2.1.1.5"
	SysLocation = "1.3.6.1.2.1.1.6"
	IfNumber    = "1.3.6.1.2.1.2.1"
	IfEntry     = "1.3.6.1.2.1.2.2.1"
	IfXEntry    = "1.3.6.1.2.1.31.1.1.1"
	TestEntry   = "1.3.6.1.4.1.99999.1.1.1"
)

// Types returns the textual conventions the fixture needs on top of the
// built-in catalogue.
func Types() []mibtypes.TypeDescriptor {
	return []mibtypes.TypeDescriptor{
		{Name: "IfAdminStatus", Parent: "INTEGER", Enums: []mibtypes.EnumValue{
			{Value: 1, Label: "up"}, {Value: 2, Label: "down"}, {Value: 3, Label: "testing"},
		}},
		{Name: "TestSmall", Parent: "Integer32", Constraints: []mibtypes.Constraint{
			{Kind: mibtypes.KindRange, Min: 0, Max: 10},
		}},
	}
}

// Registry returns a registry with the built-ins plus Types.
func Registry() *mibtypes.Registry {
	reg := mibtypes.NewRegistry()
	if err := reg.Register(Types()...); err != nil {
		panic(err)
	}
	return reg
}

func sym(name, o string, role models.Role, typ string, access models.Access, table string) models.SymbolDescriptor {
	return models.SymbolDescriptor{Name: name, OID: o, Role: role, Type: typ, Access: access, Table: table}
}

// Bare returns the fixture MIB without seed rows.
func Bare() models.MIBDefinition {
	ro, rw, na := models.AccessReadOnly, models.AccessReadWrite, models.AccessNotAccessible
	return models.MIBDefinition{
		Name: "EMU-TEST-MIB",
		Symbols: []models.SymbolDescriptor{
			sym("sysDescr", SysDescr, models.RoleScalar, "DisplayString", ro, ""),
			sym("sysObjectID", SysObjectID, models.RoleScalar, "OBJECT IDENTIFIER", ro, ""),
			sym("sysUpTime", SysUpTime, models.RoleScalar, "TimeTicks", ro, ""),
			sym("sysContact", SysContact, models.RoleScalar, "DisplayString", rw, ""),
			sym("sysName", SysName, models.RoleScalar, "DisplayString", rw, ""),
			sym("sysLocation", SysLocation, models.RoleScalar, "DisplayString", rw, ""),
			sym("ifNumber", IfNumber, models.RoleScalar, "Integer32", ro, ""),

			{Name: "ifTable", OID: "1.3.6.1.2.1.2.2", Role: models.RoleTable},
			{Name: "ifEntry", OID: IfEntry, Role: models.RoleTableEntry, Indexes: []string{"ifIndex"}},
			sym("ifIndex", IfEntry+".1", models.RoleIndexColumn, "InterfaceIndex", ro, "ifEntry"),
			sym("ifDescr", IfEntry+".2", models.RoleDataColumn, "DisplayString", ro, "ifEntry"),
			sym("ifPhysAddress", IfEntry+".6", models.RoleDataColumn, "PhysAddress", ro, "ifEntry"),
			sym("ifAdminStatus", IfEntry+".7", models.RoleDataColumn, "IfAdminStatus", rw, "ifEntry"),
			sym("ifOperStatus", IfEntry+".8", models.RoleDataColumn, "IfAdminStatus", ro, "ifTable"),

			{Name: "ifXTable", OID: "1.3.6.1.2.1.31.1.1", Role: models.RoleTable},
			{Name: "ifXEntry", OID: IfXEntry, Role: models.RoleTableEntry, Augments: "ifEntry"},
			sym("ifName", IfXEntry+".1", models.RoleDataColumn, "DisplayString", ro, "ifXEntry"),
			sym("ifAlias", IfXEntry+".18", models.RoleDataColumn, "DisplayString", rw, "ifXEntry"),

			{Name: "testTable", OID: "1.3.6.1.4.1.99999.1.1", Role: models.RoleTable},
			{Name: "testEntry", OID: TestEntry, Role: models.RoleTableEntry, Indexes: []string{"testName", "testAddr"}},
			sym("testName", TestEntry+".1", models.RoleIndexColumn, "DisplayString", na, "testEntry"),
			sym("testAddr", TestEntry+".2", models.RoleIndexColumn, "IpAddress", na, "testEntry"),
			sym("testA", TestEntry+".3", models.RoleDataColumn, "Integer32", rw, "testEntry"),
			sym("testB", TestEntry+".4", models.RoleDataColumn, "Integer32", rw, "testEntry"),
			sym("testC", TestEntry+".5", models.RoleDataColumn, "Integer32", rw, "testEntry"),
			sym("testSmall", TestEntry+".6", models.RoleDataColumn, "TestSmall", rw, "testEntry"),
		},
	}
}

// MIB returns the fixture with seed rows: interfaces 1 (eth0, up) and
// 2 (eth1, down), and test row ("alpha", 10.0.0.1).
func MIB() models.MIBDefinition {
	def := Bare()
	def.Rows = []models.SeedRow{
		{Table: "ifEntry", Index: []any{1}, Values: map[string]any{"ifDescr": "eth0", "ifAdminStatus": "up"}},
		{Table: "ifEntry", Index: []any{2}, Values: map[string]any{"ifDescr": "eth1", "ifAdminStatus": 2}},
		{Table: "ifXEntry", Index: []any{1}, Values: map[string]any{"ifName": "Gi0/1"}},
		{Table: "testEntry", Index: []any{"alpha", "10.0.0.1"}, Values: map[string]any{"testA": 1}},
	}
	return def
}

// Model builds def against Registry with no default providers.
func Model(t testing.TB, def models.MIBDefinition) (*schema.Model, *mibtypes.Registry) {
	t.Helper()
	reg := Registry()
	m, err := schema.Build(def, reg, nil, nil)
	if err != nil {
		t.Fatalf("fixture: build %s: %v", def.Name, err)
	}
	return m, reg
}
