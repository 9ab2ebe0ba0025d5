package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/config"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
)

func tmpDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// ── PathsFromEnv ─────────────────────────────────────────────────────────────

func TestPathsFromEnv_Defaults(t *testing.T) {
	for _, v := range []string{
		"SNMPEMU_TYPE_DEFINITIONS_DIRECTORY_PATH",
		"SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH",
		"SNMPEMU_BEHAVIOUR_DEFINITIONS_DIRECTORY_PATH",
	} {
		t.Setenv(v, "")
	}
	p := config.PathsFromEnv()
	assert.Equal(t, "/etc/snmp_emulator/types", p.Types)
	assert.Equal(t, "/etc/snmp_emulator/mibs", p.MIBs)
	assert.Equal(t, "/etc/snmp_emulator/behaviours", p.Behaviours)
	assert.Len(t, p.Dirs(), 3)
}

func TestPathsFromEnv_Override(t *testing.T) {
	t.Setenv("SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH", "/custom/mibs")
	p := config.PathsFromEnv()
	assert.Equal(t, "/custom/mibs", p.MIBs)
}

// ── Full load ────────────────────────────────────────────────────────────────

const typesYAML = `
types:
  - name: PortState
    parent: Integer32
    enums:
      - { value: 1, label: up }
      - { value: 2, label: down }
  - name: ShortName
    parent: DisplayString
    sizes:
      - { min: 0, max: 8 }
`

const systemYAML = `
mib: EMU-PORT-MIB
symbols:
  - { name: portCount, oid: 1.3.6.1.4.1.99999.1.1, role: scalar, type: Integer32, access: read-only, initial: 2 }
  - { name: portTable, oid: 1.3.6.1.4.1.99999.1.2, role: table }
  - { name: portEntry, oid: 1.3.6.1.4.1.99999.1.2.1, role: table-entry, indexes: [portIndex] }
  - { name: portIndex, oid: 1.3.6.1.4.1.99999.1.2.1.1, role: index-column, type: Integer32, access: not-accessible, table: portEntry }
`

// two documents for the same MIB are merged
const portsYAML = `
mib: EMU-PORT-MIB
symbols:
  - { name: portName, oid: 1.3.6.1.4.1.99999.1.2.1.2, role: data-column, type: ShortName, access: read-write, table: portEntry }
  - { name: portState, oid: 1.3.6.1.4.1.99999.1.2.1.3, role: data-column, type: PortState, access: read-write, table: portEntry }
rows:
  - { table: portEntry, index: [1], values: { portName: ge-0, portState: up } }
---
mib: EMU-PORT-MIB
rows:
  - { table: portEntry, index: [2], values: { portName: ge-1 } }
`

const behaviourYAML = `
mib: EMU-PORT-MIB
bindings:
  - { oid: 1.3.6.1.4.1.99999.1.1, function: cycle, params: { values: [1, 2] } }
links:
  - { id: names, columns: [portName, portState], scope: global }
values:
  - { name: portState, index: [2], value: down }
unknown_key: tolerated
`

func TestLoad_Full(t *testing.T) {
	paths := config.Paths{
		Types:      tmpDir(t, map[string]string{"types.yaml": typesYAML}),
		MIBs:       tmpDir(t, map[string]string{"a/system.yml": systemYAML, "b/ports.yaml": portsYAML, "README.md": "ignored"}),
		Behaviours: tmpDir(t, map[string]string{"ports.yaml": behaviourYAML}),
	}

	cfg, err := config.Load(paths, nil)
	require.NoError(t, err)

	require.Len(t, cfg.Types, 2)
	require.Len(t, cfg.MIBs, 1)
	def, ok := cfg.MIB("EMU-PORT-MIB")
	require.True(t, ok)
	assert.Len(t, def.Symbols, 6)
	assert.Len(t, def.Rows, 2)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, reg.Has("PortState"))
	res, err := reg.Resolve("ShortName")
	require.NoError(t, err)
	assert.Equal(t, mibtypes.BaseOctetString, res.Base)

	model, err := schema.Build(def, reg, nil, nil)
	require.NoError(t, err)
	tbl, ok := model.Table("portEntry")
	require.True(t, ok)
	assert.Len(t, tbl.SeedRows, 2)

	beh := cfg.Behaviours["EMU-PORT-MIB"]
	bindings, err := config.Bindings(beh, model)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "portCount", bindings[0].Name)
	assert.Equal(t, "cycle", bindings[0].Function)

	ls, err := config.Links(beh)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, links.Global, ls[0].Scope)

	require.Len(t, beh.Values, 1)
	assert.Equal(t, "down", beh.Values[0].Value)
}

func TestLoad_MissingDirectoriesAreEmpty(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	cfg, err := config.Load(config.Paths{Types: missing, MIBs: missing, Behaviours: missing}, nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Types)
	assert.Empty(t, cfg.MIBs)
	assert.Empty(t, cfg.Behaviours)
}

func TestLoad_MalformedFileIsSkipped(t *testing.T) {
	paths := config.Paths{
		MIBs: tmpDir(t, map[string]string{
			"good.yaml": systemYAML,
			"bad.yaml":  "mib: [unterminated",
		}),
	}
	cfg, err := config.Load(paths, nil)
	require.NoError(t, err)
	assert.Len(t, cfg.MIBs, 1)
}

func TestLoad_SemanticErrorsAreAccumulated(t *testing.T) {
	paths := config.Paths{
		Types: tmpDir(t, map[string]string{
			"types.yaml": "types:\n  - { name: Orphan, parent: NoSuchType }\n",
		}),
		MIBs: tmpDir(t, map[string]string{
			"bad-oid.yaml": "mib: X-MIB\nsymbols:\n  - { name: x, oid: 1.3.x, role: scalar, type: Integer32 }\n",
			"no-name.yaml": "symbols: []\n",
		}),
		Behaviours: tmpDir(t, map[string]string{
			"b.yaml": "mib: X-MIB\nbindings:\n  - { name: x }\n",
		}),
	}
	_, err := config.Load(paths, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 error(s)")
	assert.Contains(t, err.Error(), "NoSuchType")
	assert.Contains(t, err.Error(), "symbol x")
	assert.Contains(t, err.Error(), "without a name")
	assert.Contains(t, err.Error(), "no function")
}

// ── Conversion ───────────────────────────────────────────────────────────────

func TestConvertType(t *testing.T) {
	tests := []struct {
		name    string
		in      models.TypeDefinition
		wantErr bool
	}{
		{"root", models.TypeDefinition{Name: "Blob", Base: "octet string"}, false},
		{"derived", models.TypeDefinition{Name: "Small", Parent: "Integer32", Ranges: []models.BoundDefinition{{Min: 0, Max: 5}}}, false},
		{"no name", models.TypeDefinition{Base: "integer"}, true},
		{"no base nor parent", models.TypeDefinition{Name: "X"}, true},
		{"bad base", models.TypeDefinition{Name: "X", Base: "float"}, true},
		{"empty range", models.TypeDefinition{Name: "X", Parent: "Integer32", Ranges: []models.BoundDefinition{{Min: 5, Max: 1}}}, true},
		{"negative size", models.TypeDefinition{Name: "X", Parent: "OCTET STRING", Sizes: []models.BoundDefinition{{Min: -1, Max: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ConvertType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	d, err := config.ConvertType(models.TypeDefinition{
		Name:   "Mode",
		Parent: "Integer32",
		Enums:  []models.EnumDefinition{{Value: 1, Label: "on"}},
		Sizes:  nil,
		Ranges: []models.BoundDefinition{{Min: 1, Max: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []mibtypes.EnumValue{{Value: 1, Label: "on"}}, d.Enums)
	assert.Equal(t, []mibtypes.Constraint{{Kind: mibtypes.KindRange, Min: 1, Max: 2}}, d.Constraints)
}

func TestBindings_UnknownOID(t *testing.T) {
	paths := config.Paths{MIBs: tmpDir(t, map[string]string{"m.yaml": systemYAML + `
  - { name: portName, oid: 1.3.6.1.4.1.99999.1.2.1.2, role: data-column, type: DisplayString, access: read-write, table: portEntry }
`})}
	cfg, err := config.Load(paths, nil)
	require.NoError(t, err)
	reg, err := cfg.Registry()
	require.NoError(t, err)
	model, err := schema.Build(cfg.MIBs[0], reg, nil, nil)
	require.NoError(t, err)

	_, err = config.Bindings(models.BehaviourDefinition{
		Bindings: []models.BindingDefinition{{OID: "1.3.6.1.4.1.99999.9", Function: "counter"}},
	}, model)
	assert.Error(t, err)
}

func TestLinks_BadScope(t *testing.T) {
	_, err := config.Links(models.BehaviourDefinition{
		Links: []models.LinkDefinition{{ID: "l", Columns: []string{"a", "b"}, Scope: "sideways"}},
	})
	assert.ErrorIs(t, err, links.ErrInvalidLink)
}
