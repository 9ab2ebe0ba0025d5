package config

import (
	"fmt"

	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Behaviour conversion
// ─────────────────────────────────────────────────────────────────────────────

// Bindings converts the bindings of def, resolving OID references against
// model. A binding whose OID names no scalar or column is an error.
func Bindings(def models.BehaviourDefinition, model *schema.Model) ([]behaviour.Binding, error) {
	out := make([]behaviour.Binding, 0, len(def.Bindings))
	for _, b := range def.Bindings {
		name := b.Name
		if name == "" {
			o, err := oid.Parse(b.OID)
			if err != nil {
				return nil, fmt.Errorf("config: binding %s: %w", b.OID, err)
			}
			n, ok := model.NameOf(o)
			if !ok {
				return nil, fmt.Errorf("config: binding %s: no scalar or column at this oid", b.OID)
			}
			name = n
		}
		out = append(out, behaviour.Binding{Name: name, Function: b.Function, Params: b.Params})
	}
	return out, nil
}

// Links converts the value links of def.
func Links(def models.BehaviourDefinition) ([]links.Link, error) {
	out := make([]links.Link, 0, len(def.Links))
	for _, l := range def.Links {
		scope, err := links.ParseScope(l.Scope)
		if err != nil {
			return nil, fmt.Errorf("config: link %s: %w", l.ID, err)
		}
		out = append(out, links.Link{
			ID:      l.ID,
			Columns: append([]string(nil), l.Columns...),
			Scope:   scope,
		})
	}
	return out, nil
}
