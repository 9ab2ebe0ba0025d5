package schema

import "github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"

// DefaultValueProvider proposes an initial value for a symbol. It returns
// false when it has no opinion, and must not depend on runtime state. The
// returned value is parsed leniently against the symbol's type.
type DefaultValueProvider func(t mibtypes.Resolved, symbol string) (any, bool)

// Defaults is an ordered provider chain; the first answer wins.
type Defaults []DefaultValueProvider

// Lookup asks each provider in turn.
func (d Defaults) Lookup(t mibtypes.Resolved, symbol string) (any, bool) {
	for _, p := range d {
		if v, ok := p(t, symbol); ok {
			return v, true
		}
	}
	return nil, false
}
