// Package codec maps emulator values to and from gosnmp variable bindings.
// The BER tag of an outgoing value comes from its application syntax
// (Counter32, IpAddress, ...) and falls back to the base category.
package codec

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ErrUnsupported is returned for BER types the emulator does not model.
var ErrUnsupported = errors.New("unsupported BER type")

// ─────────────────────────────────────────────────────────────────────────────
// Outgoing
// ─────────────────────────────────────────────────────────────────────────────

// BERType returns the wire tag for a value of the given base and syntax.
func BERType(base mibtypes.Base, syntax string) gosnmp.Asn1BER {
	switch syntax {
	case mibtypes.SyntaxCounter32:
		return gosnmp.Counter32
	case mibtypes.SyntaxGauge32:
		return gosnmp.Gauge32
	case mibtypes.SyntaxUnsigned32:
		return gosnmp.Gauge32 // same tag, RFC 2578 §7.1.11
	case mibtypes.SyntaxTimeTicks:
		return gosnmp.TimeTicks
	case mibtypes.SyntaxCounter64:
		return gosnmp.Counter64
	case mibtypes.SyntaxIPAddress:
		return gosnmp.IPAddress
	case mibtypes.SyntaxOpaque:
		return gosnmp.Opaque
	}
	switch base {
	case mibtypes.BaseInteger:
		return gosnmp.Integer
	case mibtypes.BaseOctetString:
		return gosnmp.OctetString
	case mibtypes.BaseObjectIdentifier:
		return gosnmp.ObjectIdentifier
	}
	return gosnmp.Null
}

// ToPDU renders v as the varbind for o, with the Go value kinds gosnmp's
// marshaller expects for each tag.
func ToPDU(o oid.OID, v mibtypes.ResolvedValue) (gosnmp.SnmpPDU, error) {
	pdu := gosnmp.SnmpPDU{Name: o.Dotted(), Type: BERType(v.Base, v.Syntax)}
	switch pdu.Type {
	case gosnmp.Integer:
		n := v.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return pdu, fmt.Errorf("codec: %s: INTEGER %d outside 32 bits", o, n)
		}
		pdu.Value = int(n)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		n := v.Int()
		if n < 0 || n > math.MaxUint32 {
			return pdu, fmt.Errorf("codec: %s: %s %d outside 0..2^32-1", o, PDUTypeString(pdu.Type), n)
		}
		pdu.Value = uint32(n)
	case gosnmp.Counter64:
		n := v.Int()
		if n < 0 {
			return pdu, fmt.Errorf("codec: %s: negative Counter64", o)
		}
		pdu.Value = uint64(n)
	case gosnmp.IPAddress:
		b := v.Bytes()
		if len(b) != 4 {
			return pdu, fmt.Errorf("codec: %s: IpAddress needs 4 octets, have %d", o, len(b))
		}
		pdu.Value = net.IP(b).String()
	case gosnmp.OctetString, gosnmp.Opaque:
		pdu.Value = append([]byte{}, v.Bytes()...)
	case gosnmp.ObjectIdentifier:
		pdu.Value = v.OID().Dotted()
	default:
		return pdu, fmt.Errorf("codec: %s: %w", o, ErrUnsupported)
	}
	return pdu, nil
}

// Exception returns a v2c exception varbind (noSuchObject, noSuchInstance,
// endOfMibView) for o.
func Exception(o oid.OID, t gosnmp.Asn1BER) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: o.Dotted(), Type: t}
}

// ─────────────────────────────────────────────────────────────────────────────
// Incoming
// ─────────────────────────────────────────────────────────────────────────────

// FromPDU extracts the OID and a native value from an incoming varbind:
// int64 for integer tags, []byte for OCTET STRING, Opaque and IpAddress,
// oid.OID for OBJECT IDENTIFIER.
func FromPDU(pdu gosnmp.SnmpPDU) (oid.OID, any, error) {
	o, err := oid.Parse(pdu.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: varbind name: %w", err)
	}
	switch pdu.Type {
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		n, err := toInt64(pdu.Value)
		if err != nil {
			return o, nil, fmt.Errorf("codec: %s: %w", o, err)
		}
		return o, n, nil
	case gosnmp.OctetString, gosnmp.Opaque, gosnmp.BitString:
		switch x := pdu.Value.(type) {
		case []byte:
			return o, append([]byte{}, x...), nil
		case string:
			return o, []byte(x), nil
		}
	case gosnmp.IPAddress:
		switch x := pdu.Value.(type) {
		case string:
			if ip := net.ParseIP(x).To4(); ip != nil {
				return o, []byte(ip), nil
			}
			if len(x) == 4 {
				return o, []byte(x), nil
			}
		case []byte:
			if len(x) == 4 {
				return o, append([]byte{}, x...), nil
			}
		}
	case gosnmp.ObjectIdentifier:
		if s, ok := pdu.Value.(string); ok {
			v, err := oid.Parse(strings.TrimSpace(s))
			if err != nil {
				return o, nil, fmt.Errorf("codec: %s: %w", o, err)
			}
			return o, v, nil
		}
	default:
		return o, nil, fmt.Errorf("codec: %s: %s: %w", o, PDUTypeString(pdu.Type), ErrUnsupported)
	}
	return o, nil, fmt.Errorf("codec: %s: %s carries %T", o, PDUTypeString(pdu.Type), pdu.Value)
}

// Compatible reports whether an incoming tag may be written to a type with
// the given base and syntax. Integer-category tags must match the syntax
// exactly; Gauge32 and Unsigned32 share a tag.
func Compatible(t gosnmp.Asn1BER, base mibtypes.Base, syntax string) bool {
	want := BERType(base, syntax)
	if t == want {
		return true
	}
	return t == gosnmp.Uinteger32 && want == gosnmp.Gauge32
}
