package mibtypes

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// ResolvedValue
// ─────────────────────────────────────────────────────────────────────────────

// ResolvedValue is a value tagged with the type it was created for. Value is
// always one of int64 (INTEGER), []byte (OCTET STRING) or oid.OID
// (OBJECT IDENTIFIER), matching Base.
type ResolvedValue struct {
	Type   string
	Base   Base
	Syntax string
	Value  any
}

// IsZero reports whether v was never set.
func (v ResolvedValue) IsZero() bool { return v.Base == 0 }

// Int returns the INTEGER payload, or 0 for other categories.
func (v ResolvedValue) Int() int64 {
	n, _ := v.Value.(int64)
	return n
}

// Bytes returns the OCTET STRING payload, or nil for other categories.
func (v ResolvedValue) Bytes() []byte {
	b, _ := v.Value.([]byte)
	return b
}

// OID returns the OBJECT IDENTIFIER payload, or nil for other categories.
func (v ResolvedValue) OID() oid.OID {
	o, _ := v.Value.(oid.OID)
	return o
}

// Equal compares base category and payload. The type name is ignored so that
// a value propagated between two columns of different but compatible types
// still compares equal.
func (v ResolvedValue) Equal(o ResolvedValue) bool {
	if v.Base != o.Base {
		return false
	}
	switch v.Base {
	case BaseInteger:
		return v.Int() == o.Int()
	case BaseOctetString:
		return bytes.Equal(v.Bytes(), o.Bytes())
	case BaseObjectIdentifier:
		return v.OID().Equal(o.OID())
	}
	return v.Value == nil && o.Value == nil
}

// String renders the payload for logs and dumps. Printable octet strings are
// shown as text, everything else as hex.
func (v ResolvedValue) String() string {
	switch v.Base {
	case BaseInteger:
		return strconv.FormatInt(v.Int(), 10)
	case BaseOctetString:
		b := v.Bytes()
		if v.Syntax == SyntaxIPAddress && len(b) == 4 {
			return net.IP(b).String()
		}
		if printable(b) {
			return string(b)
		}
		return "0x" + hex.EncodeToString(b)
	case BaseObjectIdentifier:
		return v.OID().String()
	}
	return "<unset>"
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolver operations
// ─────────────────────────────────────────────────────────────────────────────

// CreateProtocolValue tags value with typeName's base category. The native
// kind must already match: integers for INTEGER, string or []byte for
// OCTET STRING, oid.OID or []uint32 for OBJECT IDENTIFIER. Anything else
// fails with ErrTypeMismatch. Constraints are not checked; see Validate.
func (r *Registry) CreateProtocolValue(typeName string, value any) (ResolvedValue, error) {
	res, err := r.Resolve(typeName)
	if err != nil {
		return ResolvedValue{}, err
	}
	native, err := nativeValue(res.Base, value)
	if err != nil {
		return ResolvedValue{}, fmt.Errorf("mibtypes: %s: %w", typeName, err)
	}
	return ResolvedValue{Type: res.Name, Base: res.Base, Syntax: res.Syntax, Value: native}, nil
}

// Validate checks value against typeName. It fails with ErrTypeMismatch when
// the native kind is wrong, then with ErrValidation when the value is not an
// enumerated number or falls outside every range or size interval. A type
// without constraints accepts any value of its category.
func (r *Registry) Validate(typeName string, value any) error {
	res, err := r.Resolve(typeName)
	if err != nil {
		return err
	}
	native, err := nativeValue(res.Base, value)
	if err != nil {
		return fmt.Errorf("mibtypes: %s: %w", typeName, err)
	}
	if err := check(res, native); err != nil {
		return fmt.Errorf("mibtypes: %s: %w", typeName, err)
	}
	return nil
}

// Valid is Validate reduced to a bool.
func (r *Registry) Valid(typeName string, value any) bool {
	return r.Validate(typeName, value) == nil
}

// DefaultValue returns the value a symbol of typeName holds when nothing else
// supplies one:
//
//   - INTEGER: the smallest enumerated number, else 0 when 0 is in range,
//     else the lowest range minimum.
//   - OCTET STRING: six zero octets for MAC/physical address conventions,
//     else zero octets of the smallest permitted size (empty when 0 fits).
//   - OBJECT IDENTIFIER: 0.0.
func (r *Registry) DefaultValue(typeName string) (ResolvedValue, error) {
	res, err := r.Resolve(typeName)
	if err != nil {
		return ResolvedValue{}, err
	}
	var native any
	switch res.Base {
	case BaseInteger:
		native = defaultInteger(res)
	case BaseOctetString:
		native = defaultOctets(res)
	case BaseObjectIdentifier:
		native = oid.OID{0, 0}
	}
	return ResolvedValue{Type: res.Name, Base: res.Base, Syntax: res.Syntax, Value: native}, nil
}

func defaultInteger(res Resolved) int64 {
	if len(res.Enums) > 0 {
		return res.Enums[0].Value
	}
	ranges := res.Ranges()
	if len(ranges) == 0 || inAny(ranges, 0) {
		return 0
	}
	lowest := ranges[0].Min
	for _, c := range ranges[1:] {
		if c.Min < lowest {
			lowest = c.Min
		}
	}
	return lowest
}

func defaultOctets(res Resolved) []byte {
	if res.AddressLike() {
		mac := make([]byte, 6)
		if check(res, mac) == nil {
			return mac
		}
	}
	sizes := res.Sizes()
	if len(sizes) == 0 || inAny(sizes, 0) {
		return []byte{}
	}
	smallest := sizes[0].Min
	for _, c := range sizes[1:] {
		if c.Min < smallest {
			smallest = c.Min
		}
	}
	if smallest < 0 {
		smallest = 0
	}
	return make([]byte, smallest)
}

// Coerce is the lenient entry point used for configuration and
// administrative input. On top of what CreateProtocolValue accepts it parses
// decimal strings and enumeration labels for INTEGER types, dotted IPv4 and
// colon-separated MAC strings, 0x-prefixed hex and integer lists for
// OCTET STRING, and dotted strings or integer lists for OBJECT IDENTIFIER.
// The result is validated.
func (r *Registry) Coerce(typeName string, value any) (ResolvedValue, error) {
	res, err := r.Resolve(typeName)
	if err != nil {
		return ResolvedValue{}, err
	}
	if rv, ok := value.(ResolvedValue); ok {
		value = rv.Value
	}

	var native any
	switch res.Base {
	case BaseInteger:
		native, err = coerceInteger(res, value)
	case BaseOctetString:
		native, err = coerceOctets(res, value)
	case BaseObjectIdentifier:
		native, err = coerceOID(value)
	}
	if err != nil {
		return ResolvedValue{}, fmt.Errorf("mibtypes: %s: %w", typeName, err)
	}
	if err := check(res, native); err != nil {
		return ResolvedValue{}, fmt.Errorf("mibtypes: %s: %w", typeName, err)
	}
	return ResolvedValue{Type: res.Name, Base: res.Base, Syntax: res.Syntax, Value: native}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Native kinds
// ─────────────────────────────────────────────────────────────────────────────

// nativeValue normalises value to the payload type of base without any
// parsing. ResolvedValue inputs are unwrapped first.
func nativeValue(base Base, value any) (any, error) {
	if rv, ok := value.(ResolvedValue); ok {
		value = rv.Value
	}
	switch base {
	case BaseInteger:
		n, ok, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		if ok {
			return n, nil
		}
	case BaseOctetString:
		switch x := value.(type) {
		case []byte:
			return append([]byte{}, x...), nil
		case string:
			return []byte(x), nil
		}
	case BaseObjectIdentifier:
		switch x := value.(type) {
		case oid.OID:
			return x.Clone(), nil
		case []uint32:
			return oid.OID(x).Clone(), nil
		}
	default:
		return nil, fmt.Errorf("unresolved base category: %w", ErrTypeMismatch)
	}
	return nil, fmt.Errorf("%T value for %s: %w", value, base, ErrTypeMismatch)
}

// toInt64 widens any Go integer kind. ok is false when value is not an
// integer at all.
func toInt64(value any) (n int64, ok bool, err error) {
	switch x := value.(type) {
	case int:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, true, fmt.Errorf("uint value %d overflows int64: %w", x, ErrValidation)
		}
		return int64(x), true, nil
	case uint8:
		return int64(x), true, nil
	case uint16:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, true, fmt.Errorf("uint64 value %d overflows int64: %w", x, ErrValidation)
		}
		return int64(x), true, nil
	}
	return 0, false, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Constraint checks
// ─────────────────────────────────────────────────────────────────────────────

const maxOIDArcs = 128

func check(res Resolved, native any) error {
	switch res.Base {
	case BaseInteger:
		n := native.(int64)
		if len(res.Enums) > 0 {
			if _, ok := res.EnumLabel(n); !ok {
				return fmt.Errorf("%d is not an enumerated value: %w", n, ErrValidation)
			}
		}
		if ranges := res.Ranges(); len(ranges) > 0 && !inAny(ranges, n) {
			return fmt.Errorf("%d outside %s: %w", n, describe(ranges), ErrValidation)
		}
	case BaseOctetString:
		b := native.([]byte)
		if sizes := res.Sizes(); len(sizes) > 0 && !inAny(sizes, int64(len(b))) {
			return fmt.Errorf("length %d outside size %s: %w", len(b), describe(sizes), ErrValidation)
		}
	case BaseObjectIdentifier:
		o := native.(oid.OID)
		if len(o) > maxOIDArcs {
			return fmt.Errorf("%d arcs exceeds %d: %w", len(o), maxOIDArcs, ErrValidation)
		}
	}
	return nil
}

func inAny(cs []Constraint, n int64) bool {
	for _, c := range cs {
		if n >= c.Min && n <= c.Max {
			return true
		}
	}
	return false
}

func describe(cs []Constraint) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		if c.Min == c.Max {
			parts[i] = strconv.FormatInt(c.Min, 10)
		} else {
			parts[i] = fmt.Sprintf("%d..%d", c.Min, c.Max)
		}
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

// ─────────────────────────────────────────────────────────────────────────────
// Lenient parsing
// ─────────────────────────────────────────────────────────────────────────────

func coerceInteger(res Resolved, value any) (int64, error) {
	if n, ok, err := toInt64(value); ok || err != nil {
		return n, err
	}
	switch x := value.(type) {
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer: %w", x, ErrTypeMismatch)
		}
		return int64(x), nil
	case bool:
		label := "false"
		if x {
			label = "true"
		}
		if n, ok := res.EnumNumber(label); ok {
			return n, nil
		}
	case string:
		s := strings.TrimSpace(x)
		if n, ok := res.EnumNumber(s); ok {
			return n, nil
		}
		// "up(1)" style labels.
		if i := strings.IndexByte(s, '('); i > 0 && strings.HasSuffix(s, ")") {
			s = s[i+1 : len(s)-1]
		}
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is neither a number nor a label: %w", x, ErrTypeMismatch)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%T value for %s: %w", value, res.Base, ErrTypeMismatch)
}

func coerceOctets(res Resolved, value any) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return append([]byte{}, x...), nil
	case string:
		if res.Syntax == SyntaxIPAddress {
			if ip := net.ParseIP(x).To4(); ip != nil {
				return []byte(ip), nil
			}
		}
		if res.AddressLike() {
			if mac, err := net.ParseMAC(x); err == nil {
				return []byte(mac), nil
			}
		}
		if strings.HasPrefix(x, "0x") || strings.HasPrefix(x, "0X") {
			if b, err := hex.DecodeString(x[2:]); err == nil {
				return b, nil
			}
		}
		return []byte(x), nil
	case []any:
		out := make([]byte, len(x))
		for i, e := range x {
			n, ok, err := toInt64(e)
			if !ok || err != nil || n < 0 || n > 255 {
				return nil, fmt.Errorf("octet %d (%v) is not a byte: %w", i, e, ErrTypeMismatch)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T value for %s: %w", value, res.Base, ErrTypeMismatch)
}

func coerceOID(value any) (oid.OID, error) {
	switch x := value.(type) {
	case oid.OID:
		return x.Clone(), nil
	case []uint32:
		return oid.OID(x).Clone(), nil
	case string:
		o, err := oid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrTypeMismatch)
		}
		return o, nil
	case []any:
		out := make(oid.OID, len(x))
		for i, e := range x {
			n, ok, err := toInt64(e)
			if !ok || err != nil || n < 0 || n > math.MaxUint32 {
				return nil, fmt.Errorf("arc %d (%v) is not a sub-identifier: %w", i, e, ErrTypeMismatch)
			}
			out[i] = uint32(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T value for %s: %w", value, BaseObjectIdentifier, ErrTypeMismatch)
}
