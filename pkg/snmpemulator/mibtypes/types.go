// Package mibtypes is the emulator's type system. A Registry maps every named
// SMI type and textual convention onto one of three base categories and
// carries the constraints, enumeration and display hint each name adds on
// top of its parent.
//
// Only the three base categories are hard-coded. Everything else, including
// the SNMPv2-SMI application types, is a registry entry, so adding a type is
// a data change.
package mibtypes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrUnknownType is returned when a type name (or a parent in its chain)
	// is not registered, or when a chain loops back on itself.
	ErrUnknownType = errors.New("unknown type")

	// ErrTypeMismatch is returned when a value's native kind does not match
	// the base category of the target type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrValidation is returned when a value of the right kind violates an
	// enumeration, range or size constraint.
	ErrValidation = errors.New("validation failed")
)

// ─────────────────────────────────────────────────────────────────────────────
// Base categories
// ─────────────────────────────────────────────────────────────────────────────

// Base is one of the three ASN.1 encodings every type resolves to.
type Base int

const (
	BaseInteger Base = iota + 1
	BaseOctetString
	BaseObjectIdentifier
)

func (b Base) String() string {
	switch b {
	case BaseInteger:
		return "INTEGER"
	case BaseOctetString:
		return "OCTET STRING"
	case BaseObjectIdentifier:
		return "OBJECT IDENTIFIER"
	default:
		return fmt.Sprintf("Base(%d)", int(b))
	}
}

// ParseBase accepts the ASN.1 spelling ("OCTET STRING") as well as the
// compact forms used in YAML ("octetstring", "oid", "integer").
func ParseBase(s string) (Base, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "integer", "int":
		return BaseInteger, nil
	case "octetstring", "string", "octets":
		return BaseOctetString, nil
	case "objectidentifier", "oid":
		return BaseObjectIdentifier, nil
	}
	return 0, fmt.Errorf("mibtypes: unknown base category %q", s)
}

// Application syntaxes. They select the BER tag on the wire and are
// inherited down a type chain like every other attribute.
const (
	SyntaxInteger32  = "Integer32"
	SyntaxUnsigned32 = "Unsigned32"
	SyntaxCounter32  = "Counter32"
	SyntaxGauge32    = "Gauge32"
	SyntaxTimeTicks  = "TimeTicks"
	SyntaxCounter64  = "Counter64"
	SyntaxIPAddress  = "IpAddress"
	SyntaxOpaque     = "Opaque"
)

// ─────────────────────────────────────────────────────────────────────────────
// Descriptors
// ─────────────────────────────────────────────────────────────────────────────

// ConstraintKind distinguishes value ranges from octet-string sizes.
type ConstraintKind int

const (
	KindRange ConstraintKind = iota + 1
	KindSize
)

func (k ConstraintKind) String() string {
	if k == KindSize {
		return "size"
	}
	return "range"
}

// Constraint is one inclusive interval. Several constraints of the same kind
// on a type form a union.
type Constraint struct {
	Kind ConstraintKind
	Min  int64
	Max  int64
}

// EnumValue is one named number of an enumerated INTEGER.
type EnumValue struct {
	Value int64
	Label string
}

// TypeDescriptor is a registry entry as declared. Roots set Base and leave
// Parent empty; derived types name a Parent and leave Base zero. Empty
// Constraints, Enums, Syntax or DisplayHint inherit from the parent.
type TypeDescriptor struct {
	Name        string
	Parent      string
	Base        Base
	Syntax      string
	Constraints []Constraint
	Enums       []EnumValue
	DisplayHint string
}

// Resolved is the effective view of a type after walking its parent chain.
type Resolved struct {
	Name        string
	Base        Base
	Syntax      string
	Constraints []Constraint
	Enums       []EnumValue // ascending by value
	DisplayHint string

	// Chain lists Name followed by every ancestor up to the root.
	Chain []string
}

// Ranges returns the constraints of kind KindRange.
func (r Resolved) Ranges() []Constraint { return r.constraints(KindRange) }

// Sizes returns the constraints of kind KindSize.
func (r Resolved) Sizes() []Constraint { return r.constraints(KindSize) }

func (r Resolved) constraints(k ConstraintKind) []Constraint {
	var out []Constraint
	for _, c := range r.Constraints {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// FixedSize reports the length of an octet-string type whose only size
// constraint is a single value, e.g. IpAddress (4).
func (r Resolved) FixedSize() (int, bool) {
	sizes := r.Sizes()
	if r.Base != BaseOctetString || len(sizes) != 1 || sizes[0].Min != sizes[0].Max {
		return 0, false
	}
	return int(sizes[0].Min), true
}

// AddressLike reports whether the type is a MAC or physical address
// convention anywhere in its chain.
func (r Resolved) AddressLike() bool {
	for _, n := range r.Chain {
		l := strings.ToLower(n)
		if strings.Contains(l, "macaddress") || strings.Contains(l, "physaddress") {
			return true
		}
	}
	return false
}

// Is reports whether name appears in the type's chain.
func (r Resolved) Is(name string) bool {
	for _, n := range r.Chain {
		if n == name {
			return true
		}
	}
	return false
}

// EnumLabel returns the label for v.
func (r Resolved) EnumLabel(v int64) (string, bool) {
	for _, e := range r.Enums {
		if e.Value == v {
			return e.Label, true
		}
	}
	return "", false
}

// EnumNumber returns the number for label, matched case-insensitively.
func (r Resolved) EnumNumber(label string) (int64, bool) {
	for _, e := range r.Enums {
		if strings.EqualFold(e.Label, label) {
			return e.Value, true
		}
	}
	return 0, false
}

func sortedEnums(in []EnumValue) []EnumValue {
	out := append([]EnumValue(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
