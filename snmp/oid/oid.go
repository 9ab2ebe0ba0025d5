// Package oid implements the Object Identifier value used throughout the
// emulator. Ordering is lexicographic over the integer arcs with a strict
// prefix sorting first, which is the order SNMP walks must observe.
package oid

import (
	"fmt"
	"strconv"
	"strings"
)

// OID is an ordered sequence of non-negative arcs. Treat values as immutable:
// every method that derives a new OID returns a fresh slice.
type OID []uint32

// Parse reads a dotted-decimal OID. A single leading dot is accepted, so both
// "1.3.6.1" and ".1.3.6.1" parse to the same value. The empty string and "."
// yield the empty OID.
func Parse(s string) (OID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return OID{}, nil
	}
	parts := strings.Split(s, ".")
	out := make(OID, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("oid: empty arc at position %d in %q", i, s)
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("oid: arc %q in %q: %w", p, s, err)
		}
		out[i] = uint32(n)
	}
	return out, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String returns the dotted-decimal form without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Dotted returns the form with a leading dot, as gosnmp expects in PDU names.
func (o OID) Dotted() string {
	return "." + o.String()
}

// Compare returns -1, 0 or +1 when o sorts before, equal to, or after p.
func (o OID) Compare(p OID) int {
	n := len(o)
	if len(p) < n {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		switch {
		case o[i] < p[i]:
			return -1
		case o[i] > p[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(p):
		return -1
	case len(o) > len(p):
		return 1
	}
	return 0
}

// Less reports whether o sorts strictly before p.
func (o OID) Less(p OID) bool { return o.Compare(p) < 0 }

// Equal reports whether o and p have identical arcs.
func (o OID) Equal(p OID) bool { return o.Compare(p) == 0 }

// HasPrefix reports whether prefix is a (non-strict) prefix of o.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i, arc := range prefix {
		if o[i] != arc {
			return false
		}
	}
	return true
}

// Append returns a new OID made of o followed by arcs.
func (o OID) Append(arcs ...uint32) OID {
	out := make(OID, 0, len(o)+len(arcs))
	out = append(out, o...)
	return append(out, arcs...)
}

// Concat returns a new OID made of o followed by every arc of each part.
func (o OID) Concat(parts ...OID) OID {
	n := len(o)
	for _, p := range parts {
		n += len(p)
	}
	out := make(OID, 0, n)
	out = append(out, o...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Clone returns a copy that shares no storage with o.
func (o OID) Clone() OID {
	if o == nil {
		return nil
	}
	return append(OID{}, o...)
}

// TrimPrefix returns the arcs of o after prefix, or nil and false when prefix
// is not a prefix of o.
func (o OID) TrimPrefix(prefix OID) (OID, bool) {
	if !o.HasPrefix(prefix) {
		return nil, false
	}
	return o[len(prefix):].Clone(), true
}
