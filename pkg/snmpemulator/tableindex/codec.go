// Package tableindex keeps the rows of one table ordered by their OID index
// suffix and converts between index tuples and suffixes.
//
// Encoding follows RFC 2578 section 7.7: an integer index is one arc; an
// octet string is its length followed by one arc per octet, unless it has a
// fixed size or is the IMPLIED last index; an object identifier is its arc
// count followed by its arcs, again without the count when IMPLIED.
package tableindex

import (
	"errors"
	"fmt"
	"math"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

var (
	// ErrDuplicateRow is returned when inserting a tuple already present.
	ErrDuplicateRow = errors.New("duplicate row")

	// ErrNoSuchRow is returned when removing or addressing an absent tuple.
	ErrNoSuchRow = errors.New("no such row")

	// ErrBadIndex is returned when a tuple or suffix cannot be encoded or
	// decoded with the table's index layout.
	ErrBadIndex = errors.New("bad index")
)

// ─────────────────────────────────────────────────────────────────────────────
// Codec
// ─────────────────────────────────────────────────────────────────────────────

// Part describes one index column.
type Part struct {
	Name string
	Type string
	Base mibtypes.Base

	// Syntax is the wire syntax of the type (IpAddress, Gauge32, ...) and
	// is carried onto decoded values.
	Syntax string

	// FixedSize is the octet count of a fixed-size octet string; zero when
	// the size varies.
	FixedSize int

	// Implied is set on the last part of an IMPLIED index.
	Implied bool
}

// Codec converts index tuples to OID suffixes and back. The same Codec must
// be used for insertion and lookup or ordering breaks.
type Codec struct {
	parts []Part
}

// NewCodec returns a Codec for parts in index order. Only the last part may
// be Implied.
func NewCodec(parts ...Part) (Codec, error) {
	for i, p := range parts {
		if p.Implied && i != len(parts)-1 {
			return Codec{}, fmt.Errorf("tableindex: %s: only the last index may be IMPLIED: %w", p.Name, ErrBadIndex)
		}
		if p.Base == 0 {
			return Codec{}, fmt.Errorf("tableindex: %s: unresolved base: %w", p.Name, ErrBadIndex)
		}
	}
	return Codec{parts: append([]Part(nil), parts...)}, nil
}

// Parts returns the index layout.
func (c Codec) Parts() []Part { return append([]Part(nil), c.parts...) }

// Encode serialises tuple, which must have one value per part.
func (c Codec) Encode(tuple []mibtypes.ResolvedValue) (oid.OID, error) {
	if len(tuple) != len(c.parts) {
		return nil, fmt.Errorf("tableindex: %d values for %d index parts: %w", len(tuple), len(c.parts), ErrBadIndex)
	}
	var out oid.OID
	for i, p := range c.parts {
		v := tuple[i]
		if v.Base != p.Base {
			return nil, fmt.Errorf("tableindex: %s: %s value for %s index: %w", p.Name, v.Base, p.Base, ErrBadIndex)
		}
		switch p.Base {
		case mibtypes.BaseInteger:
			n := v.Int()
			if n < 0 || n > math.MaxUint32 {
				return nil, fmt.Errorf("tableindex: %s: %d does not fit an arc: %w", p.Name, n, ErrBadIndex)
			}
			out = append(out, uint32(n))
		case mibtypes.BaseOctetString:
			b := v.Bytes()
			switch {
			case p.FixedSize > 0:
				if len(b) != p.FixedSize {
					return nil, fmt.Errorf("tableindex: %s: %d octets, want %d: %w", p.Name, len(b), p.FixedSize, ErrBadIndex)
				}
			case !p.Implied:
				out = append(out, uint32(len(b)))
			}
			for _, octet := range b {
				out = append(out, uint32(octet))
			}
		case mibtypes.BaseObjectIdentifier:
			o := v.OID()
			if !p.Implied {
				out = append(out, uint32(len(o)))
			}
			out = append(out, o...)
		}
	}
	return out, nil
}

// Decode is the inverse of Encode. The whole suffix must be consumed.
func (c Codec) Decode(suffix oid.OID) ([]mibtypes.ResolvedValue, error) {
	tuple := make([]mibtypes.ResolvedValue, len(c.parts))
	rest := suffix
	for i, p := range c.parts {
		v := mibtypes.ResolvedValue{Type: p.Type, Base: p.Base, Syntax: p.Syntax}
		switch p.Base {
		case mibtypes.BaseInteger:
			if len(rest) < 1 {
				return nil, fmt.Errorf("tableindex: %s: suffix %s too short: %w", p.Name, suffix, ErrBadIndex)
			}
			v.Value = int64(rest[0])
			rest = rest[1:]
		case mibtypes.BaseOctetString:
			n, body, err := take(p, rest)
			if err != nil {
				return nil, fmt.Errorf("tableindex: %s: suffix %s: %w", p.Name, suffix, err)
			}
			b := make([]byte, n)
			for j := 0; j < n; j++ {
				if body[j] > 255 {
					return nil, fmt.Errorf("tableindex: %s: arc %d is not an octet: %w", p.Name, body[j], ErrBadIndex)
				}
				b[j] = byte(body[j])
			}
			v.Value = b
			rest = body[n:]
		case mibtypes.BaseObjectIdentifier:
			n, body, err := take(p, rest)
			if err != nil {
				return nil, fmt.Errorf("tableindex: %s: suffix %s: %w", p.Name, suffix, err)
			}
			v.Value = body[:n].Clone()
			rest = body[n:]
		}
		tuple[i] = v
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("tableindex: %d trailing arcs in %s: %w", len(rest), suffix, ErrBadIndex)
	}
	return tuple, nil
}

// take returns the element length and the arcs starting at the element body.
func take(p Part, rest oid.OID) (int, oid.OID, error) {
	switch {
	case p.FixedSize > 0:
		if len(rest) < p.FixedSize {
			return 0, nil, ErrBadIndex
		}
		return p.FixedSize, rest, nil
	case p.Implied:
		return len(rest), rest, nil
	}
	if len(rest) < 1 || int(rest[0]) > len(rest)-1 {
		return 0, nil, ErrBadIndex
	}
	return int(rest[0]), rest[1:], nil
}

// CodecFor derives the index layout of t from its index columns.
func CodecFor(t *schema.Table, types *mibtypes.Registry) (Codec, error) {
	parts := make([]Part, len(t.Indexes))
	for i, col := range t.Indexes {
		res, err := types.Resolve(col.Type)
		if err != nil {
			return Codec{}, fmt.Errorf("tableindex: %s.%s: %w", t.Name, col.Name, err)
		}
		p := Part{Name: col.Name, Type: col.Type, Base: res.Base, Syntax: res.Syntax}
		if n, ok := res.FixedSize(); ok {
			p.FixedSize = n
		}
		if t.Implied && i == len(t.Indexes)-1 && p.FixedSize == 0 {
			p.Implied = true
		}
		parts[i] = p
	}
	return NewCodec(parts...)
}
