package tableindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// ─────────────────────────────────────────────────────────────────────────────
// Index
// ─────────────────────────────────────────────────────────────────────────────

type entry struct {
	key   oid.OID
	tuple []mibtypes.ResolvedValue
}

// Index is the ordered row set of one table. Rows are kept sorted by encoded
// suffix, so successor queries are a binary search. It is safe for
// concurrent use: mutations take the write lock, queries the read lock.
type Index struct {
	mu    sync.RWMutex
	codec Codec
	rows  []entry
}

// New returns an empty Index using codec.
func New(codec Codec) *Index {
	return &Index{codec: codec}
}

// Codec returns the codec the index encodes with.
func (x *Index) Codec() Codec { return x.codec }

// search returns the position of the first row whose key is >= key.
func (x *Index) search(key oid.OID) int {
	return sort.Search(len(x.rows), func(i int) bool { return x.rows[i].key.Compare(key) >= 0 })
}

// Insert adds tuple and returns its suffix. A tuple already present fails
// with ErrDuplicateRow and leaves the index unchanged.
func (x *Index) Insert(tuple []mibtypes.ResolvedValue) (oid.OID, error) {
	key, err := x.codec.Encode(tuple)
	if err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	i := x.search(key)
	if i < len(x.rows) && x.rows[i].key.Equal(key) {
		return nil, fmt.Errorf("tableindex: %s: %w", key, ErrDuplicateRow)
	}
	x.rows = append(x.rows, entry{})
	copy(x.rows[i+1:], x.rows[i:])
	x.rows[i] = entry{key: key, tuple: append([]mibtypes.ResolvedValue(nil), tuple...)}
	return key.Clone(), nil
}

// Remove deletes tuple. An absent tuple fails with ErrNoSuchRow.
func (x *Index) Remove(tuple []mibtypes.ResolvedValue) error {
	key, err := x.codec.Encode(tuple)
	if err != nil {
		return err
	}
	return x.RemoveSuffix(key)
}

// RemoveSuffix deletes the row at key.
func (x *Index) RemoveSuffix(key oid.OID) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	i := x.search(key)
	if i >= len(x.rows) || !x.rows[i].key.Equal(key) {
		return fmt.Errorf("tableindex: %s: %w", key, ErrNoSuchRow)
	}
	x.rows = append(x.rows[:i], x.rows[i+1:]...)
	return nil
}

// Lookup returns the suffix of tuple when the row exists.
func (x *Index) Lookup(tuple []mibtypes.ResolvedValue) (oid.OID, bool) {
	key, err := x.codec.Encode(tuple)
	if err != nil {
		return nil, false
	}
	if _, ok := x.LookupSuffix(key); !ok {
		return nil, false
	}
	return key, true
}

// LookupSuffix returns the tuple stored at key.
func (x *Index) LookupSuffix(key oid.OID) ([]mibtypes.ResolvedValue, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	i := x.search(key)
	if i >= len(x.rows) || !x.rows[i].key.Equal(key) {
		return nil, false
	}
	return x.rows[i].tuple, true
}

// NextAfter returns the first row whose suffix sorts strictly after key. key
// may be partial, empty, or not a valid suffix at all.
func (x *Index) NextAfter(key oid.OID) (oid.OID, []mibtypes.ResolvedValue, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	i := sort.Search(len(x.rows), func(i int) bool { return x.rows[i].key.Compare(key) > 0 })
	if i >= len(x.rows) {
		return nil, nil, false
	}
	return x.rows[i].key.Clone(), x.rows[i].tuple, true
}

// First returns the lowest row.
func (x *Index) First() (oid.OID, []mibtypes.ResolvedValue, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.rows) == 0 {
		return nil, nil, false
	}
	return x.rows[0].key.Clone(), x.rows[0].tuple, true
}

// Len returns the row count.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rows)
}

// Keys returns every suffix in ascending order.
func (x *Index) Keys() []oid.OID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]oid.OID, len(x.rows))
	for i, r := range x.rows {
		out[i] = r.key.Clone()
	}
	return out
}
