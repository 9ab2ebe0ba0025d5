package oid_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/snmp/oid"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want oid.OID
	}{
		{"1.3.6.1", oid.OID{1, 3, 6, 1}},
		{".1.3.6.1", oid.OID{1, 3, 6, 1}},
		{"", oid.OID{}},
		{".", oid.OID{}},
		{"0.0", oid.OID{0, 0}},
		{"1.3.4294967295", oid.OID{1, 3, 4294967295}},
	}
	for _, tc := range cases {
		got, err := oid.Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"1..3", "1.a.3", "1.3.", "1.-3", "1.3.4294967296"} {
		_, err := oid.Parse(in)
		assert.Error(t, err, in)
	}
}

func TestString(t *testing.T) {
	o := oid.MustParse(".1.3.6.1.2.1.1.5.0")
	assert.Equal(t, "1.3.6.1.2.1.1.5.0", o.String())
	assert.Equal(t, ".1.3.6.1.2.1.1.5.0", o.Dotted())
	assert.Equal(t, "", oid.OID{}.String())
}

func TestCompare_IntegerNotString(t *testing.T) {
	// "1.3.10" sorts after "1.3.9" numerically, before it as text.
	assert.Equal(t, -1, oid.MustParse("1.3.9").Compare(oid.MustParse("1.3.10")))
	assert.Equal(t, 1, oid.MustParse("1.3.10").Compare(oid.MustParse("1.3.9")))
}

func TestCompare_PrefixFirst(t *testing.T) {
	a := oid.MustParse("1.3.6")
	b := oid.MustParse("1.3.6.0")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, 0, a.Compare(a.Clone()))
	assert.True(t, oid.OID{}.Less(oid.OID{0}))
}

func TestCompare_StrictTotalOrder(t *testing.T) {
	list := []oid.OID{
		oid.MustParse("1.3.6.1.2.1.2.2.1.2.10"),
		oid.MustParse("1.3.6.1.2.1.1.1.0"),
		oid.MustParse("1.3.6.1.2.1.2.2.1.2.2"),
		oid.MustParse("1.3.6.1.2.1.2.2.1"),
		oid.MustParse("1.3.6.1.2.1.1.10.0"),
		oid.MustParse("1.3.6.1.2.1.1.2.0"),
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })

	want := []string{
		"1.3.6.1.2.1.1.1.0",
		"1.3.6.1.2.1.1.2.0",
		"1.3.6.1.2.1.1.10.0",
		"1.3.6.1.2.1.2.2.1",
		"1.3.6.1.2.1.2.2.1.2.2",
		"1.3.6.1.2.1.2.2.1.2.10",
	}
	for i, o := range list {
		assert.Equal(t, want[i], o.String())
	}
	for i := range list {
		for j := range list {
			if i == j {
				continue
			}
			assert.NotEqual(t, list[i].Less(list[j]), list[j].Less(list[i]))
		}
	}
}

func TestHasPrefixAndTrim(t *testing.T) {
	o := oid.MustParse("1.3.6.1.2.1.2.2.1.2.7")
	entry := oid.MustParse("1.3.6.1.2.1.2.2.1")
	assert.True(t, o.HasPrefix(entry))
	assert.True(t, o.HasPrefix(o))
	assert.False(t, entry.HasPrefix(o))

	rest, ok := o.TrimPrefix(entry)
	require.True(t, ok)
	assert.Equal(t, oid.OID{2, 7}, rest)

	_, ok = entry.TrimPrefix(o)
	assert.False(t, ok)
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := make(oid.OID, 3, 10)
	copy(base, oid.OID{1, 3, 6})
	a := base.Append(1)
	b := base.Append(2)
	assert.Equal(t, oid.OID{1, 3, 6, 1}, a)
	assert.Equal(t, oid.OID{1, 3, 6, 2}, b)
	assert.Equal(t, oid.OID{1, 3, 6, 1, 2, 3}, base.Concat(oid.OID{1}, oid.OID{2, 3}))
}
