package links_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// memApplier is an in-memory table of integer cells that counts writes and,
// when reenter is set, tries to start a nested pass from inside each write.
type memApplier struct {
	mgr     *links.Manager
	cells   map[string]int64
	rows    map[string][]oid.OID
	calls   map[string]int
	reject  map[string]bool
	reenter bool
}

func newMemApplier(mgr *links.Manager) *memApplier {
	return &memApplier{
		mgr:    mgr,
		cells:  make(map[string]int64),
		rows:   make(map[string][]oid.OID),
		calls:  make(map[string]int),
		reject: make(map[string]bool),
	}
}

func key(t links.Target) string {
	if len(t.Row) == 0 {
		return t.Name
	}
	return t.Name + "." + t.Row.String()
}

func (m *memApplier) ApplyLinked(t links.Target, v mibtypes.ResolvedValue) error {
	m.calls[key(t)]++
	if m.reject[t.Name] {
		return errors.New("rejected")
	}
	m.cells[key(t)] = v.Int()
	if m.reenter {
		m.mgr.Propagate(t, v, m)
	}
	return nil
}

func (m *memApplier) Rows(name string) []oid.OID { return m.rows[name] }

func (m *memApplier) IsColumn(name string) bool { return name != "sysName" && name != "sysContact" }

// set mimics the store: write the origin then propagate.
func (m *memApplier) set(t links.Target, n int64) links.Result {
	m.cells[key(t)] = n
	return m.mgr.Propagate(t, mibtypes.ResolvedValue{Base: mibtypes.BaseInteger, Value: n}, m)
}

func total(calls map[string]int) int {
	n := 0
	for _, c := range calls {
		n += c
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

func TestAdd_Validation(t *testing.T) {
	mgr := links.NewManager(nil)
	assert.ErrorIs(t, mgr.Add(links.Link{ID: "", Columns: []string{"a", "b"}}), links.ErrInvalidLink)
	assert.ErrorIs(t, mgr.Add(links.Link{ID: "one", Columns: []string{"a"}}), links.ErrInvalidLink)
	assert.ErrorIs(t, mgr.Add(links.Link{ID: "dup", Columns: []string{"a", "a"}}), links.ErrInvalidLink)
	assert.ErrorIs(t, mgr.Add(links.Link{ID: "scope", Columns: []string{"a", "b"}, Scope: links.Scope(9)}), links.ErrInvalidLink)
}

func TestAdd_ConflictWithinScope(t *testing.T) {
	mgr := links.NewManager(nil)
	require.NoError(t, mgr.Add(links.Link{ID: "ab", Columns: []string{"a", "b"}}))

	err := mgr.Add(links.Link{ID: "bc", Columns: []string{"b", "c"}})
	assert.ErrorIs(t, err, links.ErrLinkConflict)
	assert.Len(t, mgr.Links(), 1, "failed add registers nothing")

	require.NoError(t, mgr.Add(links.Link{ID: "bc-global", Columns: []string{"b", "c"}, Scope: links.Global}),
		"other scope is independent")
	assert.ErrorIs(t, mgr.Add(links.Link{ID: "ab", Columns: []string{"x", "y"}}), links.ErrLinkConflict)

	assert.True(t, mgr.Remove("ab"))
	assert.False(t, mgr.Remove("ab"))
	require.NoError(t, mgr.Add(links.Link{ID: "bd", Columns: []string{"b", "d"}}))
	assert.True(t, mgr.Linked("d"))
	assert.False(t, mgr.Linked("a"))
}

func TestParseScope(t *testing.T) {
	s, err := links.ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, links.PerInstance, s)
	s, err = links.ParseScope("global")
	require.NoError(t, err)
	assert.Equal(t, links.Global, s)
	_, err = links.ParseScope("table")
	assert.ErrorIs(t, err, links.ErrInvalidLink)
}

// ─────────────────────────────────────────────────────────────────────────────
// Propagation
// ─────────────────────────────────────────────────────────────────────────────

func TestPropagate_PairBothDirections(t *testing.T) {
	mgr := links.NewManager(nil)
	require.NoError(t, mgr.Add(links.Link{ID: "ab", Columns: []string{"a", "b"}}))
	app := newMemApplier(mgr)
	row := oid.OID{1}

	app.set(links.Target{Name: "a", Row: row}, 5)
	assert.Equal(t, int64(5), app.cells["a.1"])
	assert.Equal(t, int64(5), app.cells["b.1"])

	app.set(links.Target{Name: "b", Row: row}, 9)
	assert.Equal(t, int64(9), app.cells["a.1"])
	assert.Equal(t, int64(9), app.cells["b.1"])

	_, other := app.cells["a.2"]
	assert.False(t, other, "per-instance stays in its row")
}

func TestPropagate_OneHopOnThreeColumns(t *testing.T) {
	mgr := links.NewManager(nil)
	require.NoError(t, mgr.Add(links.Link{ID: "abc", Columns: []string{"a", "b", "c"}}))
	app := newMemApplier(mgr)
	app.reenter = true

	res := app.set(links.Target{Name: "a", Row: oid.OID{3}}, 4)

	assert.Equal(t, links.Result{Applied: 2}, res)
	assert.Equal(t, map[string]int{"b.3": 1, "c.3": 1}, app.calls,
		"each sibling written exactly once, nested passes do nothing beyond one hop")
	assert.Equal(t, 2, total(app.calls))
	assert.Equal(t, int64(4), app.cells["c.3"])
}

func TestPropagate_FailureIsSwallowed(t *testing.T) {
	mgr := links.NewManager(nil)
	require.NoError(t, mgr.Add(links.Link{ID: "abc", Columns: []string{"a", "b", "c"}}))
	app := newMemApplier(mgr)
	app.reject["b"] = true

	var observed links.Result
	mgr.OnPropagate = func(_ links.Target, r links.Result) { observed = r }

	res := app.set(links.Target{Name: "a", Row: oid.OID{1}}, 2)
	assert.Equal(t, links.Result{Applied: 1, Failed: 1}, res)
	assert.Equal(t, res, observed)
	assert.Equal(t, int64(2), app.cells["a.1"], "origin untouched")
	assert.Equal(t, int64(2), app.cells["c.1"])
}

func TestPropagate_GlobalScope(t *testing.T) {
	mgr := links.NewManager(nil)
	require.NoError(t, mgr.Add(links.Link{ID: "g", Columns: []string{"a", "sysName"}, Scope: links.Global}))
	app := newMemApplier(mgr)
	app.rows["a"] = []oid.OID{{1}, {2}, {3}}

	res := app.set(links.Target{Name: "a", Row: oid.OID{2}}, 7)
	assert.Equal(t, 3, res.Applied, "rows 1 and 3 plus the scalar")
	assert.Equal(t, 1, res.Skipped, "origin cell")
	assert.Equal(t, int64(7), app.cells["a.1"])
	assert.Equal(t, int64(7), app.cells["a.3"])
	assert.Equal(t, int64(7), app.cells["sysName"])

	res = app.set(links.Target{Name: "sysName"}, 8)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, int64(8), app.cells["a.2"])
}

func TestPropagate_UnlinkedIsNoop(t *testing.T) {
	mgr := links.NewManager(nil)
	app := newMemApplier(mgr)
	called := false
	mgr.OnPropagate = func(links.Target, links.Result) { called = true }

	res := app.set(links.Target{Name: "a", Row: oid.OID{1}}, 1)
	assert.Equal(t, links.Result{}, res)
	assert.Empty(t, app.calls)
	assert.False(t, called)
}
