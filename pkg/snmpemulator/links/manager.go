// Package links keeps groups of scalars and columns synchronised. When one
// member of a link is written, the Manager copies the value to the other
// members in a single flat pass: every target is written at most once per
// originating write, and writes made by the pass never start a pass of
// their own.
package links

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

var (
	// ErrLinkConflict is returned when a name is already claimed by another
	// link of the same scope.
	ErrLinkConflict = errors.New("link conflict")

	// ErrInvalidLink is returned for links with fewer than two distinct
	// members, an empty id or an unknown scope.
	ErrInvalidLink = errors.New("invalid link")
)

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Scope says which instances of the members a link couples.
type Scope int

const (
	// PerInstance couples the members within the same row.
	PerInstance Scope = iota
	// Global couples every instance of every member.
	Global
)

func (s Scope) String() string {
	if s == Global {
		return "global"
	}
	return "per-instance"
}

// ParseScope accepts "per-instance" (also the empty string) and "global".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per-instance", "instance", "per_instance":
		return PerInstance, nil
	case "global":
		return Global, nil
	}
	return 0, fmt.Errorf("links: unknown scope %q: %w", s, ErrInvalidLink)
}

// Link is a set of scalar or column names that share one value.
type Link struct {
	ID      string
	Columns []string
	Scope   Scope
}

// Target is one instance: a scalar (Row nil) or a table cell.
type Target struct {
	Name string
	Row  oid.OID
}

func (t Target) key() string {
	if len(t.Row) == 0 {
		return t.Name
	}
	return t.Name + "." + t.Row.String()
}

// Applier performs the writes of a propagation pass.
type Applier interface {
	// ApplyLinked writes v to t without starting another propagation.
	ApplyLinked(t Target, v mibtypes.ResolvedValue) error

	// Rows lists the row suffixes of the table holding column name, or nil
	// when name is a scalar.
	Rows(name string) []oid.OID

	// IsColumn reports whether name is a table column.
	IsColumn(name string) bool
}

// Result summarises one pass.
type Result struct {
	Applied int
	Skipped int
	Failed  int
}

// ─────────────────────────────────────────────────────────────────────────────
// Manager
// ─────────────────────────────────────────────────────────────────────────────

// Manager owns the declared links. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	links    map[string]Link
	byMember [2]map[string]string // scope → member name → link id

	inflightMu sync.Mutex
	inflight   map[string]int

	// OnPropagate, when set, is called after every pass that had targets.
	OnPropagate func(origin Target, r Result)

	logger *slog.Logger
}

// NewManager returns an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Manager{
		links:    make(map[string]Link),
		byMember: [2]map[string]string{make(map[string]string), make(map[string]string)},
		inflight: make(map[string]int),
		logger:   logger,
	}
}

// Add registers l. A member already claimed by another link of the same
// scope fails with ErrLinkConflict; nothing is registered in that case.
func (m *Manager) Add(l Link) error {
	if l.ID == "" {
		return fmt.Errorf("links: link without id: %w", ErrInvalidLink)
	}
	if l.Scope != PerInstance && l.Scope != Global {
		return fmt.Errorf("links: %s: scope %d: %w", l.ID, l.Scope, ErrInvalidLink)
	}
	seen := make(map[string]bool, len(l.Columns))
	for _, c := range l.Columns {
		if c == "" || seen[c] {
			return fmt.Errorf("links: %s: empty or repeated member %q: %w", l.ID, c, ErrInvalidLink)
		}
		seen[c] = true
	}
	if len(seen) < 2 {
		return fmt.Errorf("links: %s: needs at least two members: %w", l.ID, ErrInvalidLink)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[l.ID]; ok {
		return fmt.Errorf("links: duplicate id %q: %w", l.ID, ErrLinkConflict)
	}
	members := m.byMember[l.Scope]
	for _, c := range l.Columns {
		if owner, ok := members[c]; ok {
			return fmt.Errorf("links: %s: %s already linked by %s (%s): %w", l.ID, c, owner, l.Scope, ErrLinkConflict)
		}
	}
	l.Columns = append([]string(nil), l.Columns...)
	m.links[l.ID] = l
	for _, c := range l.Columns {
		members[c] = l.ID
	}
	return nil
}

// Remove drops the link with id. It reports whether one existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return false
	}
	for _, c := range l.Columns {
		delete(m.byMember[l.Scope], c)
	}
	delete(m.links, id)
	return true
}

// Links returns every link ordered by id.
func (m *Manager) Links() []Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Linked reports whether name belongs to any link.
func (m *Manager) Linked(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, a := m.byMember[PerInstance][name]
	_, b := m.byMember[Global][name]
	return a || b
}

// Propagate copies v from origin to every linked instance through a. The
// pass is flat: targets are computed up front and each is written once. A
// call whose origin is part of a pass still running (a write made from
// inside ApplyLinked) returns immediately. Failures are logged and counted, never returned.
func (m *Manager) Propagate(origin Target, v mibtypes.ResolvedValue, a Applier) Result {
	okey := origin.key()
	m.inflightMu.Lock()
	if m.inflight[okey] > 0 {
		m.inflightMu.Unlock()
		return Result{}
	}
	m.inflightMu.Unlock()

	targets := m.targets(origin, a)
	if len(targets) == 0 {
		return Result{}
	}

	// Origin and every target stay in flight until the pass ends, so a
	// write to any of them cannot start a second hop.
	keys := make([]string, 0, len(targets)+1)
	keys = append(keys, okey)
	for _, t := range targets {
		keys = append(keys, t.key())
	}
	m.inflightMu.Lock()
	for _, k := range keys {
		m.inflight[k]++
	}
	m.inflightMu.Unlock()
	defer func() {
		m.inflightMu.Lock()
		for _, k := range keys {
			if m.inflight[k]--; m.inflight[k] <= 0 {
				delete(m.inflight, k)
			}
		}
		m.inflightMu.Unlock()
	}()

	var res Result
	done := map[string]bool{okey: true}
	for _, t := range targets {
		k := t.key()
		if done[k] {
			res.Skipped++
			continue
		}
		done[k] = true
		if err := a.ApplyLinked(t, v); err != nil {
			res.Failed++
			m.logger.Warn("links: propagation failed",
				"origin", okey, "target", k, "error", err.Error())
			continue
		}
		res.Applied++
	}
	if m.OnPropagate != nil {
		m.OnPropagate(origin, res)
	}
	return res
}

// targets expands origin through both scopes.
func (m *Manager) targets(origin Target, a Applier) []Target {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Target
	if id, ok := m.byMember[PerInstance][origin.Name]; ok {
		for _, c := range m.links[id].Columns {
			if c == origin.Name {
				continue
			}
			t := Target{Name: c}
			if a.IsColumn(c) {
				if len(origin.Row) == 0 {
					// A scalar cannot pick a row; couple with every row.
					for _, row := range a.Rows(c) {
						out = append(out, Target{Name: c, Row: row})
					}
					continue
				}
				t.Row = origin.Row
			}
			out = append(out, t)
		}
	}
	if id, ok := m.byMember[Global][origin.Name]; ok {
		for _, c := range m.links[id].Columns {
			if !a.IsColumn(c) {
				if c != origin.Name {
					out = append(out, Target{Name: c})
				}
				continue
			}
			for _, row := range a.Rows(c) {
				out = append(out, Target{Name: c, Row: row})
			}
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
