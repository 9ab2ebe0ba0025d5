// Package state keeps the runtime overlay of every MIB in a SQLite database
// so that written values, inserted rows and removed seed rows survive a
// restart.
package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

const (
	rowCreated = "created"
	rowDeleted = "deleted"
)

// Config configures the database.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path string

	// MaxConnections bounds the pool. In-memory databases always use one
	// connection because every connection would see its own database.
	MaxConnections int
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "snmp_emulator.db"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if c.Path == ":memory:" {
		c.MaxConnections = 1
	}
	return c
}

// DB is a behaviour.Persister backed by SQLite.
type DB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ behaviour.Persister = (*DB)(nil)

// Open opens or creates the database and its schema.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping %s: %w", cfg.Path, err)
	}

	s := &DB{db: db, path: cfg.Path, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("state: database opened", "path", cfg.Path)
	return s, nil
}

// Path is the database file.
func (s *DB) Path() string { return s.path }

// Close releases the database.
func (s *DB) Close() error { return s.db.Close() }

func (s *DB) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS overlay_values (
			mib         TEXT NOT NULL,
			tbl         TEXT NOT NULL,
			row         TEXT NOT NULL,
			name        TEXT NOT NULL,
			type        TEXT NOT NULL,
			base        INTEGER NOT NULL,
			syntax      TEXT NOT NULL,
			int_value   INTEGER,
			bytes_value BLOB,
			oid_value   TEXT,
			modified    INTEGER NOT NULL,
			PRIMARY KEY (mib, tbl, row, name)
		);`,
		`CREATE TABLE IF NOT EXISTS overlay_rows (
			mib      TEXT NOT NULL,
			tbl      TEXT NOT NULL,
			row      TEXT NOT NULL,
			state    TEXT NOT NULL,
			modified INTEGER NOT NULL,
			PRIMARY KEY (mib, tbl, row)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("state: init schema: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Values
// ─────────────────────────────────────────────────────────────────────────────

// SaveValue upserts one overlay cell.
func (s *DB) SaveValue(mib string, key behaviour.ValueKey, c behaviour.Cell) error {
	var (
		intValue   sql.NullInt64
		bytesValue []byte
		oidValue   sql.NullString
	)
	switch c.Value.Base {
	case mibtypes.BaseInteger:
		intValue = sql.NullInt64{Int64: c.Value.Int(), Valid: true}
	case mibtypes.BaseOctetString:
		bytesValue = append([]byte{}, c.Value.Bytes()...)
	case mibtypes.BaseObjectIdentifier:
		oidValue = sql.NullString{String: c.Value.OID().String(), Valid: true}
	default:
		return fmt.Errorf("state: %s: value has no base category", key.Name)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO overlay_values (
			mib, tbl, row, name, type, base, syntax,
			int_value, bytes_value, oid_value, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, mib, key.Table, key.Row.String(), key.Name, c.Value.Type, int(c.Value.Base), c.Value.Syntax,
		intValue, bytesValue, oidValue, c.Modified.UnixNano())
	if err != nil {
		return fmt.Errorf("state: save %s/%s: %w", mib, key.Name, err)
	}
	return nil
}

// DeleteValue drops one overlay cell.
func (s *DB) DeleteValue(mib string, key behaviour.ValueKey) error {
	_, err := s.db.Exec(`DELETE FROM overlay_values WHERE mib = ? AND tbl = ? AND row = ? AND name = ?`,
		mib, key.Table, key.Row.String(), key.Name)
	if err != nil {
		return fmt.Errorf("state: delete %s/%s: %w", mib, key.Name, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

// SaveRow records an administratively inserted row.
func (s *DB) SaveRow(mib, table string, row oid.OID, created time.Time) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO overlay_rows (mib, tbl, row, state, modified) VALUES (?, ?, ?, ?, ?)`,
		mib, table, row.String(), rowCreated, created.UnixNano())
	if err != nil {
		return fmt.Errorf("state: save row %s/%s/%s: %w", mib, table, row, err)
	}
	return nil
}

// DeleteRow forgets the row's cells. A removed seed row is remembered as
// deleted; a removed inserted row is forgotten entirely.
func (s *DB) DeleteRow(mib, table string, row oid.OID, seed bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("state: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM overlay_values WHERE mib = ? AND tbl = ? AND row = ?`,
		mib, table, row.String()); err != nil {
		return fmt.Errorf("state: delete row values %s/%s/%s: %w", mib, table, row, err)
	}
	if seed {
		_, err = tx.Exec(`INSERT OR REPLACE INTO overlay_rows (mib, tbl, row, state, modified) VALUES (?, ?, ?, ?, ?)`,
			mib, table, row.String(), rowDeleted, time.Now().UnixNano())
	} else {
		_, err = tx.Exec(`DELETE FROM overlay_rows WHERE mib = ? AND tbl = ? AND row = ?`,
			mib, table, row.String())
	}
	if err != nil {
		return fmt.Errorf("state: delete row %s/%s/%s: %w", mib, table, row, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// RestoreRow clears the deleted marker of a seed row.
func (s *DB) RestoreRow(mib, table string, row oid.OID) error {
	_, err := s.db.Exec(`DELETE FROM overlay_rows WHERE mib = ? AND tbl = ? AND row = ? AND state = ?`,
		mib, table, row.String(), rowDeleted)
	if err != nil {
		return fmt.Errorf("state: restore row %s/%s/%s: %w", mib, table, row, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads everything stored for mib.
func (s *DB) Load(mib string) (behaviour.Snapshot, error) {
	var snap behaviour.Snapshot

	rows, err := s.db.Query(`SELECT tbl, row, state, modified FROM overlay_rows WHERE mib = ? ORDER BY tbl, row`, mib)
	if err != nil {
		return snap, fmt.Errorf("state: load rows %s: %w", mib, err)
	}
	for rows.Next() {
		var (
			table, rowText, state string
			modified              int64
		)
		if err := rows.Scan(&table, &rowText, &state, &modified); err != nil {
			rows.Close()
			return snap, fmt.Errorf("state: scan row: %w", err)
		}
		key, err := oid.Parse(rowText)
		if err != nil {
			s.logger.Warn("state: skipping malformed row", "mib", mib, "table", table, "row", rowText)
			continue
		}
		r := behaviour.StoredRow{Table: table, Row: key, Modified: time.Unix(0, modified).UTC()}
		switch state {
		case rowCreated:
			snap.Created = append(snap.Created, r)
		case rowDeleted:
			snap.Deleted = append(snap.Deleted, r)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return snap, fmt.Errorf("state: load rows %s: %w", mib, err)
	}

	vals, err := s.db.Query(`
		SELECT tbl, row, name, type, base, syntax, int_value, bytes_value, oid_value, modified
		FROM overlay_values WHERE mib = ? ORDER BY tbl, row, name
	`, mib)
	if err != nil {
		return snap, fmt.Errorf("state: load values %s: %w", mib, err)
	}
	defer vals.Close()
	for vals.Next() {
		var (
			table, rowText, name, typ, syntax string
			base                              int
			intValue                          sql.NullInt64
			bytesValue                        []byte
			oidValue                          sql.NullString
			modified                          int64
		)
		if err := vals.Scan(&table, &rowText, &name, &typ, &base, &syntax,
			&intValue, &bytesValue, &oidValue, &modified); err != nil {
			return snap, fmt.Errorf("state: scan value: %w", err)
		}
		key, err := oid.Parse(rowText)
		if err != nil {
			s.logger.Warn("state: skipping malformed value", "mib", mib, "name", name, "row", rowText)
			continue
		}
		v := mibtypes.ResolvedValue{Type: typ, Base: mibtypes.Base(base), Syntax: syntax}
		switch v.Base {
		case mibtypes.BaseInteger:
			v.Value = intValue.Int64
		case mibtypes.BaseOctetString:
			if bytesValue == nil {
				bytesValue = []byte{}
			}
			v.Value = bytesValue
		case mibtypes.BaseObjectIdentifier:
			o, err := oid.Parse(oidValue.String)
			if err != nil {
				s.logger.Warn("state: skipping malformed value", "mib", mib, "name", name, "error", err.Error())
				continue
			}
			v.Value = o
		default:
			s.logger.Warn("state: skipping value of unknown base", "mib", mib, "name", name, "base", base)
			continue
		}
		if table == "" {
			key = nil
		}
		snap.Values = append(snap.Values, behaviour.StoredValue{
			Key:  behaviour.ValueKey{Table: table, Row: key, Name: name},
			Cell: behaviour.Cell{Value: v, Modified: time.Unix(0, modified).UTC()},
		})
	}
	if err := vals.Err(); err != nil {
		return snap, fmt.Errorf("state: load values %s: %w", mib, err)
	}

	s.logger.Debug("state: loaded",
		"mib", mib,
		"values", len(snap.Values),
		"created_rows", len(snap.Created),
		"deleted_rows", len(snap.Deleted),
	)
	return snap, nil
}

// Purge removes everything stored for mib.
func (s *DB) Purge(mib string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("state: begin: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM overlay_values WHERE mib = ?`,
		`DELETE FROM overlay_rows WHERE mib = ?`,
	} {
		if _, err := tx.Exec(stmt, mib); err != nil {
			return fmt.Errorf("state: purge %s: %w", mib, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	s.logger.Info("state: purged", "mib", mib)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
