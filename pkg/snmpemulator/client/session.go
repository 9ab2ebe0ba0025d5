// Package client is a small SNMP manager used by the command line to query a
// running emulator: sessions are built from a Config and offer Get, Walk and
// Set with gosnmp doing the protocol work.
package client

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config describes the agent to talk to.
type Config struct {
	// Target is the agent host (default "127.0.0.1").
	Target string

	// Port is the agent UDP port (default 161).
	Port int

	// Version is "1" or "2c" (default "2c").
	Version string

	// Community is the community string (default "public").
	Community string

	// Timeout per request (default 2 s).
	Timeout time.Duration

	// Retries after a timeout.
	Retries int

	// MaxRepetitions for GET-BULK during v2c walks (default 25).
	MaxRepetitions uint32
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Target == "" {
		out.Target = "127.0.0.1"
	}
	if out.Port <= 0 {
		out.Port = 161
	}
	if out.Version == "" {
		out.Version = "2c"
	}
	if out.Community == "" {
		out.Community = "public"
	}
	if out.Timeout <= 0 {
		out.Timeout = 2 * time.Second
	}
	if out.MaxRepetitions == 0 {
		out.MaxRepetitions = 25
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// Session is a connected gosnmp session.
type Session struct {
	snmp   *gosnmp.GoSNMP
	logger *slog.Logger
}

// Dial creates and connects a session. The caller must Close it.
func Dial(cfg Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	g := &gosnmp.GoSNMP{
		Target:         c.Target,
		Port:           uint16(c.Port),
		Community:      c.Community,
		Timeout:        c.Timeout,
		Retries:        c.Retries,
		MaxOids:        60,
		MaxRepetitions: c.MaxRepetitions,
		Logger:         gosnmp.NewLogger(slogAdapter{logger}),
	}
	switch c.Version {
	case "1":
		g.Version = gosnmp.Version1
	case "2c":
		g.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("client: unsupported SNMP version %q", c.Version)
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("client: connect %s:%d: %w", c.Target, c.Port, err)
	}
	return &Session{snmp: g, logger: logger}, nil
}

// Close releases the socket.
func (s *Session) Close() error {
	if s.snmp.Conn == nil {
		return nil
	}
	return s.snmp.Conn.Close()
}

// Get reads oids, split into batches of at most MaxOids.
func (s *Session) Get(oids []string) ([]gosnmp.SnmpPDU, error) {
	maxOids := s.snmp.MaxOids
	if maxOids <= 0 {
		maxOids = 60
	}
	var all []gosnmp.SnmpPDU
	for i := 0; i < len(oids); i += maxOids {
		end := min(i+maxOids, len(oids))
		pkt, err := s.snmp.Get(oids[i:end])
		if err != nil {
			return all, fmt.Errorf("client: get: %w", err)
		}
		if pkt.Error != gosnmp.NoError {
			return all, fmt.Errorf("client: get: %w", &StatusError{Status: pkt.Error, Index: int(pkt.ErrorIndex)})
		}
		all = append(all, pkt.Variables...)
	}
	return all, nil
}

// Walk returns every instance under root: GET-NEXT for v1, GET-BULK for
// v2c. An empty root walks everything under .1.
func (s *Session) Walk(root string) ([]gosnmp.SnmpPDU, error) {
	if root == "" || root == "." {
		root = ".1"
	}
	if !strings.HasPrefix(root, ".") {
		root = "." + root
	}
	start := time.Now()
	var (
		pdus []gosnmp.SnmpPDU
		err  error
	)
	if s.snmp.Version == gosnmp.Version1 {
		pdus, err = s.snmp.WalkAll(root)
	} else {
		pdus, err = s.snmp.BulkWalkAll(root)
	}
	if err != nil {
		return pdus, fmt.Errorf("client: walk %s: %w", root, err)
	}
	s.logger.Debug("client: walk completed",
		"root", root,
		"pdu_count", len(pdus),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pdus, nil
}

// Set writes pdus in one request.
func (s *Session) Set(pdus []gosnmp.SnmpPDU) error {
	pkt, err := s.snmp.Set(pdus)
	if err != nil {
		return fmt.Errorf("client: set: %w", err)
	}
	if pkt.Error != gosnmp.NoError {
		return fmt.Errorf("client: set: %w", &StatusError{Status: pkt.Error, Index: int(pkt.ErrorIndex)})
	}
	return nil
}

// StatusError is a non-zero error-status in a response.
type StatusError struct {
	Status gosnmp.SNMPError
	Index  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error-status %d (%s) at varbind %d", int(e.Status), statusName(e.Status), e.Index)
}

func statusName(s gosnmp.SNMPError) string {
	names := map[gosnmp.SNMPError]string{
		gosnmp.TooBig:              "tooBig",
		gosnmp.NoSuchName:          "noSuchName",
		gosnmp.BadValue:            "badValue",
		gosnmp.ReadOnly:            "readOnly",
		gosnmp.GenErr:              "genErr",
		gosnmp.NoAccess:            "noAccess",
		gosnmp.WrongType:           "wrongType",
		gosnmp.WrongLength:         "wrongLength",
		gosnmp.WrongEncoding:       "wrongEncoding",
		gosnmp.WrongValue:          "wrongValue",
		gosnmp.NoCreation:          "noCreation",
		gosnmp.InconsistentValue:   "inconsistentValue",
		gosnmp.ResourceUnavailable: "resourceUnavailable",
		gosnmp.CommitFailed:        "commitFailed",
		gosnmp.UndoFailed:          "undoFailed",
		gosnmp.AuthorizationError:  "authorizationError",
		gosnmp.NotWritable:         "notWritable",
		gosnmp.InconsistentName:    "inconsistentName",
	}
	if n, ok := names[s]; ok {
		return n
	}
	return "unknown"
}

// ParseVersion normalises a version flag ("v2c", "2", "1").
func ParseVersion(s string) (string, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "v") {
	case "1":
		return "1", nil
	case "2", "2c", "":
		return "2c", nil
	}
	return "", fmt.Errorf("client: unsupported SNMP version %q", s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) {
	a.l.Debug(fmt.Sprint(v...))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, v...))
}
