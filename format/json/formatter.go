// Package json implements the JSON formatter of the audit pipeline.
//
// Pipeline position:
//
//	behaviour.Store (Observer) → app audit → format/json → transport/file
//
// The formatter converts a models.WriteEvent into one JSON document. The
// json struct tags are declared on the model, so serialisation is a single
// json.Marshal call with optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/snmp_emulator/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a models.WriteEvent into a byte slice.
type Formatter interface {
	Format(event *models.WriteEvent) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Keep it false for line-oriented audit files.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter with encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises event to JSON:
//
//	{
//	  "id": "6f1c…", "timestamp": "2026-10-17T09:12:00.5Z",
//	  "mib": "IF-MIB", "source": "write",
//	  "oid": "1.3.6.1.2.1.2.2.1.7.1", "name": "ifAdminStatus",
//	  "table": "ifEntry", "instance": "1", "type": "IfAdminStatus",
//	  "value": "down(2)", "previous": "up(1)"
//	}
func (f *JSONFormatter) Format(event *models.WriteEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("format/json: event must not be nil")
	}

	var (
		data []byte
		err  error
	)

	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(event, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(event)
	}

	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"event_id", event.ID,
			"oid", event.OID,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"event_id", event.ID,
		"source", event.Source,
		"bytes", len(data),
	)

	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
