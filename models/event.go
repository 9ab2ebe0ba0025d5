// Package models defines the data structures shared across the layers of the
// SNMP emulator: the descriptors read from configuration and the audit record
// produced when emulated state changes. Nothing here depends on any other
// internal package, so every layer can import it.
package models

import "time"

// WriteEvent is the audit record emitted for every applied change to the
// runtime overlay. It is what the formatter serialises and the file
// transport writes, one JSON object per line.
type WriteEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MIB       string    `json:"mib"`
	Source    string    `json:"source"` // EventSource*
	OID       string    `json:"oid,omitempty"`
	Name      string    `json:"name,omitempty"`
	Table     string    `json:"table,omitempty"`
	Instance  string    `json:"instance,omitempty"` // row index suffix, e.g. "1" for ifIndex 1
	Type      string    `json:"type,omitempty"`
	Value     string    `json:"value,omitempty"`
	Previous  string    `json:"previous,omitempty"`
}

// Event sources.
const (
	EventSourceWrite   = "write"   // SET through the responder
	EventSourceLink    = "link"    // propagated by a value link
	EventSourceCreate  = "create"  // administrative row insertion
	EventSourceDelete  = "delete"  // administrative row removal
	EventSourceRestore = "restore" // deleted seed row brought back
	EventSourceReset   = "reset"   // overlay value cleared
)
