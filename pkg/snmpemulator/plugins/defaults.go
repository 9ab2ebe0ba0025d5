// Package plugins carries the built-in value providers: default-value
// providers consulted while a schema is built, and dynamic functions that
// bindings evaluate at read time.
package plugins

import (
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// EnterpriseOID is the sysObjectID the emulator reports unless told
// otherwise.
var EnterpriseOID = oid.OID{1, 3, 6, 1, 4, 1, 99999}

// Defaults returns the built-in default-value providers in lookup order.
// now supplies the clock for DateAndTime objects.
func Defaults(now func() time.Time) schema.Defaults {
	if now == nil {
		now = time.Now
	}
	return schema.Defaults{SystemGroup, EngineID, Conventions(now)}
}

// ─────────────────────────────────────────────────────────────────────────────
// Providers
// ─────────────────────────────────────────────────────────────────────────────

// SystemGroup answers for the MIB-II system group scalars.
func SystemGroup(_ mibtypes.Resolved, symbol string) (any, bool) {
	switch symbol {
	case "sysDescr":
		return "SNMP emulator agent", true
	case "sysObjectID":
		return EnterpriseOID.Clone(), true
	case "sysContact":
		return "Admin <admin@example.com>", true
	case "sysName":
		return "snmp-agent", true
	case "sysLocation":
		return "Server Room", true
	case "sysUpTime":
		return 0, true
	case "sysServices":
		return 72, true // applications + end-to-end
	}
	return nil, false
}

var (
	engineIDOnce sync.Once
	engineID     []byte
)

// EngineID answers snmpEngineID with an RFC 3411 enterprise-format ID that
// is stable for a given host name.
func EngineID(_ mibtypes.Resolved, symbol string) (any, bool) {
	if symbol != "snmpEngineID" {
		return nil, false
	}
	engineIDOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil {
			host = "snmp-emulator"
		}
		sum := sha256.Sum256([]byte(host + "snmp-agent-engine-id-v1"))
		engineID = append([]byte{0x80, 0x00, 0x01, 0x86, 0x9f}, sum[:11]...)
	})
	return append([]byte(nil), engineID...), true
}

// Conventions answers by textual convention: TruthValue true(1),
// RowStatus active(1), StorageType nonVolatile(3) and DateAndTime at build
// time.
func Conventions(now func() time.Time) schema.DefaultValueProvider {
	return func(t mibtypes.Resolved, _ string) (any, bool) {
		switch {
		case t.Is("TruthValue"):
			return 1, true
		case t.Is("RowStatus"):
			return 1, true
		case t.Is("StorageType"):
			return 3, true
		case t.Is("DateAndTime"):
			return EncodeDateAndTime(now()), true
		}
		return nil, false
	}
}

// EncodeDateAndTime renders t in UTC as the 8-octet DateAndTime form:
// year (2 octets, big endian), month, day, hour, minutes, seconds,
// deci-seconds.
func EncodeDateAndTime(t time.Time) []byte {
	t = t.UTC()
	y := t.Year()
	return []byte{
		byte(y >> 8), byte(y),
		byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		byte(t.Nanosecond() / 100_000_000),
	}
}
