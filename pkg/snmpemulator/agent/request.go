package agent

import (
	"errors"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/metrics"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/registrar"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/tableindex"
	"github.com/vpbank/snmp_emulator/snmp/codec"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// request accumulates the response to one PDU.
type request struct {
	agent *Agent
	v1    bool
	vbs   []gosnmp.SnmpPDU

	out        []gosnmp.SnmpPDU
	status     gosnmp.SNMPError
	errorIndex uint8
}

// fail turns the response into an error response echoing the request
// varbinds. index is 1-based, 0 when no varbind is at fault.
func (r *request) fail(status gosnmp.SNMPError, index int) {
	if r.v1 {
		status = v1Status(status)
	}
	if index > 255 {
		index = 255
	}
	r.status = status
	r.errorIndex = uint8(index)
	r.out = r.vbs
}

func (r *request) observe(outcome string) { r.agent.metrics.ObserveVarbind(outcome) }

// ─────────────────────────────────────────────────────────────────────────────
// GET
// ─────────────────────────────────────────────────────────────────────────────

func (r *request) get() {
	out := make([]gosnmp.SnmpPDU, 0, len(r.vbs))
	for i, vb := range r.vbs {
		o, err := oid.Parse(vb.Name)
		if err != nil {
			r.observe(metrics.OutcomeError)
			r.fail(gosnmp.GenErr, i+1)
			return
		}
		v, err := r.agent.engine.ResolveAt(o)
		var pdu gosnmp.SnmpPDU
		if err == nil {
			pdu, err = codec.ToPDU(o, v)
			if err == nil && r.v1 && pdu.Type == gosnmp.Counter64 {
				err = registrar.ErrNotFound
			}
		}
		switch {
		case err == nil:
			r.observe(metrics.OutcomeOK)
			out = append(out, pdu)
		case errors.Is(err, registrar.ErrNoSuchInstance):
			r.observe(metrics.OutcomeNoSuchInst)
			if r.v1 {
				r.fail(gosnmp.NoSuchName, i+1)
				return
			}
			out = append(out, codec.Exception(o, gosnmp.NoSuchInstance))
		case errors.Is(err, registrar.ErrNotFound):
			r.observe(metrics.OutcomeNoSuchObject)
			if r.v1 {
				r.fail(gosnmp.NoSuchName, i+1)
				return
			}
			out = append(out, codec.Exception(o, gosnmp.NoSuchObject))
		default:
			r.observe(metrics.OutcomeError)
			r.agent.logger.Warn("agent: read failed", "oid", o.String(), "error", err.Error())
			r.fail(gosnmp.GenErr, i+1)
			return
		}
	}
	r.out = out
}

// ─────────────────────────────────────────────────────────────────────────────
// GET-NEXT and GET-BULK
// ─────────────────────────────────────────────────────────────────────────────

func (r *request) getNext() {
	out := make([]gosnmp.SnmpPDU, 0, len(r.vbs))
	for i, vb := range r.vbs {
		o, err := oid.Parse(vb.Name)
		if err != nil {
			r.observe(metrics.OutcomeError)
			r.fail(gosnmp.GenErr, i+1)
			return
		}
		pdu, err := r.next(o)
		switch {
		case err == nil:
			r.observe(metrics.OutcomeOK)
			out = append(out, pdu)
		case errors.Is(err, registrar.ErrEndOfTree):
			r.observe(metrics.OutcomeEndOfView)
			if r.v1 {
				r.fail(gosnmp.NoSuchName, i+1)
				return
			}
			out = append(out, codec.Exception(o, gosnmp.EndOfMibView))
		default:
			r.observe(metrics.OutcomeError)
			r.agent.logger.Warn("agent: successor read failed", "oid", o.String(), "error", err.Error())
			r.fail(gosnmp.GenErr, i+1)
			return
		}
	}
	r.out = out
}

// getBulk answers nonRepeaters single successors followed by up to
// maxRepetitions rows of successors for the remaining varbinds.
func (r *request) getBulk(nonRepeaters, maxRepetitions int) {
	nonRepeaters = max(0, min(nonRepeaters, len(r.vbs)))
	maxRepetitions = max(0, maxRepetitions)
	limit := r.agent.cfg.MaxBulkVarbinds

	cursors := make([]oid.OID, len(r.vbs))
	for i, vb := range r.vbs {
		o, err := oid.Parse(vb.Name)
		if err != nil {
			r.fail(gosnmp.GenErr, i+1)
			return
		}
		cursors[i] = o
	}

	var out []gosnmp.SnmpPDU
	step := func(i int) (ended bool, ok bool) {
		pdu, err := r.next(cursors[i])
		switch {
		case err == nil:
			r.observe(metrics.OutcomeOK)
			cursors[i], _ = oid.Parse(pdu.Name)
			out = append(out, pdu)
			return false, true
		case errors.Is(err, registrar.ErrEndOfTree):
			r.observe(metrics.OutcomeEndOfView)
			out = append(out, codec.Exception(cursors[i], gosnmp.EndOfMibView))
			return true, true
		default:
			r.observe(metrics.OutcomeError)
			r.agent.logger.Warn("agent: successor read failed", "oid", cursors[i].String(), "error", err.Error())
			r.fail(gosnmp.GenErr, i+1)
			return true, false
		}
	}

	for i := 0; i < nonRepeaters; i++ {
		if _, ok := step(i); !ok {
			return
		}
	}

	repeaters := len(r.vbs) - nonRepeaters
	ended := make([]bool, repeaters)
	for rep := 0; rep < maxRepetitions && repeaters > 0 && len(out) < limit; rep++ {
		live := 0
		for j := 0; j < repeaters && len(out) < limit; j++ {
			i := nonRepeaters + j
			if ended[j] {
				out = append(out, codec.Exception(cursors[i], gosnmp.EndOfMibView))
				continue
			}
			e, ok := step(i)
			if !ok {
				return
			}
			ended[j] = e
			if !e {
				live++
			}
		}
		if live == 0 {
			break
		}
	}
	r.out = out
}

// next returns the first readable successor of o as a varbind. SNMPv1
// cannot carry Counter64, so those instances are skipped for v1 requests.
// Instances whose value cannot be encoded are logged and skipped.
func (r *request) next(o oid.OID) (gosnmp.SnmpPDU, error) {
	cur := o
	for {
		at, v, err := r.agent.engine.NextAfter(cur)
		if err != nil {
			return gosnmp.SnmpPDU{}, err
		}
		cur = at
		pdu, err := codec.ToPDU(at, v)
		if err != nil {
			r.agent.logger.Warn("agent: value not encodable, skipped", "oid", at.String(), "error", err.Error())
			continue
		}
		if r.v1 && pdu.Type == gosnmp.Counter64 {
			continue
		}
		return pdu, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SET
// ─────────────────────────────────────────────────────────────────────────────

type pendingWrite struct {
	oid   oid.OID
	value any
}

// set checks every varbind before applying any of them. A failure while
// applying reports commitFailed; writes already applied stay.
func (r *request) set() {
	writes := make([]pendingWrite, 0, len(r.vbs))
	for i, vb := range r.vbs {
		o, value, err := codec.FromPDU(vb)
		if err != nil {
			r.observe(metrics.OutcomeBadValue)
			r.fail(gosnmp.WrongType, i+1)
			return
		}
		if status := r.check(o, vb.Type, value); status != gosnmp.NoError {
			if status == gosnmp.NotWritable || status == gosnmp.NoCreation {
				r.observe(metrics.OutcomeDenied)
			} else {
				r.observe(metrics.OutcomeBadValue)
			}
			r.agent.logger.Debug("agent: set rejected",
				"oid", o.String(),
				"status", int(status),
			)
			r.fail(status, i+1)
			return
		}
		writes = append(writes, pendingWrite{oid: o, value: value})
	}

	for i, w := range writes {
		if err := r.agent.engine.ApplyWrite(w.oid, w.value); err != nil {
			r.observe(metrics.OutcomeError)
			r.agent.logger.Error("agent: set failed after checks",
				"oid", w.oid.String(),
				"error", err.Error(),
			)
			r.fail(gosnmp.CommitFailed, i+1)
			return
		}
		r.observe(metrics.OutcomeOK)
	}
	r.out = r.vbs
}

// check runs the write checks for one varbind and returns the error status
// to report.
func (r *request) check(o oid.OID, tag gosnmp.Asn1BER, value any) gosnmp.SNMPError {
	inst, err := r.agent.engine.Locate(o)
	if err != nil {
		return writeStatus(err)
	}
	res, err := inst.Store().Types().Resolve(inst.Target.Type())
	if err != nil {
		return gosnmp.GenErr
	}
	if !codec.Compatible(tag, res.Base, res.Syntax) {
		return gosnmp.WrongType
	}
	if _, err := inst.CheckWrite(value); err != nil {
		return writeStatus(err)
	}
	return gosnmp.NoError
}

// writeStatus maps a write error to its SNMPv2 error status.
func writeStatus(err error) gosnmp.SNMPError {
	switch {
	case errors.Is(err, behaviour.ErrAccessDenied):
		return gosnmp.NotWritable
	case errors.Is(err, mibtypes.ErrTypeMismatch):
		return gosnmp.WrongType
	case errors.Is(err, mibtypes.ErrValidation):
		return gosnmp.WrongValue
	case errors.Is(err, tableindex.ErrNoSuchRow), errors.Is(err, registrar.ErrNoSuchInstance):
		return gosnmp.NoCreation
	case errors.Is(err, registrar.ErrNotFound):
		return gosnmp.NotWritable
	default:
		return gosnmp.GenErr
	}
}

// v1Status maps an SNMPv2 error status onto the five SNMPv1 ones
// (RFC 2576 section 4.3).
func v1Status(s gosnmp.SNMPError) gosnmp.SNMPError {
	switch s {
	case gosnmp.NoError, gosnmp.TooBig, gosnmp.NoSuchName, gosnmp.BadValue, gosnmp.ReadOnly, gosnmp.GenErr:
		return s
	case gosnmp.WrongValue, gosnmp.WrongEncoding, gosnmp.WrongType, gosnmp.WrongLength, gosnmp.InconsistentValue:
		return gosnmp.BadValue
	case gosnmp.NoAccess, gosnmp.NotWritable, gosnmp.NoCreation, gosnmp.InconsistentName, gosnmp.AuthorizationError:
		return gosnmp.NoSuchName
	default:
		return gosnmp.GenErr
	}
}
