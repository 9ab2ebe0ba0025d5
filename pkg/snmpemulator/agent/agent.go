// Package agent is the SNMP front end of the emulator: a UDP listener that
// decodes v1/v2c requests with gosnmp, answers them from the responder
// engine and marshals the GetResponse.
//
// Pipeline position:
//
//	UDP port 161  →  [reader]  →  jobs  →  [N workers]  →  responder.Engine
//	                                              │
//	                                        GetResponse  →  UDP
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/metrics"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/responder"
)

// ErrDropped is returned by Handle for packets that get no response.
var ErrDropped = errors.New("packet dropped")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the Agent.
type Config struct {
	// ListenAddr is the UDP address to bind to (default "0.0.0.0:161").
	ListenAddr string

	// ReadCommunity grants GET, GET-NEXT and GET-BULK (default "public").
	ReadCommunity string

	// WriteCommunity grants every operation including SET (default
	// "private"). Empty after defaults only if set to "-", which disables
	// writes.
	WriteCommunity string

	// Workers is the number of request handlers (default 4).
	Workers int

	// MaxPacketSize bounds both received datagrams and responses
	// (default 65507).
	MaxPacketSize int

	// MaxBulkVarbinds caps the varbinds of one GET-BULK response
	// (default 1000).
	MaxBulkVarbinds int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ListenAddr == "" {
		out.ListenAddr = "0.0.0.0:161"
	}
	if out.ReadCommunity == "" {
		out.ReadCommunity = "public"
	}
	switch out.WriteCommunity {
	case "":
		out.WriteCommunity = "private"
	case "-":
		out.WriteCommunity = ""
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.MaxPacketSize <= 0 {
		out.MaxPacketSize = 65507
	}
	if out.MaxBulkVarbinds <= 0 {
		out.MaxBulkVarbinds = 1000
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Agent
// ─────────────────────────────────────────────────────────────────────────────

type job struct {
	data []byte
	addr net.Addr
}

// Agent serves SNMP requests against a responder engine.
type Agent struct {
	cfg     Config
	engine  *responder.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	snmp    *gosnmp.GoSNMP // decoder only, never connected

	conn net.PacketConn
	jobs chan job
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an Agent. m may be nil.
func New(cfg Config, engine *responder.Engine, m *metrics.Metrics, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	return &Agent{
		cfg:     c,
		engine:  engine,
		metrics: m,
		logger:  logger,
		snmp:    &gosnmp.GoSNMP{Logger: gosnmp.NewLogger(slogAdapter{logger})},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Addr returns the bound address, or nil before Start.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

// Start binds the UDP socket and starts the reader and the workers. It
// returns once the socket is bound. Call Stop (or cancel ctx) to terminate.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent: already running")
	}
	select {
	case <-a.stopCh:
		a.mu.Unlock()
		return fmt.Errorf("agent: stopped")
	default:
	}
	conn, err := net.ListenPacket("udp", a.cfg.ListenAddr)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("agent: listen %s: %w", a.cfg.ListenAddr, err)
	}
	a.conn = conn
	a.jobs = make(chan job, a.cfg.Workers*2)
	a.running = true
	a.mu.Unlock()

	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	go a.read()

	a.logger.Info("agent: listening",
		"addr", conn.LocalAddr().String(),
		"workers", a.cfg.Workers,
		"writable", a.cfg.WriteCommunity != "",
	)

	go func() {
		select {
		case <-ctx.Done():
			a.Stop()
		case <-a.stopCh:
		}
	}()
	return nil
}

// Stop closes the socket and waits for in-flight requests. It is safe to
// call Stop multiple times.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	close(a.stopCh)
	a.conn.Close()

	// the reader owns the jobs channel and closes it on exit
	<-a.doneCh
	a.wg.Wait()

	a.logger.Info("agent: stopped")
}

// read is the single socket reader. It fans datagrams out to the workers
// and drops them when every worker is busy and the queue is full.
func (a *Agent) read() {
	defer close(a.doneCh)
	defer close(a.jobs)

	buf := make([]byte, a.cfg.MaxPacketSize)
	for {
		n, addr, err := a.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-a.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("agent: read failed", "error", err.Error())
			continue
		}
		j := job{data: append([]byte(nil), buf[:n]...), addr: addr}
		select {
		case a.jobs <- j:
		default:
			a.metrics.ObserveDropped("overload")
			a.logger.Warn("agent: request queue full, packet dropped", "remote", addr.String())
		}
	}
}

func (a *Agent) worker() {
	defer a.wg.Done()
	for j := range a.jobs {
		resp, err := a.Handle(j.data)
		if err != nil {
			a.logger.Debug("agent: no response", "remote", j.addr.String(), "error", err.Error())
			continue
		}
		if _, err := a.conn.WriteTo(resp, j.addr); err != nil {
			a.logger.Warn("agent: write failed", "remote", j.addr.String(), "error", err.Error())
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Request handling
// ─────────────────────────────────────────────────────────────────────────────

// Handle answers one encoded request. Packets that must not be answered
// (undecodable, unknown community, unsupported version or PDU) return an
// error wrapping ErrDropped.
func (a *Agent) Handle(data []byte) ([]byte, error) {
	start := time.Now()

	req, err := a.snmp.SnmpDecodePacket(data)
	if err != nil {
		a.metrics.ObserveDropped("decode")
		return nil, fmt.Errorf("agent: decode: %v: %w", err, ErrDropped)
	}
	if req.Version != gosnmp.Version1 && req.Version != gosnmp.Version2c {
		a.metrics.ObserveDropped("version")
		return nil, fmt.Errorf("agent: SNMP version %v: %w", req.Version, ErrDropped)
	}
	canWrite := a.cfg.WriteCommunity != "" && req.Community == a.cfg.WriteCommunity
	if !canWrite && req.Community != a.cfg.ReadCommunity {
		a.metrics.ObserveDropped("bad_community")
		return nil, fmt.Errorf("agent: community %q: %w", req.Community, ErrDropped)
	}

	r := &request{agent: a, v1: req.Version == gosnmp.Version1, vbs: req.Variables}
	switch req.PDUType {
	case gosnmp.GetRequest:
		r.get()
	case gosnmp.GetNextRequest:
		r.getNext()
	case gosnmp.GetBulkRequest:
		if r.v1 {
			a.metrics.ObserveDropped("unsupported_pdu")
			return nil, fmt.Errorf("agent: GetBulkRequest in SNMPv1: %w", ErrDropped)
		}
		nonRepeaters, maxRepetitions := bulkParams(req)
		r.getBulk(nonRepeaters, maxRepetitions)
	case gosnmp.SetRequest:
		if !canWrite {
			r.fail(gosnmp.NoAccess, 0)
		} else {
			r.set()
		}
	default:
		a.metrics.ObserveDropped("unsupported_pdu")
		return nil, fmt.Errorf("agent: PDU type 0x%02x: %w", byte(req.PDUType), ErrDropped)
	}

	resp, err := a.marshal(req, r)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveRequest(pduName(req.PDUType), versionName(req.Version), time.Since(start))
	return resp, nil
}

// marshal encodes the response, trimming GET-BULK results or answering
// tooBig when it exceeds MaxPacketSize.
func (a *Agent) marshal(req *gosnmp.SnmpPacket, r *request) ([]byte, error) {
	for {
		resp := &gosnmp.SnmpPacket{
			Version:    req.Version,
			Community:  req.Community,
			PDUType:    gosnmp.GetResponse,
			RequestID:  req.RequestID,
			Error:      r.status,
			ErrorIndex: r.errorIndex,
			Variables:  r.out,
			Logger:     gosnmp.NewLogger(slogAdapter{a.logger}),
		}
		b, err := resp.MarshalMsg()
		if err != nil {
			a.logger.Error("agent: marshal response failed",
				"request_id", req.RequestID,
				"error", err.Error(),
			)
			if r.status == gosnmp.GenErr {
				a.metrics.ObserveDropped("marshal")
				return nil, fmt.Errorf("agent: marshal: %v: %w", err, ErrDropped)
			}
			r.fail(gosnmp.GenErr, 0)
			continue
		}
		if len(b) <= a.cfg.MaxPacketSize {
			return b, nil
		}
		if req.PDUType == gosnmp.GetBulkRequest && len(r.out) > 1 {
			r.out = r.out[:len(r.out)/2]
			continue
		}
		if r.status == gosnmp.TooBig {
			a.metrics.ObserveDropped("too_big")
			return nil, fmt.Errorf("agent: response of %d bytes: %w", len(b), ErrDropped)
		}
		r.fail(gosnmp.TooBig, 0)
		if !r.v1 {
			r.out = nil
		}
	}
}

// bulkParams reads non-repeaters and max-repetitions. Decoders that do not
// distinguish GetBulkRequest leave them in the error-status and error-index
// fields.
func bulkParams(p *gosnmp.SnmpPacket) (int, int) {
	nonRepeaters, maxRepetitions := int(p.NonRepeaters), int(p.MaxRepetitions)
	if nonRepeaters == 0 {
		nonRepeaters = int(p.Error)
	}
	if maxRepetitions == 0 {
		maxRepetitions = int(p.ErrorIndex)
	}
	return nonRepeaters, maxRepetitions
}

func pduName(t gosnmp.PDUType) string {
	switch t {
	case gosnmp.GetRequest:
		return "GetRequest"
	case gosnmp.GetNextRequest:
		return "GetNextRequest"
	case gosnmp.GetBulkRequest:
		return "GetBulkRequest"
	case gosnmp.SetRequest:
		return "SetRequest"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

func versionName(v gosnmp.SnmpVersion) string {
	if v == gosnmp.Version1 {
		return "1"
	}
	return "2c"
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

// slogAdapter bridges slog.Logger to gosnmp's Logger interface (Printf-style).
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) {
	a.l.Debug(fmt.Sprint(v...))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, v...))
}
