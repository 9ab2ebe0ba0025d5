// Package app wires the SNMP emulator together and manages its lifecycle.
//
// Request path:
//
//	UDP → Agent → responder.Engine → registrar.Tree → behaviour.Store
//
// Audit path (every applied change):
//
//	behaviour.Store → Observer → [events] → JSON formatter → Transport
//
// Config changes on disk reach the engine through the reload watcher, which
// rebuilds the Schema Models and swaps them into the running stores.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	jsonformat "github.com/vpbank/snmp_emulator/format/json"
	"github.com/vpbank/snmp_emulator/models"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/agent"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/config"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/links"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/metrics"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/plugins"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/reload"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/responder"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/schema"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/state"
	filetransport "github.com/vpbank/snmp_emulator/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings for the emulator application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths are the directories for YAML configuration files.
	// Use config.PathsFromEnv() to populate from environment variables.
	ConfigPaths config.Paths

	// Agent configures the SNMP listener.
	Agent agent.Config

	// StatePath is the SQLite file holding the runtime overlay.
	// Default: ":memory:" (nothing survives a restart).
	StatePath string

	// MetricsAddr is the listen address of /metrics and /health.
	// Empty disables the HTTP server; the collectors still count.
	MetricsAddr string

	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string

	// Reload enables the config directory watcher.
	Reload bool

	// ReloadDelay is the watcher debounce. Default: 500ms.
	ReloadDelay time.Duration

	// AuditDisabled turns the audit log off.
	AuditDisabled bool

	// AuditFile is the rotating audit log. Empty writes to AuditWriter.
	AuditFile string

	// AuditMaxBytes rotates AuditFile once it would grow past this size.
	// Zero never rotates.
	AuditMaxBytes int64

	// AuditMaxBackups bounds the rotated files kept. Zero keeps all.
	AuditMaxBackups int

	// AuditWriter receives audit lines when AuditFile is empty.
	// nil = os.Stdout.
	AuditWriter io.Writer

	// PrettyPrint enables indented JSON audit output.
	PrettyPrint bool

	// BufferSize is the capacity of the audit event channel.
	// Default: 1024.
	BufferSize int
}

func (c *Config) withDefaults() {
	if c.StatePath == "" {
		c.StatePath = ":memory:"
	}
	if c.ReloadDelay <= 0 {
		c.ReloadDelay = 500 * time.Millisecond
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App owns every long-lived component. Create one with New, build the
// emulated tree with Open (Start does it if needed), serve with Start and
// release everything with Stop.
type App struct {
	cfg    Config
	logger *slog.Logger

	types   *mibtypes.Registry
	dynamic *behaviour.DynamicRegistry
	db      *state.DB
	metrics *metrics.Metrics
	engine  *responder.Engine

	agent      *agent.Agent
	metricsSrv *metrics.Server
	watcher    *reload.Watcher

	// Audit pipeline.
	formatter *jsonformat.JSONFormatter
	transport filetransport.Transport
	events    chan models.WriteEvent
	auditDone chan struct{}

	reloadMu  sync.Mutex
	opened    bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	sinksOnce sync.Once
}

// New constructs an App. It does not load or start anything.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{
		cfg:     cfg,
		logger:  logger,
		dynamic: behaviour.NewDynamicRegistry(),
		metrics: metrics.New(cfg.MetricsNamespace),
		stopCh:  make(chan struct{}),
	}
}

// Engine is the responder serving the emulated tree. Nil before Open.
func (a *App) Engine() *responder.Engine { return a.engine }

// Metrics returns the application's collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Agent returns the SNMP listener. Nil before Start.
func (a *App) Agent() *agent.Agent { return a.agent }

// MetricsServer returns the HTTP server, nil when disabled or before Start.
func (a *App) MetricsServer() *metrics.Server { return a.metricsSrv }

// Open loads the configuration, opens the state database, builds one store
// per MIB with its behaviour applied and restored overlay, and lays out the
// responder tree. Nothing listens yet.
func (a *App) Open() error {
	if a.opened {
		return nil
	}

	// ── 1. Load configuration ───────────────────────────────────────────
	a.logger.Info("app: loading configuration")
	loaded, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.types, err = loaded.Registry()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := plugins.Register(a.dynamic); err != nil {
		return fmt.Errorf("app: register dynamic functions: %w", err)
	}

	// ── 2. Build schema models (all or nothing) ─────────────────────────
	built, err := a.buildModels(loaded, a.types)
	if err != nil {
		return err
	}

	// ── 3. Persistence and audit sink ───────────────────────────────────
	a.db, err = state.Open(state.Config{Path: a.cfg.StatePath}, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := a.openAudit(); err != nil {
		_ = a.db.Close()
		return err
	}

	// ── 4. Stores: restore overlay, then apply behaviour ────────────────
	stores := make([]*behaviour.Store, 0, len(built))
	var errs []error
	for _, model := range built {
		s, err := a.newStore(model)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Restore(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.applyBehaviour(s, loaded.Behaviours[model.Name], true); err != nil {
			errs = append(errs, err)
			continue
		}
		stores = append(stores, s)
	}
	if len(errs) > 0 {
		a.closeSinks()
		return fmt.Errorf("app: %w", errors.Join(errs...))
	}

	// ── 5. Responder tree ───────────────────────────────────────────────
	a.engine = responder.New(stores, a.logger)
	a.metrics.SetInstances(a.engine.Tree().Size())
	a.opened = true

	a.logger.Info("app: emulated tree ready",
		"mibs", len(stores),
		"types", len(a.types.Names()),
		"instances", a.engine.Tree().Size(),
	)
	return nil
}

// Start opens the emulator if needed, then starts the SNMP agent, the
// metrics server and, when enabled, the reload watcher. Canceling ctx stops
// the listeners; Stop must still be called to release the rest.
func (a *App) Start(ctx context.Context) error {
	if err := a.Open(); err != nil {
		return err
	}

	a.agent = agent.New(a.cfg.Agent, a.engine, a.metrics, a.logger)
	if err := a.agent.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.cfg.MetricsAddr != "" {
		srv, err := metrics.NewServer(a.cfg.MetricsAddr, a.metrics, a.logger)
		if err != nil {
			// Non-fatal: the emulator answers SNMP without its metrics endpoint.
			a.logger.Error("app: metrics server failed to start, continuing without it",
				"error", err.Error(),
			)
		} else {
			a.metricsSrv = srv
			a.metricsSrv.Start()
		}
	}

	if a.cfg.Reload {
		a.watcher = reload.New(reload.Config{
			Dirs:  a.cfg.ConfigPaths.Dirs(),
			Delay: a.cfg.ReloadDelay,
		}, func(files []string) error {
			a.logger.Info("app: configuration changed", "files", len(files))
			return a.Reload()
		}, a.logger)
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Error("app: reload watcher failed to start, continuing without it",
				"error", err.Error(),
			)
			a.watcher = nil
		}
	}

	a.logger.Info("app: emulator running",
		"listen", a.agent.Addr().String(),
		"reload", a.watcher != nil,
		"metrics", a.metricsSrv != nil,
	)
	return nil
}

// Stop performs a graceful shutdown. It is safe to call more than once.
//
// Shutdown order:
//  1. Stop the watcher and the agent so no new writes arrive.
//  2. Stop the metrics server.
//  3. Drain queued audit events, then close the transport.
//  4. Close the state database.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("app: shutting down")

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.agent != nil {
			a.agent.Stop()
		}
		if a.metricsSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.metricsSrv.Stop(ctx); err != nil {
				a.logger.Error("app: metrics server stop error", "error", err.Error())
			}
			cancel()
		}
		a.closeSinks()

		a.logger.Info("app: shutdown complete")
	})
}

// closeSinks drains the audit pipeline and closes the transport and the
// database.
func (a *App) closeSinks() {
	a.sinksOnce.Do(func() {
		close(a.stopCh)
		if a.auditDone != nil {
			<-a.auditDone
		}
		if a.transport != nil {
			if err := a.transport.Close(); err != nil {
				a.logger.Error("app: transport close error", "error", err.Error())
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Error("app: state close error", "error", err.Error())
			}
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Reload
// ─────────────────────────────────────────────────────────────────────────────

// Reload re-reads the configuration and swaps the rebuilt Schema Models into
// the running stores. If any MIB fails to build nothing is swapped. Overlay
// values, rows, bindings and links survive; behaviour files are re-applied
// except for their value overrides, which only seed new MIBs.
func (a *App) Reload() (err error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	defer func() { a.metrics.ObserveReload(err) }()

	if !a.opened {
		return fmt.Errorf("app: reload before open")
	}

	a.logger.Info("app: reloading configuration")
	loaded, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}
	fresh, err := loaded.Registry()
	if err != nil {
		return fmt.Errorf("app: reload: %w", err)
	}
	built, err := a.buildModels(loaded, fresh)
	if err != nil {
		return err
	}

	// The registry is shared by every store; Register swaps its tables
	// atomically and keeps types that disappeared from disk.
	if err := a.types.Register(loaded.Types...); err != nil {
		return fmt.Errorf("app: reload: %w", err)
	}

	var (
		changed []*behaviour.Store
		errs    []error
	)
	for _, model := range built {
		beh := loaded.Behaviours[model.Name]
		if s, ok := a.engine.Store(model.Name); ok {
			if err := s.SwapSchema(model); err != nil {
				errs = append(errs, fmt.Errorf("app: reload %s: %w", model.Name, err))
				continue
			}
			if err := a.applyBehaviour(s, beh, false); err != nil {
				errs = append(errs, err)
			}
			changed = append(changed, s)
			continue
		}

		s, err := a.newStore(model)
		if err == nil {
			err = s.Restore()
		}
		if err == nil {
			err = a.applyBehaviour(s, beh, true)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Info("app: mib added", "mib", model.Name)
		changed = append(changed, s)
	}

	a.engine.Rebuild(changed...)
	a.metrics.SetInstances(a.engine.Tree().Size())
	a.logger.Info("app: configuration reloaded",
		"mibs", len(built),
		"instances", a.engine.Tree().Size(),
	)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction helpers
// ─────────────────────────────────────────────────────────────────────────────

// buildModels builds a Schema Model for every loaded MIB against types.
func (a *App) buildModels(loaded *config.LoadedConfig, types *mibtypes.Registry) ([]*schema.Model, error) {
	defaults := plugins.Defaults(time.Now)
	out := make([]*schema.Model, 0, len(loaded.MIBs))
	var errs []error
	for _, def := range loaded.MIBs {
		model, err := schema.Build(def, types, defaults, a.logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, model)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("app: build: %w", errors.Join(errs...))
	}
	return out, nil
}

func (a *App) newStore(model *schema.Model) (*behaviour.Store, error) {
	lm := links.NewManager(a.logger)
	lm.OnPropagate = func(_ links.Target, r links.Result) {
		a.metrics.ObserveLinks(r.Applied, r.Skipped, r.Failed)
	}
	s, err := behaviour.New(model, a.types, behaviour.Config{
		Persister: a.db,
		Links:     lm,
		Dynamic:   a.dynamic,
		Observer:  a.observe,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: store %s: %w", model.Name, err)
	}
	return s, nil
}

// applyBehaviour replaces the bindings and links of s with those of def.
// withValues also writes the declared value overrides.
func (a *App) applyBehaviour(s *behaviour.Store, def models.BehaviourDefinition, withValues bool) error {
	for _, b := range s.Bindings() {
		s.Unbind(b.Name)
	}
	for _, l := range s.Links().Links() {
		s.Links().Remove(l.ID)
	}

	var errs []error
	bindings, err := config.Bindings(def, s.Model())
	if err != nil {
		errs = append(errs, err)
	}
	for _, b := range bindings {
		if err := s.Bind(b); err != nil {
			errs = append(errs, err)
		}
	}
	ls, err := config.Links(def)
	if err != nil {
		errs = append(errs, err)
	}
	for _, l := range ls {
		if err := s.AddLink(l); err != nil {
			errs = append(errs, err)
		}
	}

	values := 0
	if withValues {
		for _, v := range def.Values {
			t, err := s.TargetFor(v.Name, v.Index)
			if err == nil {
				err = s.SetValue(t, v.Value)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("value %s%v: %w", v.Name, v.Index, err))
				continue
			}
			values++
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("app: behaviour %s: %w", s.MIB(), errors.Join(errs...))
	}
	if len(bindings)+len(ls)+values > 0 {
		a.logger.Info("app: behaviour applied",
			"mib", s.MIB(),
			"bindings", len(bindings),
			"links", len(ls),
			"values", values,
		)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit pipeline
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) openAudit() error {
	if a.cfg.AuditDisabled {
		return nil
	}
	tcfg := filetransport.Config{Writer: a.cfg.AuditWriter}
	if a.cfg.AuditFile != "" {
		rf, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
			FilePath:   a.cfg.AuditFile,
			MaxBytes:   a.cfg.AuditMaxBytes,
			MaxBackups: a.cfg.AuditMaxBackups,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("app: audit file: %w", err)
		}
		tcfg = filetransport.Config{Writer: rf, CloseWriter: true}
	}
	a.transport = filetransport.New(tcfg, a.logger)
	a.formatter = jsonformat.New(jsonformat.Config{PrettyPrint: a.cfg.PrettyPrint}, a.logger)
	a.events = make(chan models.WriteEvent, a.cfg.BufferSize)
	a.auditDone = make(chan struct{})
	go a.runAudit()
	return nil
}

// observe receives every change applied by any store.
func (a *App) observe(ch behaviour.Change) {
	a.metrics.ObserveWrite(ch.MIB, ch.Source)
	if a.events == nil {
		return
	}
	ev := models.WriteEvent{
		ID:        uuid.NewString(),
		Timestamp: ch.Time.UTC(),
		MIB:       ch.MIB,
		Source:    ch.Source,
		OID:       ch.OID.String(),
		Name:      ch.Name,
		Table:     ch.Table,
		Instance:  ch.Row.String(),
	}
	if !ch.Value.IsZero() {
		ev.Type = ch.Value.Type
		ev.Value = ch.Value.String()
	}
	if !ch.Previous.IsZero() {
		ev.Previous = ch.Previous.String()
	}
	select {
	case a.events <- ev:
	case <-a.stopCh:
	}
}

// runAudit formats and sends events until Stop, then drains what is queued.
func (a *App) runAudit() {
	defer close(a.auditDone)
	for {
		select {
		case ev := <-a.events:
			a.writeEvent(&ev)
		case <-a.stopCh:
			for {
				select {
				case ev := <-a.events:
					a.writeEvent(&ev)
				default:
					return
				}
			}
		}
	}
}

func (a *App) writeEvent(ev *models.WriteEvent) {
	data, err := a.formatter.Format(ev)
	if err != nil {
		a.logger.Warn("app: audit format error", "id", ev.ID, "error", err.Error())
		return
	}
	if err := a.transport.Send(data); err != nil {
		a.logger.Error("app: audit send error", "id", ev.ID, "error", err.Error())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
