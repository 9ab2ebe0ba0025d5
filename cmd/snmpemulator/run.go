package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/agent"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/app"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		listen     string
		readComm   string
		writeComm  string
		workers    int
		maxBulk    int
		statePath  string
		metricsOn  string
		metricsNS  string
		reloadOn   bool
		reloadWait time.Duration

		auditOff        bool
		auditFile       string
		auditMaxBytes   int64
		auditMaxBackups int
		pretty          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the emulated tree over SNMP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}

			cfg := app.Config{
				ConfigPaths: g.paths(),
				Agent: agent.Config{
					ListenAddr:      listen,
					ReadCommunity:   readComm,
					WriteCommunity:  writeComm,
					Workers:         workers,
					MaxBulkVarbinds: maxBulk,
				},
				StatePath:        statePath,
				MetricsAddr:      metricsOn,
				MetricsNamespace: metricsNS,
				Reload:           reloadOn,
				ReloadDelay:      reloadWait,
				AuditDisabled:    auditOff,
				AuditFile:        auditFile,
				AuditMaxBytes:    auditMaxBytes,
				AuditMaxBackups:  auditMaxBackups,
				AuditWriter:      cmd.OutOrStdout(),
				PrettyPrint:      pretty,
			}
			application := app.New(cfg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			logger.Info("snmpemulator: running, press Ctrl-C to stop")

			<-ctx.Done()
			logger.Info("snmpemulator: received shutdown signal")

			application.Stop()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "agent.listen", "0.0.0.0:161", "SNMP agent UDP address")
	f.StringVar(&readComm, "agent.community.read", "public", "Community granting read access")
	f.StringVar(&writeComm, "agent.community.write", "private", "Community granting write access (\"-\" disables SET)")
	f.IntVar(&workers, "agent.workers", 4, "Number of request handlers")
	f.IntVar(&maxBulk, "agent.max.bulk", 1000, "Max varbinds in one GET-BULK response")
	f.StringVar(&statePath, "state.path", "snmp_emulator.db", "SQLite file holding the runtime overlay (\":memory:\" keeps nothing)")
	f.StringVar(&metricsOn, "metrics.listen", "", "Prometheus /metrics address (empty disables)")
	f.StringVar(&metricsNS, "metrics.namespace", "", "Prefix of every metric name")
	f.BoolVar(&reloadOn, "reload", false, "Watch the config directories and reload on change")
	f.DurationVar(&reloadWait, "reload.delay", 500*time.Millisecond, "Debounce before a reload")

	f.BoolVar(&auditOff, "audit.disabled", false, "Disable the audit log of applied writes")
	f.StringVar(&auditFile, "audit.file", "", "Audit log file (empty writes to stdout)")
	f.Int64Var(&auditMaxBytes, "audit.max.bytes", 0, "Max audit file size in bytes before rotation (0=disabled)")
	f.IntVar(&auditMaxBackups, "audit.max.backups", 5, "Max rotated audit files to keep (0=unlimited)")
	f.BoolVar(&pretty, "format.pretty", false, "Pretty-print JSON audit output")

	return cmd
}
