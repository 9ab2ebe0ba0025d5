// Command snmpemulator is the SNMP agent emulator binary.
//
// It loads type, MIB and behaviour definitions from YAML directories named by
// environment variables (or command-line flags), builds the emulated tree and
// answers SNMP v1/v2c requests until interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	snmpemulator run [flags]
//	snmpemulator validate
//	snmpemulator dump [--from OID]
//	snmpemulator walk --target HOST [OID]
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/config"
)

var version = "dev" // set by build flags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpemulator: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel string
	logFmt   string

	// Config path overrides (defaults read from env).
	cfgTypes      string
	cfgMIBs       string
	cfgBehaviours string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:     "snmpemulator",
		Version: version,
		Short:   "SNMP agent emulator driven by YAML MIB definitions",
		Long: `snmpemulator answers SNMP v1/v2c requests from an emulated MIB tree built
from compiled symbol descriptors, with dynamic values, linked objects and a
persistent runtime overlay.`,
		Example: `  # Serve the tree on the standard port
  snmpemulator run --agent.listen 0.0.0.0:161

  # Check the configuration directories
  snmpemulator validate --config.mibs ./mibs

  # Walk a running emulator
  snmpemulator walk --target 127.0.0.1 1.3.6.1.2.1.1`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFmt, "log.fmt", "json", "Log format: json, text")
	pf.StringVar(&g.cfgTypes, "config.types", "", "Override SNMPEMU_TYPE_DEFINITIONS_DIRECTORY_PATH")
	pf.StringVar(&g.cfgMIBs, "config.mibs", "", "Override SNMPEMU_MIB_DEFINITIONS_DIRECTORY_PATH")
	pf.StringVar(&g.cfgBehaviours, "config.behaviours", "", "Override SNMPEMU_BEHAVIOUR_DEFINITIONS_DIRECTORY_PATH")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newDumpCmd(g),
		newWalkCmd(g),
	)
	return root
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (g *globalFlags) logger() (*slog.Logger, error) {
	return buildLogger(g.logLevel, g.logFmt)
}

func (g *globalFlags) paths() config.Paths {
	paths := config.PathsFromEnv()
	applyPathOverrides(&paths, g.cfgTypes, g.cfgMIBs, g.cfgBehaviours)
	return paths
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func applyPathOverrides(p *config.Paths, types, mibs, behaviours string) {
	if types != "" {
		p.Types = types
	}
	if mibs != "" {
		p.MIBs = mibs
	}
	if behaviours != "" {
		p.Behaviours = behaviours
	}
}
