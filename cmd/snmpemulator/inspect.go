package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/app"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/mibtypes"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/registrar"
	"github.com/vpbank/snmp_emulator/snmp/codec"
	"github.com/vpbank/snmp_emulator/snmp/oid"
)

// openOffline builds the emulated tree without persistence, audit or
// listeners.
func openOffline(g *globalFlags) (*app.App, error) {
	logger, err := g.logger()
	if err != nil {
		return nil, err
	}
	a := app.New(app.Config{
		ConfigPaths:   g.paths(),
		StatePath:     ":memory:",
		AuditDisabled: true,
	}, logger)
	if err := a.Open(); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// validate
// ─────────────────────────────────────────────────────────────────────────────

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load every definition and build each MIB without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openOffline(g)
			if err != nil {
				return err
			}
			defer a.Stop()
			return report(cmd.OutOrStdout(), a)
		},
	}
}

func report(w io.Writer, a *app.App) error {
	e := a.Engine()
	for _, s := range e.Stores() {
		m := s.Model()
		rows := 0
		for _, t := range m.Tables {
			if t.RowOwner() == t.Name {
				rows += s.Index(t).Len()
			}
		}
		if _, err := fmt.Fprintf(w, "%s: %d scalars, %d tables, %d rows, %d bindings, %d links\n",
			m.Name, len(m.Scalars), len(m.Tables), rows, len(s.Bindings()), len(s.Links().Links())); err != nil {
			return err
		}
	}
	scalars, columns := e.Tree().Objects()
	_, err := fmt.Fprintf(w, "ok: %d mibs, %d scalars, %d columns, %d instances\n",
		len(e.Stores()), scalars, columns, e.Tree().Size())
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// dump
// ─────────────────────────────────────────────────────────────────────────────

func newDumpCmd(g *globalFlags) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every instance of the emulated tree in GET-NEXT order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var start oid.OID
			if from != "" {
				o, err := oid.Parse(from)
				if err != nil {
					return err
				}
				start = o
			}
			a, err := openOffline(g)
			if err != nil {
				return err
			}
			defer a.Stop()

			w := cmd.OutOrStdout()
			var werr error
			err = a.Engine().Walk(start, func(inst registrar.Instance, v mibtypes.ResolvedValue) bool {
				pdu, err := codec.ToPDU(inst.OID, v)
				if err != nil {
					_, werr = fmt.Fprintf(w, "%s %s = <%v>\n", inst.OID, inst.Name, err)
				} else {
					_, werr = fmt.Fprintf(w, "%s %s = %s: %s\n", pdu.Name, inst.Name, codec.PDUTypeString(pdu.Type), codec.Render(pdu))
				}
				return werr == nil
			})
			if err != nil {
				return err
			}
			return werr
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Start after this OID")
	return cmd
}
