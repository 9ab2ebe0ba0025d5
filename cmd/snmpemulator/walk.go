package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/client"
	"github.com/vpbank/snmp_emulator/snmp/codec"
)

func newWalkCmd(g *globalFlags) *cobra.Command {
	var cfg client.Config
	cmd := &cobra.Command{
		Use:   "walk [OID]",
		Short: "Walk a running agent over SNMP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}
			if cfg.Version, err = client.ParseVersion(cfg.Version); err != nil {
				return err
			}
			root := ""
			if len(args) == 1 {
				root = args[0]
			}

			s, err := client.Dial(cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			pdus, err := s.Walk(root)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, pdu := range pdus {
				if _, err := fmt.Fprintf(w, "%s = %s: %s\n", pdu.Name, codec.PDUTypeString(pdu.Type), codec.Render(pdu)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Target, "target", "127.0.0.1", "Agent host")
	f.IntVar(&cfg.Port, "port", 161, "Agent UDP port")
	f.StringVar(&cfg.Version, "snmp.version", "2c", "SNMP version: 1, 2c")
	f.StringVarP(&cfg.Community, "community", "c", "public", "Community string")
	f.DurationVar(&cfg.Timeout, "timeout", 2*time.Second, "Per-request timeout")
	f.IntVar(&cfg.Retries, "retries", 1, "Retries per request")
	f.Uint32Var(&cfg.MaxRepetitions, "max.repetitions", 25, "GET-BULK max-repetitions (v2c)")
	return cmd
}
