package client_test

import (
	"context"
	"net"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/agent"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/behaviour"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/client"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/internal/fixture"
	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/responder"
)

func startAgent(t *testing.T) int {
	t.Helper()
	m, reg := fixture.Model(t, fixture.MIB())
	s, err := behaviour.New(m, reg, behaviour.Config{}, nil)
	require.NoError(t, err)
	a := agent.New(agent.Config{ListenAddr: "127.0.0.1:0"}, responder.New([]*behaviour.Store{s}, nil), nil, nil)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)
	return a.Addr().(*net.UDPAddr).Port
}

func dial(t *testing.T, port int, version, community string) *client.Session {
	t.Helper()
	s, err := client.Dial(client.Config{Port: port, Version: version, Community: community, Retries: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWalk_WholeTree(t *testing.T) {
	port := startAgent(t)
	for _, version := range []string{"1", "2c"} {
		t.Run(version, func(t *testing.T) {
			pdus, err := dial(t, port, version, "public").Walk("")
			require.NoError(t, err)
			require.NotEmpty(t, pdus)
			assert.Equal(t, "."+fixture.SysDescr+".0", pdus[0].Name)
			for i := 1; i < len(pdus); i++ {
				assert.NotEqual(t, pdus[i-1].Name, pdus[i].Name, "walk must advance")
			}
		})
	}
}

func TestWalk_Subtree(t *testing.T) {
	port := startAgent(t)
	pdus, err := dial(t, port, "2c", "public").Walk("." + fixture.IfEntry + ".2")
	require.NoError(t, err)
	require.Len(t, pdus, 2)
	assert.Equal(t, []byte("eth0"), pdus[0].Value)
}

func TestGetAndSet(t *testing.T) {
	port := startAgent(t)
	s := dial(t, port, "2c", "private")

	name := "." + fixture.SysLocation + ".0"
	require.NoError(t, s.Set([]gosnmp.SnmpPDU{{Name: name, Type: gosnmp.OctetString, Value: "rack 4"}}))

	pdus, err := s.Get([]string{name})
	require.NoError(t, err)
	require.Len(t, pdus, 1)
	assert.Equal(t, []byte("rack 4"), pdus[0].Value)
}

func TestSet_ReportsStatus(t *testing.T) {
	port := startAgent(t)
	s := dial(t, port, "2c", "private")

	err := s.Set([]gosnmp.SnmpPDU{{Name: "." + fixture.IfEntry + ".2.1", Type: gosnmp.OctetString, Value: "x"}})
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gosnmp.NotWritable, se.Status)
	assert.Equal(t, 1, se.Index)
	assert.Contains(t, err.Error(), "notWritable")
}

func TestDial_RejectsVersion3(t *testing.T) {
	_, err := client.Dial(client.Config{Version: "3"}, nil)
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]string{"v1": "1", "1": "1", "2c": "2c", "v2c": "2c", "2": "2c"} {
		got, err := client.ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := client.ParseVersion("v3")
	assert.Error(t, err)
}
