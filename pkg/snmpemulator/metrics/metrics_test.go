package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_emulator/pkg/snmpemulator/metrics"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Exposition(t *testing.T) {
	m := metrics.New("")

	m.ObserveRequest("GetRequest", "2c", 2*time.Millisecond)
	m.ObserveRequest("GetRequest", "2c", time.Millisecond)
	m.ObserveVarbind(metrics.OutcomeOK)
	m.ObserveVarbind(metrics.OutcomeNoSuchInst)
	m.ObserveDropped("bad_community")
	m.ObserveWrite("EMU-TEST-MIB", "write")
	m.ObserveLinks(2, 1, 0)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("boom"))
	m.SetInstances(25)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`snmpemulator_requests_total{pdu_type="GetRequest",version="2c"} 2`,
		`snmpemulator_request_duration_seconds_count{pdu_type="GetRequest"} 2`,
		`snmpemulator_varbinds_total{outcome="ok"} 1`,
		`snmpemulator_varbinds_total{outcome="no_such_instance"} 1`,
		`snmpemulator_packets_dropped_total{reason="bad_community"} 1`,
		`snmpemulator_writes_total{mib="EMU-TEST-MIB",source="write"} 1`,
		`snmpemulator_link_propagations_total{outcome="applied"} 2`,
		`snmpemulator_link_propagations_total{outcome="skipped"} 1`,
		`snmpemulator_reloads_total{result="success"} 1`,
		`snmpemulator_reloads_total{result="failure"} 1`,
		`snmpemulator_instances 25`,
		`snmpemulator_uptime_seconds`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestMetrics_CustomNamespace(t *testing.T) {
	m := metrics.New("lab")
	m.ObserveVarbind(metrics.OutcomeOK)
	assert.Contains(t, scrape(t, m.Handler()), `lab_varbinds_total{outcome="ok"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GetRequest", "1", time.Millisecond)
		m.ObserveVarbind(metrics.OutcomeOK)
		m.ObserveDropped("x")
		m.ObserveWrite("M", "write")
		m.ObserveLinks(1, 1, 1)
		m.ObserveReload(nil)
		m.SetInstances(1)
	})
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	m := metrics.New("")
	m.SetInstances(3)

	srv, err := metrics.NewServer("127.0.0.1:0", m, nil)
	require.NoError(t, err)
	srv.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
	}()

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "snmpemulator_instances 3")
}
