package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ohlcbridge/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBars []model.OpenBar

func (f fixedBars) Snapshot() []model.OpenBar { return f }

func testServer(t *testing.T, health *HealthStatus, bars BarSource) (*httptest.Server, *Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	srv := httptest.NewServer(NewServer(":0", health, reg, bars).Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func TestMetrics_ExposedOnEndpoint(t *testing.T) {
	srv, m := testServer(t, NewHealthStatus(), nil)
	m.TicksTotal.WithLabelValues("trade").Add(3)
	m.BarsPersisted.WithLabelValues("1m").Inc()
	m.BridgeDrops.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("trade")))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `ohlcbridge_ticks_total{type="trade"} 3`)
	assert.Contains(t, string(body), `ohlcbridge_bars_persisted_total{tf="1m"} 1`)
	assert.Contains(t, string(body), "ohlcbridge_bridge_drops_total 1")
}

func TestHealth_DegradedUntilFeedConnected(t *testing.T) {
	h := NewHealthStatus()
	srv, _ := testServer(t, h, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	h.SetFeedConnected(true)
	h.SetLastTickTime(time.Now())
	h.SetEnabledTFs([]string{"1s", "1m"})

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report healthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, []string{"1s", "1m"}, report.EnabledTFs)
	assert.NotEmpty(t, report.TickAge)
}

func TestHealth_ConfiguredStoreFailureDegrades(t *testing.T) {
	h := NewHealthStatus()
	h.SetFeedConnected(true)
	h.EnableSQLite()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.mu.Lock()
	h.SQLiteOK = false
	h.mu.Unlock()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestBarsEndpoint_Filters(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	bars := fixedBars{
		{Symbol: "EURUSD", Timeframe: model.TF1s, Bar: model.Bar{BucketStart: ts, Open: 1.085, High: 1.085, Low: 1.085, Close: 1.085, TickCount: 1}},
		{Symbol: "EURUSD", Timeframe: model.TF1m, Bar: model.Bar{BucketStart: ts, Open: 1.085, High: 1.085, Low: 1.085, Close: 1.085, TickCount: 1}},
		{Symbol: "USDJPY", Timeframe: model.TF1s, Bar: model.Bar{BucketStart: ts, Open: 150, High: 150, Low: 150, Close: 150, TickCount: 1}},
	}
	srv, _ := testServer(t, NewHealthStatus(), bars)

	get := func(q string) []map[string]interface{} {
		resp, err := http.Get(srv.URL + "/api/bars" + q)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out []map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Len(t, get(""), 3)
	assert.Len(t, get("?symbol=eurusd"), 2)
	one := get("?symbol=EURUSD&tf=1m")
	require.Len(t, one, 1)
	assert.Equal(t, "1m", one[0]["tf"])
	assert.Len(t, get("?symbol=GBPUSD"), 0)

	resp, err := http.Get(srv.URL + "/api/bars?tf=2m")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunHTTPServer_ListenFailureAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	busy := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	assert.Error(t, RunHTTPServer(context.Background(), busy))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHTTPServer(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
