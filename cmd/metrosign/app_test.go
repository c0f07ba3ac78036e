package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosign/metrosign/internal/appconf"
)

const trainsResponse = `{"Trains":[
	{"Line":"RD","Destination":"Glenmont","Min":"3","Car":"8","Group":"1","LocationCode":"B11"},
	{"Line":"RD","Destination":"Shady Grove","Min":"BRD","Car":"6","Group":"2","LocationCode":"B11"}
]}`

func testConfig() appconf.Config {
	return appconf.Config{
		Port:      4000,
		Env:       appconf.Test,
		ApiKeys:   []string{"test"},
		Verbose:   false,
		RateLimit: 100,
	}
}

func testSignConfig(t *testing.T, apiURL string) appconf.SignConfig {
	t.Helper()
	retries := uint(1)
	noLimit := 0.0
	fileCfg := appconf.FileConfig{
		Modes:            []string{appconf.ModeTrains},
		WMATAAPIKey:      "wmata-key",
		MetroStationCode: "B11",
		MetroAPIURL:      apiURL + "/prediction/",
		MetroAPIRetries:  &retries,
		APIRateLimit:     &noLimit,
	}
	require.NoError(t, fileCfg.Validate())
	return fileCfg.ToSignConfig()
}

func newPredictionServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "Single key", input: "test-key", expected: []string{"test-key"}},
		{name: "Multiple keys", input: "key1,key2,key3", expected: []string{"key1", "key2", "key3"}},
		{name: "Keys with spaces", input: " key1 , key2 , key3 ", expected: []string{"key1", "key2", "key3"}},
		{name: "Empty string", input: "", expected: []string{}},
		{name: "Trailing comma", input: "key1,", expected: []string{"key1", ""}},
		{name: "Only commas", input: ",,", expected: []string{"", "", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAPIKeys(tt.input))
		})
	}
}

func TestBuildApplication(t *testing.T) {
	api, _ := newPredictionServer(t, http.StatusOK, trainsResponse)
	cfg := testConfig()
	signCfg := testSignConfig(t, api.URL)

	coreApp, err := BuildApplication(cfg, signCfg, io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	assert.NotNil(t, coreApp.Logger)
	assert.NotNil(t, coreApp.Metrics)
	assert.NotNil(t, coreApp.History, "history defaults to an in-memory store")
	assert.Equal(t, cfg, coreApp.Config)
	require.NotNil(t, coreApp.Sign)
	assert.Equal(t, appconf.ModeTrains, coreApp.Sign.Mode().Name)
	assert.Len(t, coreApp.Board.Snapshot(), signCfg.Layout.NumSlots)
}

func TestBuildApplicationErrors(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		signCfg := testSignConfig(t, "http://localhost")
		signCfg.Modes = []string{"ferry"}

		_, err := BuildApplication(testConfig(), signCfg, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown mode "ferry"`)
	})

	t.Run("no modes", func(t *testing.T) {
		signCfg := testSignConfig(t, "http://localhost")
		signCfg.Modes = nil

		_, err := BuildApplication(testConfig(), signCfg, io.Discard)
		assert.ErrorContains(t, err, "no modes configured")
	})

	t.Run("missing output", func(t *testing.T) {
		_, err := BuildApplication(testConfig(), testSignConfig(t, "http://localhost"), nil)
		assert.Error(t, err)
	})
}

func TestBuildModesKeepsConfiguredOrder(t *testing.T) {
	signCfg := testSignConfig(t, "http://localhost")
	signCfg.Modes = []string{appconf.ModeRealtime, appconf.ModeBus, appconf.ModeTrains}
	signCfg.Realtime.Endpoint.BaseURL = "http://localhost/feed.pb"

	modes, err := buildModes(signCfg, nil)
	require.NoError(t, err)
	require.Len(t, modes, 3)
	assert.Equal(t, "realtime", modes[0].Endpoint.Name)
	assert.Equal(t, "bus", modes[1].Endpoint.Name)
	assert.Equal(t, "trains", modes[2].Endpoint.Name)
	assert.Equal(t, "*", modes[1].Filter)
}

func TestCreateServer(t *testing.T) {
	api, _ := newPredictionServer(t, http.StatusOK, trainsResponse)
	cfg := testConfig()
	cfg.Port = 8080

	coreApp, err := BuildApplication(cfg, testSignConfig(t, api.URL), io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	srv, restAPI := CreateServer(coreApp, cfg)
	defer restAPI.Shutdown()

	assert.Equal(t, ":8080", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.Equal(t, time.Minute, srv.IdleTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)

	for _, path := range []string{"/healthz", "/api/board.json", "/debug/?dataType=board"} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRunOnceDrawsBoard(t *testing.T) {
	api, calls := newPredictionServer(t, http.StatusOK, trainsResponse)
	var out bytes.Buffer

	coreApp, err := BuildApplication(testConfig(), testSignConfig(t, api.URL), &out)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	require.NoError(t, runOnce(context.Background(), coreApp))

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, out.String(), "Glenmont")
	assert.Contains(t, out.String(), "BRD")
	assert.Equal(t, 2, coreApp.Sign.Status().Visible)

	entries, err := coreApp.History.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Observed)
}

func TestRunOnceReportsUnavailableAPI(t *testing.T) {
	api, calls := newPredictionServer(t, http.StatusInternalServerError, "")

	coreApp, err := BuildApplication(testConfig(), testSignConfig(t, api.URL), io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	err = runOnce(context.Background(), coreApp)
	assert.ErrorContains(t, err, "prediction API unavailable")
	assert.Equal(t, int32(2), calls.Load(), "one attempt plus one retry")
	assert.False(t, coreApp.Sign.Status().Observed)
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	api, calls := newPredictionServer(t, http.StatusOK, trainsResponse)
	cfg := testConfig()
	cfg.Port = 0

	coreApp, err := BuildApplication(cfg, testSignConfig(t, api.URL), io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	srv, restAPI := CreateServer(coreApp, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, coreApp, srv, restAPI)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWithStatusServerDisabled(t *testing.T) {
	api, calls := newPredictionServer(t, http.StatusOK, trainsResponse)
	cfg := testConfig()
	cfg.Port = 0

	coreApp, err := BuildApplication(cfg, testSignConfig(t, api.URL), io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	srv, restAPI := statusServer(coreApp, cfg)
	assert.Nil(t, srv)
	assert.Nil(t, restAPI)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, coreApp, srv, restAPI)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatusServerEnabledForPositivePort(t *testing.T) {
	coreApp, err := BuildApplication(testConfig(), testSignConfig(t, "http://localhost"), io.Discard)
	require.NoError(t, err)
	defer closeApplication(coreApp)

	srv, restAPI := statusServer(coreApp, testConfig())
	require.NotNil(t, srv)
	defer restAPI.Shutdown()
	assert.Equal(t, ":4000", srv.Addr)
}

func TestParseFlagsAndOverrides(t *testing.T) {
	t.Run("config is required", func(t *testing.T) {
		fs := flag.NewFlagSet("metrosign", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, err := parseFlags(fs, []string{"-port", "9000"})
		assert.ErrorContains(t, err, "-config is required")
	})

	t.Run("only explicit flags override", func(t *testing.T) {
		fs := flag.NewFlagSet("metrosign", flag.ContinueOnError)
		f, err := parseFlags(fs, []string{"-config", "sign.yaml", "-env", "prod", "-api-keys", "a, b"})
		require.NoError(t, err)

		cfg := testConfig()
		require.NoError(t, applyOverrides(&cfg, f))
		assert.Equal(t, 4000, cfg.Port, "unset -port keeps the file value")
		assert.Equal(t, appconf.Production, cfg.Env)
		assert.Equal(t, []string{"a", "b"}, cfg.ApiKeys)
		assert.False(t, f.once)
	})

	t.Run("invalid environment", func(t *testing.T) {
		fs := flag.NewFlagSet("metrosign", flag.ContinueOnError)
		f, err := parseFlags(fs, []string{"-config", "sign.json", "-env", "staging"})
		require.NoError(t, err)

		cfg := testConfig()
		assert.Error(t, applyOverrides(&cfg, f))
	})
}
