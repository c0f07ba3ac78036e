package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/metrosign/metrosign/internal/app"
	"github.com/metrosign/metrosign/internal/appconf"
	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/clock"
	"github.com/metrosign/metrosign/internal/display"
	"github.com/metrosign/metrosign/internal/history"
	"github.com/metrosign/metrosign/internal/metrics"
	"github.com/metrosign/metrosign/internal/predictions"
	"github.com/metrosign/metrosign/internal/sign"
)

const testAPIKey = "test-key"

type stubFetcher struct {
	records []predictions.Record
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, ep predictions.Endpoint, filter string) ([]predictions.Record, error) {
	return f.records, f.err
}

func testTime() time.Time {
	return time.Date(2025, 6, 2, 17, 45, 0, 0, time.UTC)
}

// createTestApplication builds an application around a two-mode sign backed
// by an in-memory panel and history store.
func createTestApplication(t *testing.T, fetcher sign.Fetcher) *app.Application {
	t.Helper()

	mock := clock.NewMockClock(testTime())
	panel := display.NewPanel(3)
	b, err := board.New(panel, board.DefaultLayout(), nil)
	require.NoError(t, err)

	store, err := history.Open(context.Background(), history.Config{DBPath: history.MemoryPath, Clock: mock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	s, err := sign.New(fetcher, b, []sign.Mode{
		{Name: "trains", Endpoint: predictions.Endpoint{Name: "trains"}, Filter: "*"},
		{Name: "bus", Endpoint: predictions.Endpoint{Name: "bus"}, Filter: "*"},
	}, sign.WithClock(mock), sign.WithRecorder(store), sign.WithMetrics(m))
	require.NoError(t, err)

	return &app.Application{
		Config: appconf.Config{
			Env:       appconf.Test,
			ApiKeys:   []string{testAPIKey},
			RateLimit: 100,
		},
		SignConfig: appconf.SignConfig{
			HeadingText:     appconf.DefaultHeadingText,
			RefreshInterval: sign.DefaultRefreshInterval,
		},
		Clock:      mock,
		Metrics:    m,
		Sign:       s,
		Board:      panel,
		History:    store,
	}
}

func createTestServer(t *testing.T, application *app.Application) *httptest.Server {
	t.Helper()
	api := NewRestAPI(application)
	t.Cleanup(api.Shutdown)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)
	return server
}
