package predictions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosign/metrosign/internal/colors"
	"github.com/metrosign/metrosign/internal/metrics"
)

const trainsBody = `{"Trains":[
	{"Car":"8","Destination":"Glenmont","DestinationCode":"B11","Group":"2","Line":"RD","LocationCode":"A01","Min":"3"},
	{"Car":"6","Destination":"Shady Gr","DestinationCode":"A15","Group":"1","Line":"RD","LocationCode":"A01","Min":"5"},
	{"Car":null,"Destination":"No Passenger","Group":"2","Line":"No","LocationCode":"A01","Min":"---"},
	{"Car":"8","Destination":"Glenmont","Group":"2","Line":"RD","LocationCode":"A01","Min":"12"}
]}`

func staticTransport(body string, calls *int32) Transport {
	return TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return []byte(body), nil
	})
}

func failingTransport(calls *int32) Transport {
	return TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return nil, errors.New("connection refused")
	})
}

func testTrainEndpoint(retries uint) Endpoint {
	return TrainEndpoint(EndpointConfig{ID: "A01", APIKey: "secret", MaxRetries: retries}, TrainPolicy(Override{}))
}

func TestFetch_FiltersByGroup(t *testing.T) {
	var calls int32
	f := NewFetcher(staticTransport(trainsBody, &calls))

	records, err := f.Fetch(context.Background(), testTrainEndpoint(2), "2")

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
	require.Len(t, records, 3)
	assert.Equal(t, Record{LineColor: colors.Red, Destination: "Glenmont", Arrival: "3", Car: "8"}, records[0])
	assert.Equal(t, Record{LineColor: colors.DefaultMetroColor, Destination: NoPassenger, Arrival: "---", Car: NoCar}, records[1])
	assert.Equal(t, "12", records[2].Arrival)
}

func TestFetch_WildcardKeepsEverything(t *testing.T) {
	var calls int32
	f := NewFetcher(staticTransport(trainsBody, &calls))

	records, err := f.Fetch(context.Background(), testTrainEndpoint(2), Wildcard)

	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestFetch_NoMatchesIsEmptyNotNil(t *testing.T) {
	var calls int32
	f := NewFetcher(staticTransport(trainsBody, &calls))

	records, err := f.Fetch(context.Background(), testTrainEndpoint(2), "9")

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetch_MissingCollectionIsEmpty(t *testing.T) {
	var calls int32
	f := NewFetcher(staticTransport(`{"Message":"nothing here"}`, &calls))

	records, err := f.Fetch(context.Background(), testTrainEndpoint(2), Wildcard)

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, int32(1), calls)
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	for _, retries := range []uint{0, 1, 2, 5} {
		var calls int32
		m := metrics.New()
		f := NewFetcher(failingTransport(&calls), WithMetrics(m))

		records, err := f.Fetch(context.Background(), testTrainEndpoint(retries), "2")

		assert.Nil(t, records)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAPIUnavailable))
		assert.Equal(t, int32(retries+1), calls, "retries=%d", retries)

		var unavailable *APIUnavailableError
		require.True(t, errors.As(err, &unavailable))
		assert.Equal(t, "trains", unavailable.Endpoint)
		assert.Equal(t, int(retries+1), unavailable.Attempts)
		assert.Contains(t, err.Error(), "connection refused")

		assert.Equal(t, float64(retries+1), testutil.ToFloat64(m.FetchAttemptsTotal.WithLabelValues("trains", metrics.OutcomeRetryable)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.APIUnavailableTotal.WithLabelValues("trains")))
	}
}

func TestFetch_MalformedBodyIsRetried(t *testing.T) {
	var calls int32
	transport := TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return []byte("<html>gateway timeout</html>"), nil
		}
		return []byte(trainsBody), nil
	})
	f := NewFetcher(transport)

	records, err := f.Fetch(context.Background(), testTrainEndpoint(2), "1")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
	require.Len(t, records, 1)
	assert.Equal(t, "Shady Gr", records[0].Destination)
}

func TestFetch_MalformedEveryTimeGivesUp(t *testing.T) {
	var calls int32
	f := NewFetcher(staticTransport(`{"Trains":"not a list"}`, &calls))

	_, err := f.Fetch(context.Background(), testTrainEndpoint(1), "2")

	assert.ErrorIs(t, err, ErrAPIUnavailable)
	assert.Equal(t, int32(2), calls)
}

func TestFetch_SendsURLAndAPIKey(t *testing.T) {
	var gotURL string
	var gotHeaders map[string]string
	transport := TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		gotURL = url
		gotHeaders = headers
		return []byte(`{"Trains":[]}`), nil
	})

	_, err := NewFetcher(transport).Fetch(context.Background(), testTrainEndpoint(0), "2")

	require.NoError(t, err)
	assert.Equal(t, DefaultTrainURL+"A01", gotURL)
	assert.Equal(t, map[string]string{APIKeyHeader: "secret"}, gotHeaders)
}

func TestFetch_RequestErrorIsFatal(t *testing.T) {
	var calls int32
	transport := TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &RequestError{URL: url, Err: errors.New("bad url")}
	})

	_, err := NewFetcher(transport).Fetch(context.Background(), testTrainEndpoint(3), "2")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAPIUnavailable))
	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Equal(t, int32(1), calls)
}

func TestFetch_CancelledContextIsFatal(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(failingTransport(&calls)).Fetch(ctx, testTrainEndpoint(3), "2")

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrAPIUnavailable))
	assert.Equal(t, int32(0), calls)
}

func TestFetch_BackoffBetweenAttempts(t *testing.T) {
	var calls int32
	f := NewFetcher(failingTransport(&calls), WithBackoff(20*time.Millisecond))

	start := time.Now()
	_, err := f.Fetch(context.Background(), testTrainEndpoint(2), "2")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrAPIUnavailable)
	assert.Equal(t, int32(3), calls)
	// Two waits: none after the final attempt.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestFetch_BackoffHonoursCancellation(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	f := NewFetcher(failingTransport(&calls), WithBackoff(time.Hour))

	_, err := f.Fetch(ctx, testTrainEndpoint(2), "2")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls)
}

func TestFetch_BusEndpoint(t *testing.T) {
	body := `{"StopName":"Georgia Ave + Colesville Rd","Predictions":[
		{"DirectionNum":"0","DirectionText":"North to Silver Spring","Minutes":4,"RouteID":"70","VehicleID":"1"},
		{"DirectionNum":"1","DirectionText":"South to Archives","Minutes":6,"RouteID":"70","VehicleID":"2"},
		{"DirectionNum":"0","DirectionText":"NoPssenger","Minutes":9,"RouteID":"79","VehicleID":"3"}
	]}`
	var gotURL string
	transport := TransportFunc(func(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
		gotURL = url
		return []byte(body), nil
	})
	ep := BusEndpoint(EndpointConfig{ID: "1001344", MaxRetries: 2}, BusPolicy(colors.DefaultBusColor))

	records, err := NewFetcher(transport).Fetch(context.Background(), ep, "0")

	require.NoError(t, err)
	assert.Equal(t, DefaultBusURL+"1001344", gotURL)
	require.Len(t, records, 2)
	assert.Equal(t, Record{LineColor: colors.DefaultBusColor, Destination: "North to Silver Spring", Arrival: "4", Car: NoCar}, records[0])
	assert.Equal(t, NoPassenger, records[1].Destination)
}
