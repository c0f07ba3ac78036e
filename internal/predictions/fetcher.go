package predictions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metrosign/metrosign/internal/logging"
	"github.com/metrosign/metrosign/internal/metrics"
)

type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetryable
	attemptFatal
)

func (o attemptOutcome) String() string {
	switch o {
	case attemptOK:
		return metrics.OutcomeSuccess
	case attemptRetryable:
		return metrics.OutcomeRetryable
	default:
		return metrics.OutcomeFatal
	}
}

type attemptResult struct {
	outcome attemptOutcome
	entries []RawEntry
	err     error
}

// Fetcher runs the bounded retry loop against an Endpoint. A Fetcher holds no
// per-call state and may be shared between endpoints.
type Fetcher struct {
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	backoff   time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets the logger. Without one the logger carried by the fetch
// context is used.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithMetrics records attempts and give-ups.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithBackoff waits d between a failed attempt and the next one.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.backoff = d
	}
}

// NewFetcher builds a Fetcher around transport.
func NewFetcher(transport Transport, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		transport: transport,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs up to ep.MaxRetries+1 attempts. On success it returns the
// filtered, normalized records; the slice is non-nil even when nothing
// matched. Once every attempt has failed it returns an *APIUnavailableError,
// which matches ErrAPIUnavailable. A cancelled context is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, ep Endpoint, filter string) ([]Record, error) {
	logger := f.loggerFor(ctx).With(slog.String("endpoint", ep.Name))
	start := time.Now()

	var last error
	attempts := 0
	for attempt := uint(0); attempt <= ep.MaxRetries; attempt++ {
		attempts++
		result := f.attempt(ctx, ep)
		f.metrics.ObserveAttempt(ep.Name, result.outcome.String())

		switch result.outcome {
		case attemptOK:
			records := ep.collect(result.entries, filter)
			logger.Debug("received prediction response",
				slog.Int("entries", len(result.entries)),
				slog.Int("records", len(records)),
				slog.Int("attempt", attempts))
			f.metrics.ObserveFetch(ep.Name, time.Since(start), false)
			return records, nil

		case attemptFatal:
			f.metrics.ObserveFetch(ep.Name, time.Since(start), false)
			return nil, result.err

		case attemptRetryable:
			last = result.err
			logger.Warn("prediction fetch attempt failed, reattempting",
				slog.Any("error", result.err),
				slog.Int("attempt", attempts),
				slog.Uint64("max_retries", uint64(ep.MaxRetries)))
			if attempt < ep.MaxRetries && f.backoff > 0 {
				if err := f.wait(ctx); err != nil {
					f.metrics.ObserveFetch(ep.Name, time.Since(start), false)
					return nil, err
				}
			}
		}
	}

	f.metrics.ObserveFetch(ep.Name, time.Since(start), true)
	err := &APIUnavailableError{Endpoint: ep.Name, Attempts: attempts, Err: last}
	logging.LogError(logger, "prediction API unavailable, retries exhausted", err)
	return nil, err
}

func (f *Fetcher) attempt(ctx context.Context, ep Endpoint) attemptResult {
	if err := ctx.Err(); err != nil {
		return attemptResult{outcome: attemptFatal, err: err}
	}

	body, err := f.transport.Fetch(ctx, ep.URL, ep.Headers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{outcome: attemptFatal, err: ctxErr}
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return attemptResult{outcome: attemptFatal, err: err}
		}
		return attemptResult{outcome: attemptRetryable, err: err}
	}

	entries, err := ep.Decoder.Decode(body)
	if err != nil {
		return attemptResult{outcome: attemptRetryable, err: fmt.Errorf("%s response: %w", ep.Name, err)}
	}
	return attemptResult{outcome: attemptOK, entries: entries}
}

func (f *Fetcher) wait(ctx context.Context) error {
	timer := time.NewTimer(f.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) loggerFor(ctx context.Context) *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return logging.FromContext(ctx)
}
