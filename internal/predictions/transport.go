package predictions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/metrosign/metrosign/internal/logging"
)

// Transport is the network collaborator used by the Fetcher. Any returned
// error is retried unless it is a *RequestError or the context is done.
type Transport interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, url string, headers map[string]string) ([]byte, error)

func (f TransportFunc) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f(ctx, url, headers)
}

const defaultMaxBodySize = 5 * 1024 * 1024

// HTTPTransport fetches prediction documents over HTTP. Responses may be
// gzip encoded; the transport asks for gzip and decodes it itself.
type HTTPTransport struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxBodySize int64
	logger      *slog.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithRateLimit caps outbound requests to perSecond with the given burst.
// perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) TransportOption {
	return func(t *HTTPTransport) {
		if perSecond <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxBodySize bounds the decoded response size.
func WithMaxBodySize(n int64) TransportOption {
	return func(t *HTTPTransport) {
		t.maxBodySize = n
	}
}

// WithTransportLogger sets the logger used for close failures.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// NewHTTPTransport returns a transport with a dedicated client configured
// with explicit timeouts rather than http.DefaultClient.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:      newPredictionHTTPClient(),
		maxBodySize: defaultMaxBodySize,
		logger:      slog.Default().With(slog.String("component", "prediction_transport")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newPredictionHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 4
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: transport,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RequestError{URL: url, Err: err}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	// Setting Accept-Encoding ourselves disables net/http's transparent
	// decompression, so gzip bodies are decoded below.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute prediction request: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, t.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip response: %w", err)
		}
		defer logging.SafeCloseWithLogging(gz, t.logger, "gzip_reader")
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, t.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > t.maxBodySize {
		return nil, fmt.Errorf("prediction response exceeds size limit of %d bytes", t.maxBodySize)
	}
	return body, nil
}
