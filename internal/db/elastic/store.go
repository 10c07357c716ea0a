package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/prindex/internal/db"
)

// Compile-time check: Store implements db.SearchStore.
var _ db.SearchStore = (*Store)(nil)

// Client defaults.
const (
	DefaultRequestTimeout = 120 * time.Second
	DefaultMaxRetries     = 3
)

// Config holds connection parameters for an Elasticsearch store.
type Config struct {
	Endpoint       string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryOnTimeout bool

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Store implements db.SearchStore via the official Elasticsearch client.
type Store struct {
	client *elasticsearch.Client
}

// NewStore creates an Elasticsearch store.
// Endpoint and APIKey are mandatory; each attempt is bounded by RequestTimeout and
// failed attempts are retried up to MaxRetries times with exponential backoff.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	next := cfg.Transport
	if next == nil {
		next = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport := &deadlineTransport{next: next, timeout: cfg.RequestTimeout}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.Endpoint},
		APIKey:        cfg.APIKey,
		Transport:     transport,
		MaxRetries:    cfg.MaxRetries,
		DisableRetry:  cfg.MaxRetries == 0,
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		RetryOnError: func(_ *http.Request, err error) bool {
			return shouldRetry(err, cfg.RetryOnTimeout)
		},
		RetryBackoff: func(attempt int) time.Duration {
			if attempt == 1 {
				bo.Reset()
			}
			return bo.NextBackOff()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

// deadlineTransport bounds each attempt, body read included, by timeout.
type deadlineTransport struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (t *deadlineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	res, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err //nolint:wrapcheck // the client classifies transport errors itself
	}
	res.Body = &cancelOnClose{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

// cancelOnClose releases the attempt deadline once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err //nolint:wrapcheck // body close error is returned as is
}

// shouldRetry retries transport errors; timeouts only when retryOnTimeout is set.
func shouldRetry(err error, retryOnTimeout bool) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retryOnTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryOnTimeout
	}
	return true
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return &db.Error{Op: db.OpPing, Err: responseError(res)}
	}
	return nil
}

// apiError is the error envelope returned by Elasticsearch.
type apiError struct {
	Status int `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// responseError builds an error from a non-2xx response.
func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	var parsed apiError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Type != "" {
		return &StatusError{
			Status: res.StatusCode,
			Type:   parsed.Error.Type,
			Reason: parsed.Error.Reason,
		}
	}
	return &StatusError{Status: res.StatusCode, Reason: string(body)}
}

// StatusError is a non-2xx response from Elasticsearch.
type StatusError struct {
	Status int
	Type   string
	Reason string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Reason)
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
