package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var scrapeRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metrics_http_requests_total",
		Help:      "Requests served by the metrics endpoint",
	},
	[]string{"path", "status"},
)

var registerServerOnce sync.Once

// Server exposes /metrics and /healthz while a pipeline component runs.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// NewRouter builds the metrics router over gatherer.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(countRequests)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve starts the metrics server on port in the background.
// Port 0 disables it and returns a nil server; Shutdown on nil is a no-op.
func Serve(port int, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if port == 0 {
		return nil, nil
	}

	registerServerOnce.Do(func() {
		prometheus.MustRegister(scrapeRequestsTotal)
	})

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, err //nolint:wrapcheck // caller adds context
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	go func() {
		logger.Info("Metrics server started", zap.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx) //nolint:wrapcheck // shutdown error is logged by caller
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = "unknown"
		}
		scrapeRequestsTotal.WithLabelValues(path, strconv.Itoa(ww.status)).Inc()
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // delegating to underlying ResponseWriter
}
