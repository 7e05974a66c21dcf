package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"
)

type key int

const (
	requestIDKey key = 0

	// MetricsPath is the path of the Prometheus handler.
	MetricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

// HTTP is the server of a development network.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	maxConns   int
	ln         net.Listener
	quit       chan struct{}
}

// Option is the type of option to set some fields of the server.
type Option func(*HTTP)

// WithMaxConns limits the number of simultaneous connections.
func WithMaxConns(n int) Option {
	return func(h *HTTP) {
		h.maxConns = n
	}
}

// WithLogger sets the logger of the server.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// NewHTTP creates a new server for the address. The metrics of the
// components are served on /metrics.
func NewHTTP(listenAddr string, opts ...Option) *HTTP {
	h := &HTTP{
		mux:        http.NewServeMux(),
		logger:     vault.Logger.With().Str("role", "http proxy").Logger(),
		listenAddr: listenAddr,
		quit:       make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.server = &http.Server{
		Handler:           tracing(nextRequestID)(logging(h.logger)(h.mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.mux.Handle(MetricsPath, metricsHandler(h.logger))

	return h
}

// Listen implements proxy.Proxy. It can be called again once Stop returned.
func (h *HTTP) Listen() error {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err)
	}

	if h.maxConns > 0 {
		ln = netutil.LimitListener(ln, h.maxConns)
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-h.quit
		h.logger.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)

		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Err(err).Msg("could not gracefully shutdown the server")
		}
	}()

	h.logger.Info().Msgf("server is ready to handle requests at http://%s", ln.Addr())

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.quit <- struct{}{}
		<-done

		return xerrors.Errorf("failed to serve: %v", err)
	}

	<-done

	h.Lock()
	h.ln = nil
	h.Unlock()

	h.logger.Info().Msg("server stopped")

	return nil
}

// Stop implements proxy.Proxy.
func (h *HTTP) Stop() {
	select {
	case h.quit <- struct{}{}:
	default:
	}
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// Mount implements proxy.Proxy.
func (h *HTTP) Mount(prefix string, handler http.Handler) {
	prefix = "/" + strings.Trim(prefix, "/")

	h.mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))
}

// metricsHandler returns the handler of the collectors registered by the
// components. A collector that cannot be registered is skipped.
func metricsHandler(logger zerolog.Logger) http.Handler {
	registry := prometheus.NewRegistry()

	for _, c := range vault.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to register collector")
		}
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func nextRequestID() string {
	return xid.New().String()
}

// logging is a utility function that logs the http server events
func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			defer func() {
				requestID, ok := r.Context().Value(requestIDKey).(string)
				if !ok {
					requestID = "unknown"
				}

				logger.Debug().Str("requestID", requestID).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Str("remoteAddr", r.RemoteAddr).
					Dur("duration", time.Since(start)).
					Str("agent", r.UserAgent()).Msg("request")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// tracing is a utility function that adds header tracing
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = nextRequestID()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
