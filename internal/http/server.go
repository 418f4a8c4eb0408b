package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"saldo/internal/access"
	"saldo/internal/identity"
	applog "saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/middleware/security"
	"saldo/internal/middleware/trace"
	"saldo/internal/services"
)

const readinessTimeout = 2 * time.Second

// Authenticator is the identity provider as seen by the HTTP layer.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string, client identity.ClientInfo) (identity.Session, error)
	Authenticate(ctx context.Context, token string) (identity.Identity, error)
	SignOut(ctx context.Context, id identity.Identity, scope identity.LogoutScope) (int64, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventStats exposes the event publisher counters.
type EventStats interface {
	Stats() (published, failed int64)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Identity     Authenticator
	Policy       *access.Policy
	Profiles     *services.ProfileService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Summary      *services.SummaryService
	Store        Pinger
	Events       EventStats // nil when events are disabled
}

// Options tune the middleware chain.
type Options struct {
	Logger             *applog.Logger
	CORSAllowedOrigin  string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server

	identity     Authenticator
	policy       *access.Policy
	profiles     *services.ProfileService
	categories   *services.CategoryService
	transactions *services.TransactionService
	summary      *services.SummaryService
	store        Pinger
	events       EventStats

	detector *security.Detector
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.CORSAllowedOrigin == "" {
		opts.CORSAllowedOrigin = "*"
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("add trusted proxy: %w", err)
		}
	}

	s := &Server{
		identity:     deps.Identity,
		policy:       deps.Policy,
		profiles:     deps.Profiles,
		categories:   deps.Categories,
		transactions: deps.Transactions,
		summary:      deps.Summary,
		store:        deps.Store,
		events:       deps.Events,
		detector:     detector,
		tracer:       trace.NewMiddleware(detector.ExtractClientIP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	handler := chain(mux,
		applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP)),
		s.tracer.Middleware,
		recoverPanics,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		detector.Middleware,
		security.CORS(opts.CORSAllowedOrigin),
		s.limiter.Middleware(detector.ExtractClientIP, isCredentialRequest, func(w http.ResponseWriter, r *http.Request) {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).
				WarnContext(r.Context(), "Rate limit exceeded", "client_ip", detector.ExtractClientIP(r), "path", r.URL.Path)
			TooManyRequestsError().Write(w)
		}),
	)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.Handle("/login", methodHandlers{
		http.MethodPost: s.handleLogin,
	})
	mux.Handle("/me", methodHandlers{
		http.MethodGet: s.requireAuth(s.handleMe),
	})
	mux.Handle("/logout", methodHandlers{
		http.MethodDelete: s.requireAuth(s.handleLogout),
	})
	mux.Handle("/users", methodHandlers{
		http.MethodGet:  s.requireAuth(s.handleGetUsers),
		http.MethodPost: s.handleCreateUser,
		http.MethodPut:  s.requireAuth(s.handleUpdateUser),
	})
	mux.Handle("/admin", methodHandlers{
		http.MethodPost: s.requireAuth(s.handleAdmin),
	})

	mux.Handle("/categories", methodHandlers{
		http.MethodGet:  s.requireAuth(s.handleListCategories),
		http.MethodPost: s.requireAuth(s.handleCreateCategory),
	})
	mux.Handle("/categories/{id}", methodHandlers{
		http.MethodGet:    s.requireAuth(s.handleGetCategory),
		http.MethodPut:    s.requireAuth(s.handleUpdateCategory),
		http.MethodPatch:  s.requireAuth(s.handleUpdateCategory),
		http.MethodDelete: s.requireAuth(s.handleDeleteCategory),
	})

	mux.Handle("/transactions", methodHandlers{
		http.MethodGet:  s.requireAuth(s.handleListTransactions),
		http.MethodPost: s.requireAuth(s.handleCreateTransaction),
	})
	mux.Handle("/transactions/{id}", methodHandlers{
		http.MethodGet:    s.requireAuth(s.handleGetTransaction),
		http.MethodPut:    s.requireAuth(s.handleUpdateTransaction),
		http.MethodDelete: s.requireAuth(s.handleDeleteTransaction),
	})
	mux.Handle("/transactions/{id}/pay", methodHandlers{
		http.MethodPatch: s.requireAuth(s.handleMarkPaid),
	})
	mux.Handle("/transactions/{id}/unpay", methodHandlers{
		http.MethodPatch: s.requireAuth(s.handleMarkUnpaid),
	})
	mux.Handle("/transactions/{id}/toggle-payment", methodHandlers{
		http.MethodPatch: s.requireAuth(s.handleTogglePaid),
	})

	mux.Handle("/summary", methodHandlers{
		http.MethodGet: s.requireAuth(s.handleSummary),
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
}

// Shutdown stops background loops and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// methodHandlers dispatches on the request method and answers anything else
// with a JSON 405 listing the allowed methods.
type methodHandlers map[string]http.HandlerFunc

func (m methodHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.Method]; ok {
		h(w, r)
		return
	}
	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	MethodNotAllowedError(allowed...).Write(w)
}

// chain applies middleware so that the first one listed is the outermost.
func chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

func isCredentialRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && (r.URL.Path == "/login" || r.URL.Path == "/users")
}

// recoverPanics turns a handler panic into a 500 error envelope.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Panic recovered",
				"panic", fmt.Sprint(rec),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()))
			ErrorResponse(http.StatusInternalServerError, internalErrorMessage).Write(w)
		}()
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics writes the process counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	detection := s.detector.GetMetrics()

	counters := map[string]int64{
		"saldo_http_requests_total":        requests.TotalRequests,
		"saldo_http_client_errors_total":   requests.ClientErrors,
		"saldo_http_server_errors_total":   requests.ServerErrors,
		"saldo_http_last_response_micros":  requests.AverageResponseTime,
		"saldo_rate_limit_hits_total":      limits.TotalHits,
		"saldo_rate_limit_clients":         limits.ClientCount,
		"saldo_suspicious_requests_total":  detection.SuspiciousRequests,
		"saldo_invalid_forwarded_ip_total": detection.InvalidIPAttempts,
	}
	if s.events != nil {
		published, failed := s.events.Stats()
		counters["saldo_events_published_total"] = published
		counters["saldo_events_failed_total"] = failed
	}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s %d\n", name, counters[name])
	}
}
