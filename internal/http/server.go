package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"ledger/internal/auth"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Options wires the server to its collaborators. Every field except
// RateLimit and Logger is required.
type Options struct {
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	Ledger     *services.LedgerService
	Auth       auth.Authenticator
	// Ready reports whether storage is reachable.
	Ready     func(context.Context) error
	RateLimit ratelimit.Config
	Logger    *log.Logger
}

type Server struct {
	http.Server

	expenses   *services.ExpenseService
	categories *services.CategoryService
	ledger     *services.LedgerService
	auth       auth.Authenticator
	ready      func(context.Context) error

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	startedAt   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		expenses:    opts.Expenses,
		categories:  opts.Categories,
		ledger:      opts.Ledger,
		auth:        opts.Auth,
		ready:       opts.Ready,
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		detector:    security.NewDetector(),
		startedAt:   time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /api/v1/expenses", s.api(s.handleCreateExpense))
	mux.Handle("GET /api/v1/expenses", s.api(s.handleListExpenses))
	mux.Handle("GET /api/v1/expenses/{id}", s.api(s.handleGetExpense))
	mux.Handle("PUT /api/v1/expenses/{id}", s.api(s.handleUpdateExpense))
	mux.Handle("PATCH /api/v1/expenses/{id}", s.api(s.handleUpdateExpense))
	mux.Handle("DELETE /api/v1/expenses/{id}", s.api(s.handleDeleteExpense))

	mux.Handle("GET /api/v1/categories", s.api(s.handleListCategories))
	mux.Handle("POST /api/v1/categories", s.api(s.handleCreateCategory))

	mux.Handle("GET /api/v1/dashboard/summary", s.api(s.handleSummary))
	mux.Handle("GET /api/v1/dashboard/monthly", s.api(s.handleMonthly))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var h http.Handler = mux
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = log.Middleware(logger, trace.GetRequestID)(h)
	h = trace.Recover(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// api authenticates the caller and applies the per-user rate limit.
func (s *Server) api(next http.HandlerFunc) http.Handler {
	limited := s.rateLimiter.Middleware(
		func(r *http.Request) string {
			if u, ok := auth.UserFrom(r.Context()); ok {
				return "user:" + u
			}
			return "ip:" + s.detector.ClientIP(r)
		},
		func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", nil).Write(w)
		},
	)(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), auth.BearerToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrMissingCredential) && !errors.Is(err, auth.ErrInvalidCredential) {
				s.writeError(w, r, err)
				return
			}
			UnauthorizedError("authentication required").Write(w)
			return
		}
		ctx := auth.WithUser(r.Context(), user)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, user))
		limited.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeError maps err to a response and logs unexpected failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorFromDomain(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithRequest(r.Method, r.URL.Path).WithError(err)...)
	}
	resp.Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func userID(r *http.Request) string {
	u, _ := auth.UserFrom(r.Context())
	return u
}
