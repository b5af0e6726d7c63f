// Package http exposes the REST API. Routing is chi; every authenticated
// route sits behind the bearer-token middleware.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"splitledger/internal/auth"
	"splitledger/internal/events"
	"splitledger/internal/log"
	"splitledger/internal/services"
	"splitledger/internal/storage"
)

type Server struct {
	http.Server

	ledger      *services.LedgerService
	auth        *auth.Service
	repo        *storage.SQLiteRepository
	broker      *events.Broker
	publisher   services.Publisher
	logger      *log.Logger
	pollTimeout time.Duration

	rateLimiter  *mutationLimiter
	metrics      *securityMetrics
	shutdownOnce sync.Once
}

// Options carries the server's collaborators.
type Options struct {
	Addr        string
	Ledger      *services.LedgerService
	Auth        *auth.Service
	Repo        *storage.SQLiteRepository
	Broker      *events.Broker
	Publisher   services.Publisher
	Logger      *log.Logger
	PollTimeout time.Duration
	RateLimit   int // mutating requests per client IP per minute
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	s := &Server{
		ledger:      opts.Ledger,
		auth:        opts.Auth,
		repo:        opts.Repo,
		broker:      opts.Broker,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		pollTimeout: opts.PollTimeout,
		metrics:     &securityMetrics{},
	}
	if s.pollTimeout <= 0 {
		s.pollTimeout = 25 * time.Second
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = 60
	}
	s.rateLimiter = newMutationLimiter(limit, time.Minute, s.metrics)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(log.Middleware(opts.Logger))
	r.Use(log.RequestLogger(opts.Logger))
	r.Use(s.withSecurity)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.auth.Middleware).Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/currencies", s.handleListCurrencies)

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", s.handleCreateGroup)
			r.Get("/", s.handleListGroups)

			r.Route("/{groupID}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Put("/", s.handleUpdateGroup)
				r.Delete("/", s.handleDeleteGroup)

				r.Post("/members", s.handleInviteMember)
				r.Post("/members/accept", s.handleAcceptInvite)
				r.Post("/members/reject", s.handleRejectInvite)
				r.Delete("/members/{userID}", s.handleRemoveMember)

				r.Route("/expenses", func(r chi.Router) {
					r.Get("/", s.handleListExpenses)
					r.Post("/", s.handleCreateExpense)
					r.Get("/formatted", s.handleFormattedExpenses)
					r.Get("/{expenseID}", s.handleGetExpense)
					r.Put("/{expenseID}", s.handleUpdateExpense)
					r.Delete("/{expenseID}", s.handleDeleteExpense)
				})

				r.Get("/balances", s.handleBalances)
				r.Post("/settle-up", s.handleSettleUp)
			})
		})

		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/read", s.handleMarkNotificationsRead)
		r.Get("/sync", s.handleSync)
	})

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// a long poll only writes after pollTimeout elapses, so the write
		// timeout must always leave room beyond it
		WriteTimeout:   s.pollTimeout + 30*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// withSecurity adds security headers and rate-limits mutating requests.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
