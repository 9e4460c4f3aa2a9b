package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/enforcer"
	"veritas-hq/warden/pkg/executor"
	"veritas-hq/warden/pkg/killswitch"
	"veritas-hq/warden/pkg/registry"
	"veritas-hq/warden/pkg/security/auth"
	"veritas-hq/warden/pkg/telemetry/events"
	"veritas-hq/warden/pkg/telemetry/metrics"
)

// Config contains configuration for the Server.
type Config struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string

	// ReadTimeout, WriteTimeout, and IdleTimeout configure the underlying
	// http.Server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// MaxHeaderBytes caps request header size.
	MaxHeaderBytes int

	// MetricsPath is where the Prometheus handler mounts. Empty disables
	// the endpoint.
	MetricsPath string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// PolicySet is the policy manager surface the server exposes.
type PolicySet interface {
	Count() int
	Reload() error
}

// Deps bundles the components the API fronts.
type Deps struct {
	Executor   *executor.Executor
	KillSwitch *killswitch.Switch
	Registry   *registry.Registry
	Approvals  *approval.Manager
	Trail      *audit.Trail
	Enforcer   *enforcer.Enforcer
	Events     *events.Store
	Policies   PolicySet

	// Metrics is optional; nil disables the scrape endpoint.
	Metrics *metrics.Collector

	// Auth is optional; nil serves the API unauthenticated.
	Auth *auth.Middleware
}

// Server is Warden's HTTP API server.
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a Server.
func NewServer(config Config, deps Deps) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		config: config,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
}

// Start runs the server and blocks until the context is cancelled, a
// shutdown signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	tlsEnabled := s.config.TLSCertFile != "" && s.config.TLSKeyFile != ""

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting",
			"address", s.config.ListenAddress,
			"tls_enabled", tlsEnabled,
		)

		var err error
		if tlsEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("shutdown error", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("api server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler builds the full route table. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Ingress
	mux.HandleFunc("POST /v1/requests", s.handleSubmit)

	// Kill switch
	mux.HandleFunc("GET /v1/killswitch", s.handleKillSwitchState)
	mux.HandleFunc("POST /v1/killswitch/activate", s.handleKillSwitchActivate)
	mux.HandleFunc("POST /v1/killswitch/deactivate", s.handleKillSwitchDeactivate)

	// Agent registry
	mux.HandleFunc("POST /v1/agents", s.handleAgentRegister)
	mux.HandleFunc("GET /v1/agents", s.handleAgentList)
	mux.HandleFunc("GET /v1/agents/{id}", s.handleAgentGet)
	mux.HandleFunc("PATCH /v1/agents/{id}", s.handleAgentUpdate)
	mux.HandleFunc("POST /v1/agents/{id}/deactivate", s.handleAgentDeactivate)
	mux.HandleFunc("POST /v1/agents/{id}/activate", s.handleAgentActivate)
	mux.HandleFunc("DELETE /v1/agents/{id}", s.handleAgentDelete)

	// Approvals
	mux.HandleFunc("GET /v1/approvals", s.handleApprovalsPending)
	mux.HandleFunc("GET /v1/approvals/{id}", s.handleApprovalGet)
	mux.HandleFunc("POST /v1/approvals/{id}/approve", s.handleApprovalApprove)
	mux.HandleFunc("POST /v1/approvals/{id}/reject", s.handleApprovalReject)
	mux.HandleFunc("POST /v1/approvals/{id}/cancel", s.handleApprovalCancel)

	// Policies
	mux.HandleFunc("GET /v1/policies", s.handlePolicyStatus)
	mux.HandleFunc("POST /v1/policies/reload", s.handlePolicyReload)

	// Audit
	mux.HandleFunc("GET /v1/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("GET /v1/audit/export", s.handleAuditExport)
	mux.HandleFunc("GET /v1/audit/custody", s.handleAuditCustody)

	// Observability
	mux.HandleFunc("GET /v1/events", s.handleEventsQuery)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	var protected http.Handler = mux
	if s.deps.Auth != nil {
		protected = s.deps.Auth.Handle(mux)
	}

	// The scrape and health endpoints stay outside auth so probes and
	// Prometheus need no credentials.
	outer := http.NewServeMux()
	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		outer.Handle("GET "+s.config.MetricsPath, s.deps.Metrics.Handler())
	}
	outer.HandleFunc("GET /healthz", s.handleHealth)
	outer.HandleFunc("GET /readyz", s.handleHealth)
	outer.Handle("/", protected)

	return s.withRecovery(outer)
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					"panic", fmt.Sprintf("%v", rec),
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
