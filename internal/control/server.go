// Package control exposes the local HTTP surface for health checks and
// operator-triggered immediate runs.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smartcare/schedd/internal/httputil"
)

// Config holds the listener settings. Token guards /run_immediate; an empty
// token disables the check, which is only sane on a loopback bind.
type Config struct {
	Host  string
	Port  int
	Token string
}

// Runner accepts immediate-run requests. *schedule.Service satisfies this.
type Runner interface {
	QueueImmediate(id int64)
}

// Server is the control-plane HTTP server. It never touches the store or
// the senders: /run_immediate only hands an ID to the poll loop, which logs
// unknown IDs when it drains them.
type Server struct {
	cfg     Config
	runner  Runner
	logger  *slog.Logger
	router  chi.Router
	httpSrv *http.Server
	ln      net.Listener
	started time.Time
}

// New builds the server and its routes.
func New(cfg Config, runner Runner, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/run_immediate", s.handleRunImmediate)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "not_found")
	})
	s.router = r
	return s
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener and serves in the background. Port 0 binds an
// ephemeral port; Addr reports the bound address.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.httpSrv = &http.Server{Handler: s.router}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server failed", "error", err)
		}
	}()
	s.logger.Info("control server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(s.started).Seconds())
	httputil.WriteJSON(w, http.StatusOK, httputil.Envelope{OK: true, Uptime: &uptime})
}

func (s *Server) handleRunImmediate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}

	raw := r.URL.Query().Get("job_id")
	if raw == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing_job_id")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_job_id")
		return
	}

	s.runner.QueueImmediate(id)
	httputil.WriteJSON(w, http.StatusOK, httputil.Envelope{OK: true, Queued: &id})
}

// authorized checks the shared token against the token query parameter or
// the X-Token header.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.cfg.Token {
		return true
	}
	return r.Header.Get("X-Token") == s.cfg.Token
}
