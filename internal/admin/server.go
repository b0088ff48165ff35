// Package admin serves the operator HTTP surface: health, Prometheus metrics
// and read/reload access to the module manager.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/module"
)

// Modules is the part of module.Manager the admin surface uses.
type Modules interface {
	Modules() []*module.Module
	Get(id string) (*module.Module, bool)
	Reload(ctx context.Context, id string) (module.Report, error)
	Registry() *cmd.Registry
}

// Config holds the HTTP settings.
type Config struct {
	Addr string
	// RequestLimit requests per Window and client IP; 0 disables limiting.
	RequestLimit int
	Window       time.Duration
	Log          zerolog.Logger
}

func DefaultConfig(addr string) Config {
	return Config{Addr: addr, RequestLimit: 60, Window: time.Minute, Log: zerolog.Nop()}
}

type Server struct {
	cfg     Config
	modules Modules
	srv     *http.Server
}

func New(cfg Config, modules Modules) *Server {
	s := &Server{cfg: cfg, modules: modules}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RequestLimit > 0 {
			r.Use(httprate.Limit(
				s.cfg.RequestLimit,
				s.cfg.Window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(s.cfg.Window.Seconds())))
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limit_exceeded"})
				}),
			))
		}
		r.Get("/modules", s.listModules)
		r.Get("/modules/{id}", s.getModule)
		r.Post("/modules/{id}/reload", s.reloadModule)
		r.Get("/commands", s.listCommands)
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.cfg.Log.Info().Str("event", "admin.listening").Str("addr", s.cfg.Addr).Msg("admin server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	<-errCh
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type commandInfo struct {
	Key    string `json:"key"`
	Module string `json:"module"`
	Group  string `json:"group,omitempty"`
	Live   bool   `json:"live"`
}

func (s *Server) listModules(w http.ResponseWriter, _ *http.Request) {
	mods := s.modules.Modules()
	out := make([]module.Info, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.modules.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "module_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, m.Info())
}

func (s *Server) reloadModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := s.modules.Reload(r.Context(), id)
	switch {
	case errors.Is(err, module.ErrNotTracked):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "module_not_found"})
		return
	case errors.Is(err, module.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: "module_busy", Detail: err.Error()})
		return
	case err != nil:
		s.cfg.Log.Warn().Err(err).Str("event", "admin.reload_failed").Str("module_id", id).Msg("module reload failed")
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "reload_failed", Detail: err.Error()})
		return
	}
	if m, ok := s.modules.Get(rep.ID); ok {
		writeJSON(w, http.StatusOK, m.Info())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": rep.ID, "state": rep.State.String()})
}

func (s *Server) listCommands(w http.ResponseWriter, _ *http.Request) {
	reg := s.modules.Registry()
	all := reg.All()
	out := make([]commandInfo, 0, len(all))
	for _, d := range all {
		out = append(out, commandInfo{
			Key:    d.Key().String(),
			Module: d.Module,
			Group:  d.Group,
			Live:   reg.IsLive(d.Kind, d.Name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
