// Package server exposes workflow status and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusSource reports the current workflow status.
type StatusSource interface {
	Status() engine.Status
}

// NewHandler routes the observability endpoints:
//
//	GET /healthz          liveness
//	GET /metrics          Prometheus exposition
//	GET /status           every node
//	GET /status/{nodeID}  one node
func NewHandler(src StatusSource, rec *metrics.Recorder, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", rec.Handler())
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Status(), log)
	})
	r.Get("/status/{nodeID}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "nodeID")
		for _, ns := range src.Status().Nodes {
			if ns.ID == id {
				writeJSON(w, http.StatusOK, ns, log)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown node " + id}, log)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "status response encode failed")
	}
}

// Server serves a handler until its context is canceled.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Listen binds the listening socket and serves in the background. It returns
// the bound address, useful when addr used port 0.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(err, "http server stopped")
		}
	}()
	s.log.With("addr", ln.Addr().String()).Info("http server listening")
	return ln.Addr(), nil
}

// Shutdown stops the server, waiting up to the deadline of ctx for in-flight
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
