// Package server exposes the engine to collaborators over HTTP and
// WebSocket. The surface is deliberately thin: decode, call the engine, map
// sentinel errors to status codes.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/engine"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/internal/observability"
	"github.com/landloop/territory-engine/model"
)

// Server hosts the engine's HTTP and WebSocket endpoints.
type Server struct {
	cfg     config.Server
	eng     *engine.Engine
	log     logging.Logger
	metrics *observability.EngineCollector
	router  *mux.Router
	http    *http.Server
}

// New builds the server and its route table. A nil logger is replaced with a
// noop logger; a nil collector disables the /metrics endpoint.
func New(cfg config.Server, eng *engine.Engine, log logging.Logger, metrics *observability.EngineCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		cfg:     cfg,
		eng:     eng,
		log:     log,
		metrics: metrics,
		router:  mux.NewRouter(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.observe)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{owner}", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{owner}", s.handleCancel).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{owner}/fixes", s.handleIngest).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{owner}/close", s.handleClose).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{owner}/stream", s.handleStream).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot/refresh", s.handleRefresh).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the route table for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background; errors other than a clean shutdown are
// reported on the returned channel.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		s.log.Info(context.Background(), "http server listening", logging.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	return errs
}

// Stop drains in-flight requests within the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// observe annotates the request context with a request id and records one
// metrics sample per handled request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, log := logging.WithRequestLogger(r.Context(), s.log)
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(sw, r.WithContext(ctx))

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveHTTP(route, r.Method, sw.code, time.Since(started))
		log.Debug(ctx, "request handled",
			logging.String("route", route),
			logging.String("method", r.Method),
			logging.Int("code", sw.code),
			logging.Duration("took", time.Since(started)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the WebSocket upgrade
// works behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// wireFix is the boundary shape of a position reading. Positions arrive in
// a named reference frame and are normalized to the canonical frame before
// anything downstream sees them; canonical coordinates never round-trip
// back through a display frame.
type wireFix struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m"`
	Time      time.Time `json:"time"`
	// Frame is "wgs84" (default) or "gcj02".
	Frame string `json:"frame,omitempty"`
}

var errUnknownFrame = errors.New("unknown coordinate frame")

func (f wireFix) canonical() (model.Fix, error) {
	p := geo.Point{Lat: f.Lat, Lon: f.Lon}
	switch f.Frame {
	case "", "wgs84":
	case "gcj02":
		p = geo.ToCanonical(p)
	default:
		return model.Fix{}, errUnknownFrame
	}
	return model.Fix{Lat: p.Lat, Lon: p.Lon, AccuracyM: f.AccuracyM, Time: f.Time}, nil
}

type startRequest struct {
	OwnerID string  `json:"owner_id"`
	Fix     wireFix `json:"fix"`
}

type startResponse struct {
	Status engine.Status         `json:"status"`
	Result model.CollisionResult `json:"result"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "invalid start request")
		return
	}
	fix, err := req.Fix.canonical()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, res, err := s.eng.StartSession(r.Context(), req.OwnerID, fix)
	switch {
	case errors.Is(err, engine.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrStartInViolation):
		writeJSON(w, http.StatusUnprocessableEntity, startResponse{Result: res})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, startResponse{Status: status, Result: res})
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var wf wireFix
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid fix")
		return
	}
	fix, err := wf.canonical()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.eng.IngestFix(r.Context(), mux.Vars(r)["owner"], fix)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	status, err := s.eng.SessionState(mux.Vars(r)["owner"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.CancelSession(r.Context(), mux.Vars(r)["owner"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closeResponse struct {
	Verdict     model.ClaimVerdict `json:"verdict"`
	TerritoryID string             `json:"territory_id,omitempty"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	verdict, territoryID, err := s.eng.CloseAndValidate(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		if errors.Is(err, engine.ErrNoSession) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		// Validation passed but persistence failed; the session survives
		// and the close can be retried.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, closeResponse{Verdict: verdict, TerritoryID: territoryID})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.RefreshSnapshot(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNoSession) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
