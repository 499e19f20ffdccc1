// Package http exposes the risk service over REST and websockets: current
// metrics, on-demand assessment, scenario and policy simulation, cascade
// analysis, and the live prediction stream.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/config"
	"github.com/cityscope/urbanrisk/internal/inference"
	"github.com/cityscope/urbanrisk/internal/policy"
	"github.com/cityscope/urbanrisk/internal/realtime"
	"github.com/cityscope/urbanrisk/internal/warehouse"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server is the HTTP front of the risk service.
type Server struct {
	router  *mux.Router
	server  *http.Server
	cfg     config.ServerConfig
	handler *Handlers
}

// NewServer wires routes, middleware and handlers.
func NewServer(cfg config.Config, engine *inference.Engine, pol *policy.Engine,
	manager *realtime.Manager, hub *realtime.Hub, source *warehouse.Source) *Server {

	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg.Server,
		handler: &Handlers{
			engine:   engine,
			policy:   pol,
			manager:  manager,
			hub:      hub,
			source:   source,
			locality: "mumbai",
		},
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.handler.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Query endpoints get a request deadline; the websocket routes below
	// stay on the root router because their connections are long-lived.
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/current", s.handler.CurrentMetrics).Methods("GET")
	api.HandleFunc("/risk", s.handler.RiskAssessment).Methods("GET")
	api.HandleFunc("/assess", s.handler.Assess).Methods("POST")
	api.HandleFunc("/scenario/presets", s.handler.Presets).Methods("GET")
	api.HandleFunc("/scenario/simulate", s.handler.Simulate).Methods("POST")
	api.HandleFunc("/scenario/policy", s.handler.Policy).Methods("POST")
	api.HandleFunc("/cascade", s.handler.Cascade).Methods("POST")

	// Websocket endpoints negotiate their own content type.
	s.router.HandleFunc("/ws/predictions", s.handler.PredictionStream)
	s.router.HandleFunc("/ws/ingest", s.handler.Ingest)

	s.router.NotFoundHandler = http.HandlerFunc(s.handler.NotFound)
}

// Router exposes the configured router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Std())
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures the response status for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
