package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"bundle-deployer/internal/artifact"
	"bundle-deployer/internal/config"
	"bundle-deployer/internal/database"
	"bundle-deployer/internal/deployer"
	"bundle-deployer/internal/eventlog"
	"bundle-deployer/internal/handlers"
	"bundle-deployer/internal/logger"
	nr "bundle-deployer/internal/newrelic"

	"github.com/gorilla/mux"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config  *config.Config
	db      *sql.DB
	nrApp   *newrelic.Application
	handler *handlers.Handler
	router  *mux.Router
	http    *http.Server
	logger  *logrus.Entry
}

func NewServer(cfg *config.Config, db *sql.DB, nrApp *newrelic.Application, fetcher artifact.Fetcher) *Server {
	logger.Initialize()
	serverLogger := logger.WithModule("server")

	orchestrator := deployer.NewOrchestrator(deployer.Options{
		Fetcher:  fetcher,
		Events:   eventlog.New(),
		Recorder: database.NewRecorder(db),
		APM:      nrApp,
		WorkDir:  cfg.WorkDir,
	})

	s := &Server{
		config:  cfg,
		db:      db,
		nrApp:   nrApp,
		handler: handlers.NewHandler(db, orchestrator),
		router:  mux.NewRouter(),
		logger:  serverLogger,
	}

	s.setupRoutes()
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", nr.Wrap(s.nrApp, "/health", s.handler.Health)).Methods("GET")
	s.router.HandleFunc("/deploy", nr.Wrap(s.nrApp, "/deploy", s.handler.Deploy)).Methods("POST")
	s.router.HandleFunc("/events", nr.Wrap(s.nrApp, "/events", s.handler.ListEvents)).Methods("GET")
	s.router.HandleFunc("/deployments", nr.Wrap(s.nrApp, "/deployments", s.handler.ListDeployments)).Methods("GET")
	s.router.HandleFunc("/deployments/{id}", nr.Wrap(s.nrApp, "/deployments/{id}", s.handler.Status)).Methods("GET")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"path":     r.URL.Path,
			"method":   r.Method,
			"ip":       r.RemoteAddr,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight deployments
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
