package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/lazulihq/reco-api/internal/logger"
	"github.com/lazulihq/reco-api/reco"
)

type Server struct {
	db        *sql.DB
	tenants   reco.TenantStore
	artifacts reco.ArtifactStore
	trainer   *reco.Trainer
	predictor *reco.Predictor
	secret    []byte
	router    *chi.Mux
}

// NewServer connects to Postgres and wires the full HTTP surface.
func NewServer(databaseURL string, secret []byte) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := newServerWithDB(db, secret)
	return s, nil
}

// newServerWithDB builds a server over an existing connection; integration
// tests use it against a container database.
func newServerWithDB(db *sql.DB, secret []byte) *Server {
	s := NewServerWithStores(reco.NewPostgresTenantStore(db), reco.NewPostgresArtifactStore(db), secret)
	s.db = db
	return s
}

// NewServerWithStores wires the HTTP surface over explicit stores. Handler
// tests use it with the in-memory implementations.
func NewServerWithStores(tenants reco.TenantStore, artifacts reco.ArtifactStore, secret []byte) *Server {
	classifier := reco.NewSoftmaxClassifier()
	s := &Server{
		tenants:   tenants,
		artifacts: artifacts,
		trainer:   &reco.Trainer{Classifier: classifier, Artifacts: artifacts},
		predictor: &reco.Predictor{Classifier: classifier, Artifacts: artifacts},
		secret:    secret,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/dev/ensure-tenant", s.handleEnsureTenant)

	r.Route("/ml", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.requireTenant)

		r.Post("/train", s.handleTrain)
		r.Post("/train/import", s.handleTrainImport)
		r.Post("/predict", s.handlePredict)
		r.Post("/predict/batch", s.handlePredictBatch)
		r.Get("/model", s.handleModelInfo)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	if status >= 500 {
		logger.Error("request failed", "status", status, "message", message, "err", err)
	}
	respondJSON(w, status, response)
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	secret := os.Getenv("AUTH_SECRET")
	if secret == "" {
		secret = "dev-secret"
		logger.Warn("AUTH_SECRET not set, using development default")
	}

	server, err := NewServer(databaseURL, []byte(secret))
	if err != nil {
		logger.Fatal("failed to create server", "err", err)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
