package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/orchestrator"
	"github.com/edustack-ai/llm-router/internal/routing"
	"github.com/edustack-ai/llm-router/internal/telemetry"
	"github.com/edustack-ai/llm-router/internal/types"
)

// Server is the admin/ops HTTP API: router controls, config, audit,
// health and learning introspection. Request routing itself is a library
// call; this server never dispatches generation traffic.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	engine       *routing.Engine
	metrics      *telemetry.Metrics
	auth         *Auth
	httpServer   *http.Server
	logger       *logrus.Logger
	config       *Config
}

// Config holds server configuration
type Config struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	Auth           AuthConfig    `yaml:"auth"`
}

// NewServer creates a new server instance
func NewServer(orch *orchestrator.Orchestrator, engine *routing.Engine, metrics *telemetry.Metrics, config *Config, logger *logrus.Logger) *Server {
	return &Server{
		orchestrator: orch,
		engine:       engine,
		metrics:      metrics,
		auth:         NewAuth(&config.Auth, logger),
		logger:       logger,
		config:       config,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting AI router ops server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping AI router ops server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)
	r.Use(s.auth.Middleware)

	api := r.PathPrefix("/v1/router").Subrouter()

	api.HandleFunc("/enable", s.handleEnable).Methods("POST")
	api.HandleFunc("/disable", s.handleDisable).Methods("POST")
	api.HandleFunc("/mode", s.handleSetMode).Methods("PUT")
	api.HandleFunc("/canary", s.handleSetCanary).Methods("PUT")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PATCH")
	api.HandleFunc("/decision", s.handleDecision).Methods("POST")
	api.HandleFunc("/audit", s.handleAudit).Methods("GET")
	api.HandleFunc("/providers/health", s.handleProviderHealth).Methods("GET")
	api.HandleFunc("/learning", s.handleLearningStats).Methods("GET")

	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "PATCH" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Enable()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Disable()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode types.RolloutMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	switch req.Mode {
	case types.ModeShadow, types.ModeCanary, types.ModeAuto:
	default:
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Unknown mode: %s", req.Mode))
		return
	}

	s.orchestrator.SetMode(req.Mode)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"mode": req.Mode})
}

func (s *Server) handleSetCanary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percentage float64 `json:"percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	s.orchestrator.SetCanaryPercentage(req.Percentage)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"canary_percentage": s.orchestrator.GetConfig().CanaryPercentage,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings := s.orchestrator.GetConfig()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": s.orchestrator.IsEnabled(),
		"config":  settings,
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch orchestrator.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if patch.Mode != nil {
		switch *patch.Mode {
		case types.ModeShadow, types.ModeCanary, types.ModeAuto:
		default:
			s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Unknown mode: %s", *patch.Mode))
			return
		}
	}

	s.orchestrator.UpdateConfig(patch)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"config": s.orchestrator.GetConfig(),
	})
}

// handleDecision scores a request without dispatching it.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text        string                 `json:"text"`
		Context     map[string]interface{} `json:"context"`
		UserProfile map[string]interface{} `json:"user_profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.Text == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	decision, err := s.engine.SelectProvider(req.Text, req.Context, req.UserProfile)
	if err != nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Routing failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries := s.orchestrator.GetMetrics()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orchestrator.GetProviderHealth()

	overallHealthy := true
	for _, state := range health {
		if state == types.HealthUnhealthy {
			overallHealthy = false
			break
		}
	}

	statusCode := http.StatusOK
	if !overallHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"providers": health,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"learning": s.orchestrator.GetLearningStats(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"enabled":   s.orchestrator.IsEnabled(),
		"timestamp": time.Now().Unix(),
	})
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "api_error",
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	}

	json.NewEncoder(w).Encode(errorResp)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
