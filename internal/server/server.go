package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"datachat-backend/internal/auth"
	"datachat-backend/internal/config"
	"datachat-backend/internal/db"
	"datachat-backend/internal/llm"
	"datachat-backend/internal/logger"
	"datachat-backend/internal/metrics"
	"datachat-backend/internal/pipeline"
	"datachat-backend/internal/ratelimit"
	"datachat-backend/internal/security"
	"datachat-backend/internal/sqlguard"
	"datachat-backend/internal/types"
)

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	log      *logger.Logger
	database *db.DB
	pipe     *pipeline.Pipeline
	detector *security.Detector
	limiter  *ratelimit.Limiter
}

func NewServer(cfg config.Config) (*Server, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Println("database connection established")

	if cfg.MigrationsDir != "" {
		if err := database.RunMigrations(cfg.MigrationsDir); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Shared counter store when redis is configured, per-process otherwise.
	var store ratelimit.Store
	if cfg.RedisURL != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.RedisURL)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize rate limit store: %w", err)
		}
		store = redisStore
		log.Println("redis rate limit store configured")
	} else {
		store = ratelimit.NewMemoryStore()
		log.Println("warning: REDIS_URL not provided, using in-process rate limiting")
	}
	limiter := ratelimit.NewLimiter(store, cfg.RatePolicies, cfg.RateLimitFailOpen)

	detector := security.NewDetector(
		security.WithMaxInputLength(cfg.MaxInputLength),
		security.WithBlockSeverity(cfg.BlockSeverity),
		security.WithRiskThreshold(cfg.RiskThreshold),
	)

	sqlSpec, err := llm.LoadPromptSpec(cfg.SQLPromptPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load sql prompt spec: %w", err)
	}
	answerSpec, err := llm.LoadPromptSpec(cfg.AnswerPromptPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load answer prompt spec: %w", err)
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)
	generator := llm.NewGenerator(client, cfg.Model, sqlSpec, cfg.GenerateTimeout)
	composer := llm.NewComposer(client, cfg.Model, answerSpec, cfg.ComposeTimeout)

	schemaCache := db.NewSchemaCache(database, cfg.SchemaCacheTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := schemaCache.Get(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	guard := sqlguard.NewGuard(info.TableNames(), cfg.MaxRows)

	executor := db.NewExecutor(database, cfg.MaxRows, cfg.QueryTimeout)
	audit := db.NewAuditStore(database)

	pipe := pipeline.New(limiter, detector, schemaCache, generator, guard, executor, composer, audit)

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		log:      logger.New("server"),
		database: database,
		pipe:     pipe,
		detector: detector,
		limiter:  limiter,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))
	s.router.Use(auth.Identify(s.cfg.JWTSecret))

	s.router.Post("/api/chat", s.handleChat)
	s.router.With(s.rateLimit("validate")).Post("/api/security/validate", s.handleValidate)
	s.router.Post("/api/session", s.handleSession)
	s.router.With(s.rateLimit("health")).Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Close() {
	if s.database != nil {
		s.database.Close()
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	outcome := s.pipe.Process(r.Context(), pipeline.Request{
		ClientID: auth.ClientID(r.Context()),
		Message:  req.Message,
	})
	if outcome.Response.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", outcome.Response.RetryAfter))
	}
	s.writeJSON(w, outcome.HTTPStatus, outcome.Response)
}

// handleValidate exposes the threat detector directly for external callers.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Input == "" {
		s.writeError(w, http.StatusBadRequest, "input field required")
		return
	}

	verdict, err := s.detector.Scan(req.Input)
	if err != nil {
		if errors.Is(err, security.ErrInputTooLong) {
			s.writeJSON(w, http.StatusOK, types.ValidateResponse{
				IsSafe:  false,
				Threats: []string{"input_too_long"},
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to validate input")
		return
	}
	threats := verdict.MatchedRules
	if threats == nil {
		threats = []string{}
	}
	s.writeJSON(w, http.StatusOK, types.ValidateResponse{
		IsSafe:    verdict.IsSafe,
		Threats:   threats,
		RiskScore: verdict.RiskScore,
	})
}

// handleSession issues a signed token carrying a fresh client identity.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	clientID := uuid.NewString()
	token, err := auth.GenerateToken(clientID, s.cfg.JWTSecret, s.cfg.SessionTTL)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}
	s.writeJSON(w, http.StatusOK, types.SessionResponse{
		Token:     token,
		ExpiresIn: int(s.cfg.SessionTTL.Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, database := "ok", "healthy"
	if s.database == nil {
		status, database = "degraded", "not configured"
	} else if err := s.database.HealthCheck(r.Context()); err != nil {
		status, database = "degraded", "unhealthy"
	}
	s.writeJSON(w, http.StatusOK, types.HealthResponse{Status: status, Database: database})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg})
}
