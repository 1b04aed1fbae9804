// Package httpserver exposes the pipeline over HTTP: one authenticated
// write endpoint that runs a generation to its terminal outcome, plus
// health and stage-listing reads.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/config"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/pipeline"
	"github.com/postsmith/postsmith/internal/store"
)

// maxRunPayloadBytes bounds one run request body; category contexts with
// price tables and link sets stay well under this.
const maxRunPayloadBytes = 1 << 20

// runTimeout covers a full generation including retries and publishing.
const runTimeout = 10 * time.Minute

// Runner executes one generation request to a terminal result.
type Runner interface {
	Run(ctx context.Context, req models.GenerationRequest) models.PublishResult
}

type Server struct {
	cfg      config.Config
	db       store.Store
	pipe     Runner
	verifier *Verifier
}

func New(cfg config.Config, db store.Store, pipe Runner) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		pipe:     pipe,
		verifier: NewVerifier(cfg),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(runTimeout))

	r.Get("/health", s.handleHealth)

	r.Route("/pipeline", func(r chi.Router) {
		r.Get("/stages", s.handleStages)
		r.Group(func(r chi.Router) {
			r.Use(s.writeAuthMiddleware)
			r.Post("/run", s.handleRun)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.db.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stages": pipeline.Stages,
	})
}

type runRequest struct {
	TopicKeyword string                 `json:"topicKeyword"`
	Category     models.CategoryContext `json:"category"`
	Style        models.StyleConfig     `json:"style"`
	Site         models.TargetSite      `json:"site"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req, maxRunPayloadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "PIPELINE_BAD_REQUEST", err.Error())
		return
	}
	if req.Category.Name == "" {
		respondError(w, http.StatusBadRequest, "PIPELINE_BAD_REQUEST", "category.name is required")
		return
	}
	if msg := validateStyle(req.Style); msg != "" {
		respondError(w, http.StatusBadRequest, "PIPELINE_BAD_REQUEST", msg)
		return
	}

	result := s.pipe.Run(r.Context(), models.GenerationRequest{
		RequestID:    uuid.New(),
		AccountID:    accountFrom(r.Context()),
		TopicKeyword: req.TopicKeyword,
		Category:     req.Category,
		Style:        req.Style,
		Site:         req.Site,
	})
	respondJSON(w, statusFor(result), result)
}

// validateStyle rejects style values that would corrupt the run's billing.
// The word range and image count feed the reservation amount, so negatives
// must never reach the ledger.
func validateStyle(style models.StyleConfig) string {
	switch {
	case style.ImageCount < 0:
		return "style.imageCount must not be negative"
	case style.WordCountMin < 0 || style.WordCountMax < 0:
		return "style word count bounds must not be negative"
	case style.WordCountMax > 0 && style.WordCountMin > style.WordCountMax:
		return "style.wordCountMin must not exceed style.wordCountMax"
	default:
		return ""
	}
}

// statusFor maps the result's failure kind onto an HTTP status. The result
// body is the contract either way.
func statusFor(res models.PublishResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case pipeline.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case pipeline.KindConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

type contextKey string

const accountKey contextKey = "account"

func accountFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(accountKey).(uuid.UUID)
	return id
}

func (s *Server) writeAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := s.verifier.VerifyRequest(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "PIPELINE_AUTH", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
