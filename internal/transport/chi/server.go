// Package chi exposes the question-answering pipeline over HTTP: a
// server-sent-events answer stream, a synchronous variant, and the usual
// health and metrics endpoints.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/usecase/health"
	"github.com/hanwool-labs/docchat/internal/usecase/pipeline"
)

// maxQuestionRunes bounds accepted question length.
const maxQuestionRunes = 2000

// Answerer is the pipeline contract the server consumes.
type Answerer interface {
	Answer(ctx context.Context, question string) <-chan pipeline.Event
	AnswerOnce(ctx context.Context, question string) (string, []domain.ScoredPassage, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Server handles the HTTP surface of the pipeline.
type Server struct {
	answerer Answerer
	health   HealthChecker
	logger   *zap.Logger
}

// NewServer creates the HTTP handler set.
func NewServer(answerer Answerer, healthSvc HealthChecker, logger *zap.Logger) *Server {
	return &Server{answerer: answerer, health: healthSvc, logger: logger}
}

// Routes mounts all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/answer", s.AnswerStream)
	r.Post("/v1/answer/sync", s.AnswerSync)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type answerRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer   string          `json:"answer"`
	Passages []passagePayload `json:"passages"`
}

type passagePayload struct {
	ID        string   `json:"id"`
	DocID     string   `json:"doc_id"`
	DocTitle  string   `json:"doc_title"`
	DocType   string   `json:"doc_type,omitempty"`
	DocURL    string   `json:"doc_url,omitempty"`
	PageStart int      `json:"page_start,omitempty"`
	PageEnd   int      `json:"page_end,omitempty"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons,omitempty"`
}

// AnswerStream handles POST /v1/answer as a server-sent-events stream:
// stage and token events as they happen, then one terminal final or error
// event. Client disconnect cancels the pipeline through the request context.
func (s *Server) AnswerStream(w http.ResponseWriter, r *http.Request) {
	question, ok := s.readQuestion(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.answerer.Answer(r.Context(), question) {
		if err := writeSSE(w, ev); err != nil {
			// Client gone; the context cancellation stops the pipeline.
			s.logger.Debug("SSE write failed, client disconnected", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

// AnswerSync handles POST /v1/answer/sync, returning the full answer as one
// JSON document.
func (s *Server) AnswerSync(w http.ResponseWriter, r *http.Request) {
	question, ok := s.readQuestion(w, r)
	if !ok {
		return
	}

	answerText, passages, err := s.answerer.AnswerOnce(r.Context(), question)
	if err != nil {
		s.logger.Error("Answer failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, codeGenerationFailed, "답변 생성에 실패했습니다")
		return
	}

	resp := answerResponse{Answer: answerText, Passages: make([]passagePayload, 0, len(passages))}
	for _, sp := range passages {
		resp.Passages = append(resp.Passages, passagePayload{
			ID:        sp.Passage.ID,
			DocID:     sp.Passage.DocID,
			DocTitle:  sp.Passage.DocTitle,
			DocType:   sp.Passage.DocType,
			DocURL:    sp.Passage.DocURL,
			PageStart: sp.Passage.PageStart,
			PageEnd:   sp.Passage.PageEnd,
			Score:     sp.FinalScore,
			Reasons:   sp.Reasons,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func (s *Server) readQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return "", false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question is required")
		return "", false
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionRunes {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("question exceeds %d characters", maxQuestionRunes))
		return "", false
	}
	return req.Question, true
}

func writeSSE(w http.ResponseWriter, ev pipeline.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// Error codes returned in JSON error bodies.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeInternal         = "internal_error"
	codeGenerationFailed = "generation_failed"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
