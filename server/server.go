package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/pipeline"
)

// maxBodyBytes bounds request bodies; a filled graph with long dialogue stays well below it.
const maxBodyBytes = 8 << 20

// Server exposes the pipeline stages over HTTP.
type Server struct {
	Structure *pipeline.StructureGenerator
	Content   *pipeline.ContentFiller
	Validator *pipeline.Validator
	Workflow  *pipeline.Workflow

	// Gatherer backs GET /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

// NewHandler returns the chi router serving every endpoint of s.
func NewHandler(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/structure", s.GenerateStructure)
		r.Post("/content", s.FillContent)
		r.Post("/validate", s.Validate)
		r.Post("/pipeline", s.RunPipeline)
	})
	return r
}

// StructureResponse is returned by POST /v1/structure.
type StructureResponse struct {
	DialogTree     *dialog.Graph `json:"dialog_tree"`
	GenerationTime float64       `json:"generation_time"`
}

// ContentRequest is the body of POST /v1/content.
type ContentRequest struct {
	DialogTree *dialog.Graph    `json:"dialog_tree"`
	Character  dialog.Character `json:"character"`
	Goal       dialog.Goal      `json:"goal"`
}

// ContentResponse is returned by POST /v1/content.
type ContentResponse struct {
	DialogTree     *dialog.Graph `json:"dialog_tree"`
	Logs           []string      `json:"logs,omitempty"`
	GenerationTime float64       `json:"generation_time"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	DialogTree  *dialog.Graph      `json:"dialog_tree"`
	Character   dialog.Character   `json:"character"`
	Goal        dialog.Goal        `json:"goal"`
	Constraints dialog.Constraints `json:"constraints"`
}

// ValidateResponse is returned by POST /v1/validate.
type ValidateResponse struct {
	*pipeline.Verdict
	Failing        []string `json:"failing,omitempty"`
	GenerationTime float64  `json:"generation_time"`
}

// PipelineResponse is returned by POST /v1/pipeline.
type PipelineResponse struct {
	RunID          string            `json:"run_id"`
	DialogTree     *dialog.Graph     `json:"dialog_tree"`
	Verdict        *pipeline.Verdict `json:"verdict,omitempty"`
	Iteration      int               `json:"iteration"`
	Logs           []string          `json:"logs,omitempty"`
	GenerationTime float64           `json:"generation_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GenerateStructure handles POST /v1/structure.
func (s *Server) GenerateStructure(w http.ResponseWriter, r *http.Request) {
	if s.Structure == nil {
		s.writeError(w, r, http.StatusNotImplemented, errors.New("structure generation is not configured"))
		return
	}
	var body pipeline.Request
	if !s.decode(w, r, &body) {
		return
	}

	start := time.Now()
	g, err := s.Structure.Generate(r.Context(), body.Character, body.Goal, body.Constraints)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StructureResponse{
		DialogTree:     g,
		GenerationTime: time.Since(start).Seconds(),
	})
}

// FillContent handles POST /v1/content.
func (s *Server) FillContent(w http.ResponseWriter, r *http.Request) {
	if s.Content == nil {
		s.writeError(w, r, http.StatusNotImplemented, errors.New("content filling is not configured"))
		return
	}
	var body ContentRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.DialogTree == nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("dialog_tree is required"))
		return
	}

	// Copy the filler so the progress hook belongs to this request.
	filler := *s.Content
	var logs []string
	filler.OnNodeFilled = func(p pipeline.NodeProgress) {
		logs = append(logs, fmt.Sprintf("filled %s (%d/%d)", p.NodeID, p.Filled, p.Total))
	}

	start := time.Now()
	g, err := filler.Fill(r.Context(), body.DialogTree, body.Character, body.Goal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ContentResponse{
		DialogTree:     g,
		Logs:           logs,
		GenerationTime: time.Since(start).Seconds(),
	})
}

// Validate handles POST /v1/validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	if s.Validator == nil {
		s.writeError(w, r, http.StatusNotImplemented, errors.New("validation is not configured"))
		return
	}
	var body ValidateRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.DialogTree == nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("dialog_tree is required"))
		return
	}

	start := time.Now()
	v, err := s.Validator.Validate(r.Context(), body.DialogTree, body.Character, body.Goal, body.Constraints.WithDefaults())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ValidateResponse{
		Verdict:        v,
		Failing:        v.Failing(),
		GenerationTime: time.Since(start).Seconds(),
	})
}

// RunPipeline handles POST /v1/pipeline.
func (s *Server) RunPipeline(w http.ResponseWriter, r *http.Request) {
	if s.Workflow == nil {
		s.writeError(w, r, http.StatusNotImplemented, errors.New("pipeline is not configured"))
		return
	}
	var body pipeline.Request
	if !s.decode(w, r, &body) {
		return
	}

	start := time.Now()
	state, err := s.Workflow.Run(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PipelineResponse{
		RunID:          state.RunID,
		DialogTree:     state.Graph,
		Verdict:        state.Verdict,
		Iteration:      state.Iteration,
		Logs:           state.Logs,
		GenerationTime: time.Since(start).Seconds(),
	})
}

// StatusCode maps a pipeline error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, dialog.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, dialog.ErrStructuralViolation),
		errors.Is(err, pipeline.ErrChoiceRouting),
		errors.Is(err, llm.ErrMalformedResponse),
		errors.Is(err, pipeline.ErrEmptyEvaluation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, StatusCode(err), err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := log.OrDefault(s.Logger)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s [%s]: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
	} else {
		logger.Warn("%s %s [%s]: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.OrDefault(s.Logger).Error("encode response: %v", err)
	}
}
