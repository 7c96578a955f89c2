package handlers

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// AnalyzeRequest is the body of POST /api/analyze. ReportContent wins when
// both fields are set.
type AnalyzeRequest struct {
	ReportContent string            `json:"report_content" validate:"required_without=ReportPath"`
	ReportPath    string            `json:"report_path" validate:"required_without=ReportContent"`
	Options       models.RunOptions `json:"options"`
}

// AnalyzeResponse wraps one run for HTTP callers
type AnalyzeResponse struct {
	AnalysisID     string                 `json:"analysis_id"`
	Status         string                 `json:"status"`
	Data           *models.AnalysisResult `json:"data"`
	Errors         []string               `json:"errors"`
	ProcessingTime float64                `json:"processing_time"` // seconds
}

// AnalysisHandler runs the pipeline for HTTP requests
type AnalysisHandler struct {
	analysis interfaces.AnalysisService
	loader   interfaces.ReportLoader
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewAnalysisHandler creates an AnalysisHandler
func NewAnalysisHandler(analysis interfaces.AnalysisService, loader interfaces.ReportLoader, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		loader:   loader,
		validate: validator.New(),
		logger:   logger,
	}
}

// AnalyzeHandler handles POST /api/analyze
func (h *AnalysisHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	start := time.Now()

	var req AnalyzeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	text := req.ReportContent
	if strings.TrimSpace(text) == "" && req.ReportPath != "" {
		loaded, err := h.loader.Load(r.Context(), req.ReportPath)
		if err != nil {
			h.writeRunError(w, err)
			return
		}
		text = loaded
	}

	result, err := h.analysis.Analyze(r.Context(), text, req.Options)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.String())
	}

	h.logger.Info().
		Str("analysis_id", result.RunMetadata.RunID).
		Str("status", result.RunMetadata.Status).
		Int("errors", len(errs)).
		Msg("Analysis request completed")

	WriteJSON(w, http.StatusOK, AnalyzeResponse{
		AnalysisID:     result.RunMetadata.RunID,
		Status:         result.RunMetadata.Status,
		Data:           result,
		Errors:         errs,
		ProcessingTime: math.Round(time.Since(start).Seconds()*1000) / 1000,
	})
}

// writeRunError maps pipeline and loader errors to HTTP status codes
func (h *AnalysisHandler) writeRunError(w http.ResponseWriter, err error) {
	var invalid *models.InvalidInputError
	var violation *models.StepContractViolation

	switch {
	case errors.As(err, &invalid):
		WriteError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, fs.ErrNotExist):
		WriteError(w, http.StatusNotFound, "report file not found")
	case errors.As(err, &violation):
		h.logger.Error().Err(err).Msg("Analysis aborted by step contract violation")
		WriteError(w, http.StatusInternalServerError, "analysis failed: internal step error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, "analysis cancelled")
	default:
		h.logger.Error().Err(err).Msg("Analysis request failed")
		WriteError(w, http.StatusInternalServerError, "analysis failed")
	}
}
