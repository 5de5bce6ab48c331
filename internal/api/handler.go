package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/internal/pipeline"
	"github.com/yegors/co-atis/internal/storage/sqlite"
	"github.com/yegors/co-atis/internal/weather"
	"github.com/yegors/co-atis/pkg/logger"
)

// maxRequestBodyBytes bounds the trigger request body
const maxRequestBodyBytes = 4 << 10

// Image listing page sizes
const (
	defaultImageLimit = 10
	maxImageLimit     = 50
)

// Processor runs the ATIS pipeline
type Processor interface {
	Process(ctx context.Context, airportCode string) (*pipeline.Result, error)
	Status() pipeline.Status
}

// AirportLister lists and resolves the configured airports
type AirportLister interface {
	All() []frequencies.Frequency
	Resolve(code string) (frequencies.Frequency, error)
}

// ImageLister reads the image registry
type ImageLister interface {
	GetRecentImages(airport string, limit int) ([]*sqlite.ImageRecord, error)
	CountImages(airport string) (int, error)
}

// Handler serves the HTTP endpoints
type Handler struct {
	processor    Processor
	airports     AirportLister
	images       ImageLister
	imagesPrefix string
	aiConfigured bool
	validate     *validator.Validate
	logger       *logger.Logger
	now          func() time.Time
}

// NewHandler creates a new handler
func NewHandler(processor Processor, airports AirportLister, options Options, logger *logger.Logger) *Handler {
	return &Handler{
		processor:    processor,
		airports:     airports,
		images:       options.Images,
		imagesPrefix: "/" + strings.Trim(options.ImagesURLPrefix, "/"),
		aiConfigured: options.AIConfigured,
		validate:     validator.New(),
		logger:       logger.Named("api-handler"),
		now:          time.Now,
	}
}

// ProcessRequest is the body of the trigger endpoint
type ProcessRequest struct {
	AirportCode string `json:"airport_code" validate:"required,alpha,len=4"`
}

// ProcessResponse is the success body of the trigger endpoint
type ProcessResponse struct {
	Status       string          `json:"status"`
	AirportCode  string          `json:"airport_code"`
	AirportName  string          `json:"airport_name"`
	OriginalText string          `json:"original_text"`
	Translation  *weather.Report `json:"translation"`
	// ImageURL is null when no illustration was produced
	ImageURL  *string `json:"image_url"`
	Truncated bool    `json:"truncated"`
	Outcome   string  `json:"outcome"`
	Timestamp string  `json:"timestamp"`
}

// ErrorResponse is the failure body of every endpoint
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the body of the health probe
type HealthResponse struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	AIConfigured bool   `json:"ai_configured"`
}

// AirportResponse is one entry of the airport list
type AirportResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ImageResponse is one entry of the image listing
type ImageResponse struct {
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

// ImageListResponse is the body of the image listing
type ImageListResponse struct {
	AirportCode string          `json:"airport_code"`
	Total       int             `json:"total"`
	Images      []ImageResponse `json:"images"`
}

// ProcessATIS runs the pipeline for the requested airport and blocks until
// it finishes
func (h *Handler) ProcessATIS(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.AirportCode = strings.ToUpper(strings.TrimSpace(req.AirportCode))
	if err := h.validate.Struct(req); err != nil {
		if req.AirportCode == "" {
			h.writeError(w, http.StatusBadRequest, "airport_code is required")
			return
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported airport code: %s", req.AirportCode))
		return
	}

	result, err := h.processor.Process(r.Context(), req.AirportCode)
	if err != nil {
		status, message := ErrorStatus(err, req.AirportCode)
		h.logger.Info("ATIS request failed",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Airport(req.AirportCode),
			logger.Int("status", status),
			logger.Error(err))
		h.writeError(w, status, message)
		return
	}

	h.writeJSON(w, http.StatusOK, NewProcessResponse(result))
}

// NewProcessResponse builds the success body for a pipeline result
func NewProcessResponse(result *pipeline.Result) ProcessResponse {
	resp := ProcessResponse{
		Status:      "success",
		AirportCode: result.AirportCode,
		AirportName: result.AirportName,
		Translation: result.Report,
		Truncated:   result.Truncated(),
		Outcome:     string(result.Outcome),
		Timestamp:   result.FinishedAt.Format(time.RFC3339),
	}
	if result.Transcript != nil {
		resp.OriginalText = result.Transcript.Text
	}
	if url := result.ImageURL(); url != "" {
		resp.ImageURL = &url
	}
	return resp
}

// ErrorStatus maps a pipeline failure to an HTTP status and the message
// shown to the caller
func ErrorStatus(err error, airportCode string) (int, string) {
	var pipelineErr *pipeline.Error
	if !errors.As(err, &pipelineErr) {
		return http.StatusInternalServerError, "Internal error while processing ATIS"
	}

	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusConflict, pipelineErr.Message
	case errors.Is(err, frequencies.ErrUnknownAirport):
		return http.StatusBadRequest, fmt.Sprintf("%s: %s", pipelineErr.Message, airportCode)
	}

	switch pipelineErr.Kind {
	case pipeline.KindCaller:
		return http.StatusBadRequest, pipelineErr.Message
	case pipeline.KindUpstream:
		return http.StatusBadGateway, pipelineErr.Message
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout, pipelineErr.Message
	default:
		return http.StatusInternalServerError, pipelineErr.Message
	}
}

// GetHealth returns the liveness probe
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Timestamp:    h.now().Format(time.RFC3339),
		AIConfigured: h.aiConfigured,
	})
}

// GetAirports returns the configured airports
func (h *Handler) GetAirports(w http.ResponseWriter, r *http.Request) {
	freqs := h.airports.All()
	airports := make([]AirportResponse, 0, len(freqs))
	for _, freq := range freqs {
		airports = append(airports, AirportResponse{Code: freq.Airport, Name: freq.Name})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"airports": airports})
}

// GetStatus returns the current pipeline session, if any
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.processor.Status())
}

// GetImages lists the retained illustrations of an airport, newest first
func (h *Handler) GetImages(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "airport")))
	if _, err := h.airports.Resolve(code); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported airport code: %s", code))
		return
	}

	limit := defaultImageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxImageLimit)
	}

	records, err := h.images.GetRecentImages(code, limit)
	if err != nil {
		h.logger.Error("Failed to list images", logger.Airport(code), logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}
	total, err := h.images.CountImages(code)
	if err != nil {
		h.logger.Error("Failed to count images", logger.Airport(code), logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}

	resp := ImageListResponse{
		AirportCode: code,
		Total:       total,
		Images:      make([]ImageResponse, 0, len(records)),
	}
	for _, record := range records {
		resp.Images = append(resp.Images, ImageResponse{
			FileName:  record.FileName,
			URL:       path.Join(h.imagesPrefix, record.FileName),
			SizeBytes: record.SizeBytes,
			CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Status: "error", Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}
