package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "credguard/internal/errors"
	"credguard/internal/infrastructure"
	"credguard/internal/middleware"
	api "credguard/pkg/contracts/api/v1"
)

// ValidationHandler serves the public validation endpoints
type ValidationHandler struct {
	service      ValidationServiceInterface
	validator    *middleware.ValidationMiddleware
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewValidationHandler creates a new validation handler
func NewValidationHandler(service ValidationServiceInterface, validator *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *ValidationHandler {
	return &ValidationHandler{
		service:      service,
		validator:    validator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "validation")),
		tracer:       otel.Tracer("validation-handler"),
	}
}

// RegisterRoutes adds the validation endpoints to r, which is mounted at /api/v1
func (h *ValidationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/validate", h.Validate)
	r.Post("/validate/cached", h.CachedOutcome)
	r.Get("/analytics", h.Analytics)
	r.Get("/profiles/{id}", h.GetProfile)
}

// Validate handles POST /api/v1/validate. A credential that fails a check is a 200
// with valid set to false; only malformed input is a 400.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "validation_handler.validate",
		trace.WithAttributes(attribute.String("http.route", "/api/v1/validate")))
	defer span.End()
	r = r.WithContext(ctx)
	start := time.Now()

	var req api.ValidateRequest
	if !h.decode(w, r, &req) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}
	if req.Address == "" {
		req.Address = clientAddress(r)
	}

	outcome, err := h.service.Validate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.Bool("validation.valid", outcome.Valid),
		attribute.Int("validation.security_score", outcome.SecurityScore),
		attribute.String("validation.risk_level", string(outcome.RiskLevel)),
	)
	h.logger.InfoContext(ctx, "validation request completed",
		slog.String("trace_id", infrastructure.GetTraceID(ctx)),
		slog.Bool("valid", outcome.Valid),
		slog.String("risk_level", string(outcome.RiskLevel)),
		slog.Duration("latency", time.Since(start)),
	)
	render.JSON(w, r, outcome)
}

// CachedOutcome handles POST /api/v1/validate/cached. The credential travels in the
// body so it never shows up in access logs.
func (h *ValidationHandler) CachedOutcome(w http.ResponseWriter, r *http.Request) {
	var req api.CredentialCheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Cached(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Analytics handles GET /api/v1/analytics?period=24h
func (h *ValidationHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "validation_handler.analytics")
	defer span.End()

	period := r.URL.Query().Get("period")
	analytics := h.service.Analytics(ctx, period)
	span.SetAttributes(
		attribute.String("analytics.period", analytics.Period),
		attribute.Int("analytics.total", analytics.TotalValidations),
	)
	render.JSON(w, r, analytics)
}

// GetProfile handles GET /api/v1/profiles/{id}
func (h *ValidationHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, profile)
}

// decode reads a JSON body into v and runs struct validation. On failure the problem
// response has already been written.
func (h *ValidationHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeAndValidate(w, r, v, h.validator, h.errorHandler, h.logger)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any, validator *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))
		errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := validator.ValidateStruct(v); err != nil {
		errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// clientAddress is the caller's IP as resolved by the RealIP middleware, or empty
// when it does not parse as an IP
func clientAddress(r *http.Request) string {
	ip := net.ParseIP(middleware.GetRealIP(r))
	if ip == nil {
		return ""
	}
	return ip.String()
}
