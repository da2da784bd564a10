package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "credguard/internal/errors"
	"credguard/internal/infrastructure"
	"credguard/internal/middleware"
	api "credguard/pkg/contracts/api/v1"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// AdminHandler serves override and revocation endpoints. Authentication is applied
// by the router.
type AdminHandler struct {
	service      ValidationServiceInterface
	validator    *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service ValidationServiceInterface, validator *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:      service,
		validator:    validator,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "admin")),
		tracer:       otel.Tracer("admin-handler"),
	}
}

// Routes returns the router mounted under /api/v1/admin
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/override", h.RequestOverride)
	r.Post("/revoke", h.Revoke)
	r.Get("/overrides", h.ListOverrides)
	r.Get("/revocations", h.ListRevocations)
	return r
}

// RequestOverride handles POST /api/v1/admin/override. The record is returned with
// authorized=false; nothing here grants access.
func (h *AdminHandler) RequestOverride(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "admin_handler.override")
	defer span.End()
	r = r.WithContext(ctx)

	var req api.OverrideRequest
	if !decodeAndValidate(w, r, &req, h.validator, h.errorHandler, h.logger) {
		return
	}

	record, err := h.service.RequestOverride(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("override.id", record.ID))
	h.logger.WarnContext(ctx, "emergency override recorded",
		slog.String("override_id", record.ID),
		slog.String("requested_by", infrastructure.GetIdentity(ctx)),
		slog.Duration("duration", record.Duration))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, record)
}

// Revoke handles POST /api/v1/admin/revoke
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "admin_handler.revoke")
	defer span.End()
	r = r.WithContext(ctx)

	var req api.RevokeRequest
	if !decodeAndValidate(w, r, &req, h.validator, h.errorHandler, h.logger) {
		return
	}

	record, err := h.service.Revoke(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("revocation.id", record.ID),
		attribute.Bool("revocation.cache_purged", record.CachePurged),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// ListOverrides handles GET /api/v1/admin/overrides?limit=N, newest entries last
func (h *AdminHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxListLimit, defaultListLimit)
	if !ok {
		return
	}
	render.JSON(w, r, api.NewListResponse(tail(h.service.Overrides(r.Context()), limit)))
}

// ListRevocations handles GET /api/v1/admin/revocations?limit=N, newest entries last
func (h *AdminHandler) ListRevocations(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxListLimit, defaultListLimit)
	if !ok {
		return
	}
	render.JSON(w, r, api.NewListResponse(tail(h.service.Revocations(r.Context()), limit)))
}

func tail[T any](items []T, n int) []T {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
