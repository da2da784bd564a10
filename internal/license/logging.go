package license

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credguard/internal/infrastructure"
)

// logAction logs a specific action with structured data and OpenTelemetry correlation
func (m *Manager) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	traceID := infrastructure.TraceIDFromContext(ctx)
	span := trace.SpanFromContext(ctx)

	if span.IsRecording() {
		infrastructure.AddSpanEvent(ctx, "engine."+action, map[string]any{
			"action":    action,
			"result":    result,
			"component": "validation_engine",
		})
	}

	allAttrs := []slog.Attr{
		slog.String("component", "validation_engine"),
		slog.String("action", action),
		slog.String("result", result),
	}
	if traceID != "" {
		allAttrs = append(allAttrs, slog.String("otel_trace_id", traceID))
	}
	allAttrs = append(allAttrs, attrs...)

	m.logger.LogAttrs(ctx, level, result, allAttrs...)
}

// logCredentialAction logs an action about a credential without ever writing it out
func (m *Manager) logCredentialAction(ctx context.Context, level slog.Level, action, result, credential string, attrs ...slog.Attr) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("credential.action", action),
			attribute.String("credential.masked", maskCredential(credential)),
		)
	}

	credAttrs := []slog.Attr{
		slog.String("credential_masked", maskCredential(credential)),
		slog.String("credential_hash", shortHash(HashCredential(credential))),
		slog.String("audit_category", operationCategory(action)),
	}
	credAttrs = append(credAttrs, attrs...)

	m.logAction(ctx, level, action, result, credAttrs...)
}

// maskCredential keeps the first and last four characters
func maskCredential(credential string) string {
	if len(credential) <= 8 {
		return "****"
	}
	return credential[:4] + "****" + credential[len(credential)-4:]
}

func operationCategory(action string) string {
	switch {
	case strings.Contains(action, "validation"):
		return "validation"
	case strings.Contains(action, "override"), strings.Contains(action, "revocation"):
		return "administrative"
	case strings.Contains(action, "cache"):
		return "cache"
	case strings.Contains(action, "fleet"):
		return "fleet"
	default:
		return "other"
	}
}

func (m *Manager) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (m *Manager) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (m *Manager) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (m *Manager) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelError, action, result, attrs...)
}
