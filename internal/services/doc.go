// Package services sits between the HTTP handlers and the validation engine.
//
// ValidationService screens caller input with security.InputValidator, maps the
// v1 API contracts onto license.ValidationContext and delegates to
// license.Manager. HealthService folds the engine health check, the event stream
// hub and the fleet monitor into health, readiness and liveness reports.
//
// Services never write HTTP responses. Bad input is returned as an
// errors.AppError of type VALIDATION, which the transport error handler maps to
// a 400 problem response.
package services
