package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Credential and engine sentinels
var (
	ErrCredentialInvalid   = errors.New("credential invalid")
	ErrCredentialExpired   = errors.New("credential expired")
	ErrCredentialMalformed = errors.New("credential malformed")
	ErrNodeUnavailable     = errors.New("peer node unavailable")
	ErrGeoUnresolvable     = errors.New("address could not be geolocated")
	ErrCacheWrite          = errors.New("cache write failed")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrRateLimited         = errors.New("rate limited")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]any `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens Extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, 5+len(pd.Extensions))
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]any),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value any) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]any)
	}
	pd.Extensions[key] = value
	return pd
}

// MapDomainError maps engine sentinels and AppErrors to problem details.
// ok is false when err carries no domain meaning.
func MapDomainError(err error, instance string) (problem *ProblemDetails, ok bool) {
	switch {
	case errors.Is(err, ErrCredentialExpired):
		return NewProblemDetails(http.StatusUnauthorized, TypeCredentialExpired,
			"Credential Expired", "The presented credential has expired.", instance).
			WithExtension("error_code", "CREDENTIAL_EXPIRED"), true
	case errors.Is(err, ErrCredentialMalformed):
		return NewProblemDetails(http.StatusBadRequest, TypeCredentialMalformed,
			"Credential Malformed", "The presented credential could not be parsed.", instance).
			WithExtension("error_code", "CREDENTIAL_MALFORMED"), true
	case errors.Is(err, ErrCredentialInvalid):
		return NewProblemDetails(http.StatusUnauthorized, TypeCredentialInvalid,
			"Credential Invalid", "The presented credential is not valid.", instance).
			WithExtension("error_code", "CREDENTIAL_INVALID"), true
	case errors.Is(err, ErrProfileNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeProfileNotFound,
			"Profile Not Found", "No behavior profile exists for this identity.", instance).
			WithExtension("error_code", "PROFILE_NOT_FOUND"), true
	case errors.Is(err, ErrNodeUnavailable):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeServiceDown,
			"Peer Unavailable", "A peer validation node could not be reached.", instance).
			WithExtension("error_code", "NODE_UNAVAILABLE"), true
	case errors.Is(err, ErrRateLimited):
		return NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit,
			"Too Many Requests", "Too many requests. Please try again later.", instance).
			WithExtension("error_code", "RATE_LIMITED").
			WithExtension("retry_after", 60), true
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrTypeValidation:
			return NewProblemDetails(http.StatusBadRequest, TypeValidation,
				"Validation Failed", appErr.Message, instance).
				WithExtension("error_code", string(appErr.Type)), true
		case ErrTypeNotFound:
			return NewProblemDetails(http.StatusNotFound, TypeNotFound,
				"Resource Not Found", appErr.Message, instance).
				WithExtension("error_code", string(appErr.Type)), true
		case ErrTypeStorage, ErrTypeNodeQuery:
			return NewProblemDetails(http.StatusServiceUnavailable, TypeServiceDown,
				"Dependency Unavailable", appErr.Message, instance).
				WithExtension("error_code", string(appErr.Type)), true
		}
	}

	return nil, false
}
