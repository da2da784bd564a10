// Package api contains the HTTP contract of the credguard v1 API.
package api

import "time"

// ValidateRequest asks the engine to validate a credential in a request context
type ValidateRequest struct {
	Credential       string      `json:"credential" validate:"required,max=4096"`
	IdentityID       string      `json:"identity_id,omitempty" validate:"omitempty,max=128"`
	Address          string      `json:"address,omitempty" validate:"omitempty,ip"`
	RequestsThisHour int         `json:"requests_this_hour" validate:"gte=0"`
	UniqueIPs        int         `json:"unique_ips" validate:"gte=0"`
	RapidRequests    int         `json:"rapid_requests" validate:"gte=0"`
	LocationChanged  bool        `json:"location_changed"`
	DeviceChanged    bool        `json:"device_changed"`
	Device           *DeviceInfo `json:"device,omitempty"`
}

// DeviceInfo carries client reported device attributes. Omit it to fingerprint the serving host.
type DeviceInfo struct {
	Platform          string            `json:"platform" validate:"required"`
	Architecture      string            `json:"architecture" validate:"required"`
	Hostname          string            `json:"hostname"`
	CPUModels         []string          `json:"cpu_models,omitempty"`
	TotalMemory       uint64            `json:"total_memory"`
	NetworkInterfaces []string          `json:"network_interfaces,omitempty"`
	UptimeSeconds     int64             `json:"uptime_seconds" validate:"gte=0"`
	Env               map[string]string `json:"env,omitempty"`
}

// OverrideRequest records an emergency override. Duration uses the analytics period
// syntax: 12h, 3d or 1m.
type OverrideRequest struct {
	Reason   string `json:"reason" validate:"required,max=500"`
	Duration string `json:"duration" validate:"required,period"`
}

// RevokeRequest records a revocation for the sha256 hex digest of a credential
type RevokeRequest struct {
	CredentialHash string `json:"credential_hash" validate:"required,sha256hex"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

// PeerVerifyRequest is the body one node posts to another during consensus
type PeerVerifyRequest struct {
	Credential string `json:"credential" validate:"required,max=4096"`
}

// CredentialCheckRequest asks for the cached outcome of a credential without revalidating
type CredentialCheckRequest struct {
	Credential string `json:"credential" validate:"required,max=4096"`
}

// ListResponse wraps administrative record listings
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse builds a ListResponse, never returning a nil Items slice
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// CacheLookupResponse reports whether a cached outcome exists
type CacheLookupResponse struct {
	Cached  bool      `json:"cached"`
	Outcome any       `json:"outcome,omitempty"`
	Checked time.Time `json:"checked_at"`
}
