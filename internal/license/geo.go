package license

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	apperrors "credguard/internal/errors"
)

// EarthRadiusKm is the mean Earth radius used by Haversine
const EarthRadiusKm = 6371.0

// GeoResolver maps a network address to a location
type GeoResolver interface {
	Resolve(ctx context.Context, address string) (*GeoLocation, error)
}

// Haversine returns the great-circle distance between a and b in kilometres
func Haversine(a, b GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// GeoConsistencyChecker fails when an identity appears far from where it was first seen
type GeoConsistencyChecker struct {
	resolver      GeoResolver
	store         ProfileStore
	maxDistanceKm float64
}

// NewGeoConsistencyChecker creates a checker that fails beyond maxDistanceKm
func NewGeoConsistencyChecker(resolver GeoResolver, store ProfileStore, maxDistanceKm float64) *GeoConsistencyChecker {
	return &GeoConsistencyChecker{resolver: resolver, store: store, maxDistanceKm: maxDistanceKm}
}

// Check resolves address and compares it to the stored location. Resolver failures pass.
func (g *GeoConsistencyChecker) Check(ctx context.Context, identityID, address string) CheckResult {
	loc, err := g.resolver.Resolve(ctx, address)
	if err != nil {
		geoErr := apperrors.NewGeoResolutionError(address, err)
		return CheckResult{
			Method:  MethodGeolocation,
			Passed:  true,
			Details: map[string]any{"resolved": false, "fail_open": true},
			Error:   geoErr.Error(),
		}
	}

	current := loc.Point()
	details := map[string]any{
		"resolved": true,
		"country":  loc.Country,
		"city":     loc.City,
	}

	stored, err := g.storedLocation(ctx, identityID)
	if err != nil {
		return failedResult(MethodGeolocation, apperrors.NewCheckExecutionError(string(MethodGeolocation), err))
	}

	if stored == nil {
		firstTime := false
		_, err := g.store.Update(ctx, identityID, func(p *IdentityProfile) error {
			if p.LastKnownLocation == nil {
				p.LastKnownLocation = &current
				firstTime = true
				return nil
			}
			loc := *p.LastKnownLocation
			stored = &loc
			return nil
		})
		if err != nil {
			return failedResult(MethodGeolocation, apperrors.NewCheckExecutionError(string(MethodGeolocation), err))
		}
		if firstTime {
			details["firstTime"] = true
			return CheckResult{Method: MethodGeolocation, Passed: true, Details: details}
		}
	}

	distance := Haversine(*stored, current)
	suspicious := distance > g.maxDistanceKm
	details["distance_km"] = math.Round(distance*10) / 10
	details["suspicious"] = suspicious

	return CheckResult{Method: MethodGeolocation, Passed: !suspicious, Details: details}
}

func (g *GeoConsistencyChecker) storedLocation(ctx context.Context, identityID string) (*GeoPoint, error) {
	profile, err := g.store.Get(ctx, identityID)
	if errors.Is(err, apperrors.ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile.LastKnownLocation, nil
}

// StaticResolver resolves from a fixed table. Unknown addresses are unresolvable.
type StaticResolver struct {
	mu        sync.RWMutex
	locations map[string]GeoLocation
}

// NewStaticResolver builds a resolver over locations
func NewStaticResolver(locations map[string]GeoLocation) *StaticResolver {
	r := &StaticResolver{locations: make(map[string]GeoLocation, len(locations))}
	for addr, loc := range locations {
		r.locations[addr] = loc
	}
	return r
}

// Set adds or replaces an address
func (r *StaticResolver) Set(address string, loc GeoLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[address] = loc
}

// Resolve implements GeoResolver
func (r *StaticResolver) Resolve(ctx context.Context, address string) (*GeoLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.locations[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrGeoUnresolvable, address)
	}
	return &loc, nil
}

// NoopResolver never resolves, so the geolocation check always fails open
type NoopResolver struct{}

// Resolve implements GeoResolver
func (NoopResolver) Resolve(ctx context.Context, address string) (*GeoLocation, error) {
	return nil, fmt.Errorf("%w: no geo database configured", apperrors.ErrGeoUnresolvable)
}
