package license

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	apperrors "credguard/internal/errors"
)

// GeoIPResolver resolves addresses against a local MaxMind City database
type GeoIPResolver struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	dbPath string
}

// NewGeoIPResolver opens the database at dbPath
func NewGeoIPResolver(dbPath string) (*GeoIPResolver, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("GeoIP database not found at %s", dbPath)
	}

	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	return &GeoIPResolver{reader: reader, dbPath: dbPath}, nil
}

// Resolve implements GeoResolver. Host:port addresses are accepted; private and
// loopback addresses are unresolvable.
func (g *GeoIPResolver) Resolve(ctx context.Context, address string) (*GeoLocation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.reader == nil {
		return nil, fmt.Errorf("%w: GeoIP database not loaded", apperrors.ErrGeoUnresolvable)
	}

	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid IP address %q", apperrors.ErrGeoUnresolvable, address)
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return nil, fmt.Errorf("%w: private address %s", apperrors.ErrGeoUnresolvable, host)
	}

	record, err := g.reader.City(ip)
	if err != nil {
		return nil, fmt.Errorf("GeoIP lookup failed: %w", err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, fmt.Errorf("%w: no coordinates for %s", apperrors.ErrGeoUnresolvable, host)
	}

	loc := &GeoLocation{
		Lat:     record.Location.Latitude,
		Lon:     record.Location.Longitude,
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc, nil
}

// Close closes the database reader
func (g *GeoIPResolver) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reader != nil {
		err := g.reader.Close()
		g.reader = nil
		return err
	}
	return nil
}
