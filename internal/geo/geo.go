// Package geo resolves client IPs to coarse locations for the viewer
// location breakdown. Resolution is best-effort: private, loopback or
// unresolvable addresses yield the Unknown sentinel, never an error
// surfaced to callers.
package geo

import (
	"net"
	"sync"
	"time"

	"github.com/hostreel/viewlens/internal/metrics"
)

// Location is the resolved origin of an IP address.
type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
}

// Unknown is the sentinel returned when resolution is impossible.
// ZZ is the ISO 3166 user-assigned code for "unknown or unspecified".
var Unknown = Location{Country: "Unknown", CountryCode: "ZZ"}

// IsUnknown reports whether the location is the sentinel.
func (l Location) IsUnknown() bool {
	return l.CountryCode == "ZZ" || l.CountryCode == ""
}

// Resolver is the capability interface handlers depend on.
// Implementations never return errors; call sites have exactly one
// fallback path to handle — the Unknown sentinel.
type Resolver interface {
	Resolve(ip string) Location
	Close() error
}

// CachingResolver wraps a Provider with a TTL lookup cache. The cache
// uses simple FIFO eviction at capacity; lookup volume per video is
// modest and correctness does not depend on eviction order.
type CachingResolver struct {
	provider Provider
	cache    *lookupCache
	metrics  *metrics.Metrics
}

// Provider is the raw database-backed lookup, fallible by nature.
type Provider interface {
	Lookup(ip net.IP) (Location, error)
	Close() error
}

// NewCachingResolver creates a resolver around a provider. A nil
// provider is allowed and resolves everything to Unknown, so a missing
// GeoIP database degrades the breakdown instead of disabling it.
func NewCachingResolver(provider Provider, cacheSize int, cacheTTL time.Duration, m *metrics.Metrics) *CachingResolver {
	return &CachingResolver{
		provider: provider,
		cache: &lookupCache{
			data:    make(map[string]*cacheEntry),
			maxSize: cacheSize,
			ttl:     cacheTTL,
		},
		metrics: m,
	}
}

// Resolve maps an IP string to a Location.
func (r *CachingResolver) Resolve(ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return Unknown
	}
	if r.provider == nil {
		return Unknown
	}

	start := time.Now()
	if loc, ok := r.cache.get(ip); ok {
		if r.metrics != nil {
			r.metrics.RecordGeoLookup(true, time.Since(start))
		}
		return loc
	}

	loc, err := r.provider.Lookup(parsed)
	if r.metrics != nil {
		r.metrics.RecordGeoLookup(false, time.Since(start))
	}
	if err != nil {
		return Unknown
	}
	if loc.Country == "" {
		loc = Unknown
	}

	r.cache.set(ip, loc)
	return loc
}

// Close closes the underlying provider.
func (r *CachingResolver) Close() error {
	if r.provider != nil {
		return r.provider.Close()
	}
	return nil
}

type lookupCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	loc       Location
	expiresAt time.Time
}

func (c *lookupCache) get(ip string) (Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[ip]
	if !ok {
		return Location{}, false
	}
	if time.Now().After(entry.expiresAt) {
		return Location{}, false
	}
	return entry.loc, true
}

func (c *lookupCache) set(ip string, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.maxSize {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}

	c.data[ip] = &cacheEntry{
		loc:       loc,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// StaticProvider is a fixed-table provider for tests.
type StaticProvider struct {
	data map[string]Location
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{data: make(map[string]Location)}
}

// AddEntry registers a lookup result for an IP.
func (p *StaticProvider) AddEntry(ip string, loc Location) {
	p.data[ip] = loc
}

func (p *StaticProvider) Lookup(ip net.IP) (Location, error) {
	if loc, ok := p.data[ip.String()]; ok {
		return loc, nil
	}
	return Unknown, nil
}

func (p *StaticProvider) Close() error { return nil }
