// Package geocode turns free-text queries and coordinates into canonical
// locations. Resolver fronts an upstream Geocoder with validation, a TTL cache
// that also remembers misses, and request coalescing.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"circlemap/internal/types"

	"golang.org/x/sync/singleflight"
)

// FallbackAddress is shown when a point cannot be reverse geocoded.
const FallbackAddress = "address unavailable"

// DefaultFetchTimeout bounds one shared upstream fetch.
const DefaultFetchTimeout = 30 * time.Second

var (
	// ErrNotFound means the geocoder answered but had no match.
	ErrNotFound = errors.New("location not found")
	// ErrResolver means the geocoder could not be reached or failed.
	ErrResolver = errors.New("geocoder unavailable")
)

// Resolution is a resolved location.
type Resolution struct {
	Point   types.Point `json:"point"`
	Address string      `json:"address"`
}

// Geocoder is an upstream lookup service. found=false with a nil error means
// the service answered with no match.
type Geocoder interface {
	Search(ctx context.Context, query string) (res Resolution, found bool, err error)
	Reverse(ctx context.Context, p types.Point) (address string, found bool, err error)
}

// Recorder receives cache and upstream outcomes for metrics.
type Recorder interface {
	GeocodeCacheLookup(op string, hit bool)
	GeocodeUpstream(op string, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) GeocodeCacheLookup(string, bool) {}
func (noopRecorder) GeocodeUpstream(string, string) {}

// Upstream outcome labels.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Resolver resolves queries and points with caching.
type Resolver struct {
	geocoder     Geocoder
	cache        Cache
	group        singleflight.Group
	namespace    string
	foundTTL     time.Duration
	notFoundTTL  time.Duration
	fetchTimeout time.Duration
	recorder     Recorder
	logger       *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL sets how long found and not-found outcomes are reused. A
// non-positive TTL disables caching for that kind.
func WithCacheTTL(found, notFound time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.foundTTL = found
		r.notFoundTTL = notFound
	}
}

// WithNamespace prefixes cache keys, typically with the display language so
// results in different languages do not collide.
func WithNamespace(ns string) ResolverOption {
	return func(r *Resolver) {
		r.namespace = ns
	}
}

// WithFetchTimeout bounds a shared upstream fetch. The fetch outlives any
// single caller's context, so this is its only deadline.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(rec Recorder) ResolverOption {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a Resolver. A nil cache disables caching.
func NewResolver(g Geocoder, cache Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		geocoder:     g,
		cache:        cache,
		foundTTL:     time.Hour,
		notFoundTTL:  15 * time.Minute,
		fetchTimeout: DefaultFetchTimeout,
		recorder:     noopRecorder{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes a free-text query. The query is trimmed; an empty query is
// rejected without contacting the geocoder.
func (r *Resolver) Resolve(ctx context.Context, query string) (Resolution, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Resolution{}, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"query must not be empty", nil, map[string]any{"field": "query"})
	}
	if utf8.RuneCountInString(q) > types.MaxQueryLength {
		return Resolution{}, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
			fmt.Sprintf("query must be at most %d characters", types.MaxQueryLength), nil,
			map[string]any{"field": "query"})
	}

	entry, err := r.lookup(ctx, "search", r.key("search", q), func(ctx context.Context) (Entry, error) {
		res, found, err := r.geocoder.Search(ctx, q)
		if err != nil || !found {
			return Entry{Kind: KindNotFound}, err
		}
		return Entry{Kind: KindFound, Lat: res.Point.Lat, Lon: res.Point.Lon, Address: res.Address}, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Point: types.Point{Lat: entry.Lat, Lon: entry.Lon}, Address: entry.Address}, nil
}

// Reverse returns the address of a point.
func (r *Resolver) Reverse(ctx context.Context, p types.Point) (string, error) {
	if err := types.ValidatePoint(p); err != nil {
		return "", err
	}
	key := r.key("reverse", fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon))
	entry, err := r.lookup(ctx, "reverse", key, func(ctx context.Context) (Entry, error) {
		addr, found, err := r.geocoder.Reverse(ctx, p)
		if err != nil || !found {
			return Entry{Kind: KindNotFound}, err
		}
		return Entry{Kind: KindFound, Lat: p.Lat, Lon: p.Lon, Address: addr}, nil
	})
	if err != nil {
		return "", err
	}
	return entry.Address, nil
}

// AddressOrFallback reverse geocodes p and degrades every failure to
// FallbackAddress.
func (r *Resolver) AddressOrFallback(ctx context.Context, p types.Point) string {
	addr, err := r.Reverse(ctx, p)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			types.LoggerFromContext(ctx, r.logger).WarnContext(ctx, "reverse geocode failed, using fallback address",
				"lat", p.Lat, "lon", p.Lon, "error", err)
		}
		return FallbackAddress
	}
	return addr
}

func (r *Resolver) key(op, value string) string {
	if r.namespace == "" {
		return op + ":" + value
	}
	return r.namespace + ":" + op + ":" + value
}

// lookup serves op from the cache or the upstream fetch, collapsing
// concurrent fetches of the same key. Upstream errors are never cached.
func (r *Resolver) lookup(ctx context.Context, op, key string, fetch func(context.Context) (Entry, error)) (Entry, error) {
	logger := types.LoggerFromContext(ctx, r.logger)

	if r.cache != nil {
		entry, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "geocode cache read failed", "key", key, "error", err)
		}
		r.recorder.GeocodeCacheLookup(op, ok)
		if ok {
			return entryResult(entry)
		}
	}

	// The fetch is shared by every caller of key, so it runs detached from
	// ctx. A caller that goes away only stops waiting.
	ch := r.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		entry, err := fetch(fetchCtx)
		if err != nil {
			r.recorder.GeocodeUpstream(op, OutcomeError)
			return Entry{}, err
		}
		ttl := r.foundTTL
		if entry.Kind == KindFound {
			r.recorder.GeocodeUpstream(op, OutcomeFound)
		} else {
			r.recorder.GeocodeUpstream(op, OutcomeNotFound)
			ttl = r.notFoundTTL
		}
		if r.cache != nil && ttl > 0 {
			if err := r.cache.Set(fetchCtx, key, entry, ttl); err != nil {
				logger.WarnContext(ctx, "geocode cache write failed", "key", key, "error", err)
			}
		}
		return entry, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Entry{}, resolverError(ctx.Err())
	}
	if res.Err != nil {
		logger.WarnContext(ctx, "geocoder call failed", "op", op, "error", res.Err)
		return Entry{}, resolverError(res.Err)
	}
	return entryResult(res.Val.(Entry))
}

func entryResult(e Entry) (Entry, error) {
	if e.Kind != KindFound {
		return Entry{}, notFoundError()
	}
	return e, nil
}

func notFoundError() error {
	return types.NewAppError(types.ErrCodeNotFoundLocation, "no location matched", ErrNotFound)
}

func resolverError(cause error) error {
	return types.NewAppError(types.ErrCodeUpstreamGeocoder, "geocoder unavailable, try again",
		fmt.Errorf("%w: %w", ErrResolver, cause))
}
