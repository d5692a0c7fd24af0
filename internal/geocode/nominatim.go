package geocode

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"circlemap/internal/external"
	"circlemap/internal/types"

	"github.com/tidwall/gjson"
)

// Nominatim defaults.
const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultLanguage     = "ja"
	DefaultTimeout      = 10 * time.Second
	DefaultUserAgent    = "circlemap/1.0 (+https://github.com/circlemap/circlemap)"

	maxResponseBytes = 1 << 20
)

// NominatimConfig configures a NominatimClient.
type NominatimConfig struct {
	BaseURL     string
	Language    string
	Timeout     time.Duration
	UserAgent   string
	MinInterval time.Duration
	Retry       external.RetryPolicy
	Breaker     external.BreakerSettings
}

// NominatimClient is a Geocoder backed by the Nominatim HTTP API.
type NominatimClient struct {
	base     *external.BaseClient
	baseURL  string
	language string
}

// NewNominatimClient creates a client. Zero config fields take the package
// defaults. httpClient may be nil.
func NewNominatimClient(cfg NominatimConfig, httpClient *http.Client, opts ...external.BaseClientOption) *NominatimClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNominatimURL
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = external.DefaultBreakerSettings("nominatim")
	}
	// Copy so the caller's client keeps its own timeout.
	client := &http.Client{}
	if httpClient != nil {
		c := *httpClient
		client = &c
	}
	client.Timeout = cfg.Timeout

	opts = append([]external.BaseClientOption{
		external.WithMinInterval(cfg.MinInterval),
		external.WithBreaker(external.NewBreaker(cfg.Breaker)),
	}, opts...)

	return &NominatimClient{
		base:     external.NewBaseClient(client, cfg.Breaker.Name, cfg.Retry, cfg.UserAgent, opts...),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
	}
}

// Language returns the display language sent with every request.
func (c *NominatimClient) Language() string {
	return c.language
}

// Search implements Geocoder using /search and the first match.
func (c *NominatimClient) Search(ctx context.Context, query string) (Resolution, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return Resolution{}, false, err
	}
	if !gjson.ValidBytes(body) {
		return Resolution{}, false, fmt.Errorf("nominatim search: malformed response")
	}

	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return Resolution{}, false, nil
	}
	lat, err := coordinate(first.Get("lat"))
	if err != nil {
		return Resolution{}, false, fmt.Errorf("nominatim search: lat: %w", err)
	}
	lon, err := coordinate(first.Get("lon"))
	if err != nil {
		return Resolution{}, false, fmt.Errorf("nominatim search: lon: %w", err)
	}
	return Resolution{
		Point:   types.Point{Lat: lat, Lon: lon},
		Address: first.Get("display_name").String(),
	}, true, nil
}

// Reverse implements Geocoder using /reverse.
func (c *NominatimClient) Reverse(ctx context.Context, p types.Point) (string, bool, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	body, err := c.get(ctx, "/reverse", params)
	if err != nil {
		return "", false, err
	}
	if !gjson.ValidBytes(body) {
		return "", false, fmt.Errorf("nominatim reverse: malformed response")
	}
	// Nominatim answers 200 with {"error": "Unable to geocode"} for open sea
	// and other unaddressable points.
	if gjson.GetBytes(body, "error").Exists() {
		return "", false, nil
	}
	name := gjson.GetBytes(body, "display_name").String()
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

func (c *NominatimClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("accept-language", c.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nominatim %s: unexpected status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("nominatim %s: read body: %w", path, err)
	}
	return body, nil
}

// coordinate accepts both the string and numeric encodings Nominatim uses.
func coordinate(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Num, nil
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", v.Str, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite value %q", v.Str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("missing or non-numeric value")
	}
}
