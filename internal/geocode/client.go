// Package geocode resolves street addresses to coordinates through the Google Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"spotshare/internal/geo"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
)

// DefaultBaseURL is the public Geocoding API endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoder turns an address into a point. Failures wrap model.ErrGeocodeUnavailable.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// GoogleClient calls the Geocoding API with optional Redis caching of results.
type GoogleClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location geo.Point `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NewGoogleClient constructs a client; an empty baseURL selects DefaultBaseURL.
func NewGoogleClient(baseURL, apiKey string) *GoogleClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GoogleClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching of resolved addresses.
func (c *GoogleClient) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Geocode returns the first result's location for address.
func (c *GoogleClient) Geocode(ctx context.Context, address string) (geo.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Point{}, fmt.Errorf("%w: empty address", model.ErrGeocodeUnavailable)
	}

	cacheKey := "geocode:" + strings.ToLower(address)
	var cached geo.Point
	if c.readCache(ctx, cacheKey, &cached) {
		metrics.IncGeocode("cache")
		return cached, nil
	}

	q := url.Values{}
	q.Set("address", address)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %v", model.ErrGeocodeUnavailable, err)
	}

	var body geocodeResponse
	if err := c.do(req, &body); err != nil {
		metrics.IncGeocode("error")
		return geo.Point{}, fmt.Errorf("%w: %v", model.ErrGeocodeUnavailable, err)
	}
	if body.Status != "OK" || len(body.Results) == 0 {
		metrics.IncGeocode("error")
		if body.ErrorMessage != "" {
			return geo.Point{}, fmt.Errorf("%w: status %s: %s", model.ErrGeocodeUnavailable, body.Status, body.ErrorMessage)
		}
		return geo.Point{}, fmt.Errorf("%w: status %s", model.ErrGeocodeUnavailable, body.Status)
	}

	point := body.Results[0].Geometry.Location
	if !point.Valid() {
		metrics.IncGeocode("error")
		return geo.Point{}, fmt.Errorf("%w: invalid coordinates", model.ErrGeocodeUnavailable)
	}

	metrics.IncGeocode("remote")
	c.writeCache(ctx, cacheKey, point)
	return point, nil
}

func (c *GoogleClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *GoogleClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *GoogleClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
