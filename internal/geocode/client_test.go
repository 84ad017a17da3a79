package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotshare/internal/model"
)

func newGeocodeServer(t *testing.T, body string, status int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.NotEmpty(t, r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"status":"OK","results":[{"formatted_address":"Tverskaya 1","geometry":{"location":{"lat":55.7575,"lng":37.6130}}}]}`

func TestGeocodeSuccess(t *testing.T) {
	var calls int32
	srv := newGeocodeServer(t, okBody, http.StatusOK, &calls)

	c := NewGoogleClient(srv.URL, "test-key")
	p, err := c.Geocode(context.Background(), "Tverskaya 1, Moscow")
	require.NoError(t, err)
	assert.InDelta(t, 55.7575, p.Lat, 1e-9)
	assert.InDelta(t, 37.6130, p.Lng, 1e-9)
	assert.Equal(t, int32(1), calls)
}

func TestGeocodeFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, http.StatusOK},
		{"denied", `{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`, http.StatusOK},
		{"server error", `oops`, http.StatusInternalServerError},
		{"malformed json", `{"status":`, http.StatusOK},
		{"out of range", `{"status":"OK","results":[{"geometry":{"location":{"lat":123,"lng":0}}}]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newGeocodeServer(t, tt.body, tt.status, &calls)
			c := NewGoogleClient(srv.URL, "test-key")

			_, err := c.Geocode(context.Background(), "Nowhere 0")
			assert.ErrorIs(t, err, model.ErrGeocodeUnavailable)
		})
	}

	_, err := NewGoogleClient("http://127.0.0.1:0", "test-key").Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, model.ErrGeocodeUnavailable)
}

func TestGeocodeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGoogleClient(url, "test-key").Geocode(context.Background(), "Tverskaya 1")
	assert.ErrorIs(t, err, model.ErrGeocodeUnavailable)
}

func TestGeocodeRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var calls int32
	srv := newGeocodeServer(t, okBody, http.StatusOK, &calls)

	c := NewGoogleClient(srv.URL, "test-key")
	c.UseRedisCache(rdb, time.Minute)

	first, err := c.Geocode(context.Background(), "Tverskaya 1")
	require.NoError(t, err)
	second, err := c.Geocode(context.Background(), "  TVERSKAYA 1 ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, mr.Exists("geocode:tverskaya 1"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Geocode(context.Background(), "Tverskaya 1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
