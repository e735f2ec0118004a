package deviceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/waterline/internal/api"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) AccessToken() string { return s.token }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-signing-secret-minimum-32-characters"))
	require.NoError(t, err)
	return raw
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(api.Config{BaseURL: srv.URL}, opts...)
}

func TestList(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/devices", r.URL.Path)
		json.NewEncoder(w).Encode([]Device{
			{DeviceID: "wl-001", ClaimStatus: ClaimStatusClaimed},
			{DeviceID: "wl-002", ClaimStatus: ClaimStatusUnclaimed},
		})
	}))

	devices, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "wl-001", devices[0].DeviceID)
}

func TestBearerHeader(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+access, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]Device{})
	}), WithTokenSource(&staticTokens{token: access}, nil))

	_, err := client.List(context.Background())
	require.NoError(t, err)
}

func TestExpiredTokenPreflight(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Hour))

	var requests, evictions int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}), WithTokenSource(&staticTokens{token: stale}, func() {
		atomic.AddInt32(&evictions, 1)
	}))

	_, err := client.List(context.Background())
	require.ErrorIs(t, err, api.ErrTokenExpired)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests), "expired token must never reach the backend")
	assert.Equal(t, int32(1), atomic.LoadInt32(&evictions))
}

func TestEvictOn401(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))

	var evictions int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "token revoked"})
	}), WithTokenSource(&staticTokens{token: access}, func() {
		atomic.AddInt32(&evictions, 1)
	}))

	_, err := client.List(context.Background())
	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&evictions))
}

func TestClaim(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/devices/claim", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)

			var req ClaimRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "wl-001", req.DeviceID)
			assert.InDelta(t, -34.5, req.Lat, 0.001)

			json.NewEncoder(w).Encode(Device{DeviceID: "wl-001", ClaimStatus: ClaimStatusClaimed})
		}))

		device, err := client.Claim(context.Background(), ClaimRequest{DeviceID: "wl-001", Lat: -34.5, Lon: 148.3})
		require.NoError(t, err)
		assert.Equal(t, ClaimStatusClaimed, device.ClaimStatus)
	})

	t.Run("conflict maps to ErrAlreadyClaimed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Device already claimed"})
		}))

		_, err := client.Claim(context.Background(), ClaimRequest{DeviceID: "wl-001"})
		require.ErrorIs(t, err, api.ErrAlreadyClaimed)
	})

	t.Run("not found maps to ErrDeviceNotFound", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Device not found"})
		}))

		_, err := client.Claim(context.Background(), ClaimRequest{DeviceID: "wl-missing"})
		require.ErrorIs(t, err, api.ErrDeviceNotFound)
	})
}

func TestCookieSessionClaim(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/auth/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&issued, 1)
		json.NewEncoder(w).Encode(map[string]string{"csrf_token": "single-use-token"})
	})
	mux.HandleFunc("POST /devices/claim", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "single-use-token" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"detail": "missing or invalid CSRF token"})
			return
		}
		json.NewEncoder(w).Encode(Device{DeviceID: "wl-001", ClaimStatus: ClaimStatusClaimed})
	})
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Device{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := New(api.Config{BaseURL: srv.URL},
		WithCookieSession(srv.URL+"/api/v1/auth/csrf-token"))

	device, err := client.Claim(context.Background(), ClaimRequest{DeviceID: "wl-001", Lat: -34.5, Lon: 148.3})
	require.NoError(t, err)
	assert.Equal(t, ClaimStatusClaimed, device.ClaimStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&issued))

	// Reads are not mutating and skip the token dance.
	_, err = client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&issued))
}

func TestGetNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Device not found"})
	}))

	_, err := client.Get(context.Background(), "wl-missing")
	require.ErrorIs(t, err, api.ErrDeviceNotFound)
}

func TestHistoryQuery(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/devices/wl-001/history", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("hours"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(History{
			DeviceID: "wl-001",
			History:  []HistoryEntry{{Time: "2026-08-31T10:00:00Z", Distance: 42.5}},
			Count:    1,
		})
	}))

	history, err := client.History(context.Background(), "wl-001", 12, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Count)
	assert.InDelta(t, 42.5, history.History[0].Distance, 0.001)
}

func TestRetry(t *testing.T) {
	t.Run("retries transient 5xx", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode([]Device{{DeviceID: "wl-001"}})
		}), WithRetry())

		devices, err := client.List(context.Background())
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Device not found"})
		}), WithRetry())

		_, err := client.Get(context.Background(), "wl-missing")
		require.ErrorIs(t, err, api.ErrDeviceNotFound)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestCaching(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		json.NewEncoder(w).Encode(History{DeviceID: "wl-001", Count: 0})
	}), WithCaching())

	_, err := client.History(context.Background(), "wl-001", 24, 100)
	require.NoError(t, err)
	_, err = client.History(context.Background(), "wl-001", 24, 100)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second read should be served from cache")
}
