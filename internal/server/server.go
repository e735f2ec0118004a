// Package server is the local development backend the client defaults
// to. It implements the registry's REST surface with in-memory stores
// and synthetic telemetry; nothing here is meant for production.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	httpmiddleware "github.com/fieldsense/waterline/internal/http"
)

// Config holds the development backend settings.
type Config struct {
	// SigningSecret signs session cookies and issued JWTs. At least 32
	// bytes.
	SigningSecret []byte

	// APIPrefix is prepended to the auth routes, e.g. /api/v1. Device
	// routes are served at the root, matching the deployed registry.
	APIPrefix string

	// SessionTTL bounds cookie sessions, TokenTTL the issued access and
	// identity tokens.
	SessionTTL time.Duration
	TokenTTL   time.Duration

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string

	// SecureCookies marks session cookies Secure. Off by default so the
	// backend works over plain http://localhost.
	SecureCookies bool

	// TelemetryInterval is the spacing of synthetic readings.
	TelemetryInterval time.Duration
}

// Server wires the stores and handlers of the development backend.
type Server struct {
	cfg       Config
	users     *UserStore
	devices   *DeviceStore
	issuer    *SessionIssuer
	telemetry *Telemetry
	logger    zerolog.Logger
}

// New creates a development backend.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	issuer, err := NewSessionIssuer(cfg.SigningSecret, cfg.SessionTTL, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		users:     NewUserStore(),
		devices:   NewDeviceStore(),
		issuer:    issuer,
		telemetry: NewTelemetry(cfg.TelemetryInterval),
		logger:    logger,
	}, nil
}

// Users exposes the user store for seeding.
func (s *Server) Users() *UserStore {
	return s.users
}

// Devices exposes the device store for seeding.
func (s *Server) Devices() *DeviceStore {
	return s.devices
}

// Handler builds the full middleware and routing stack.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// Auth endpoints live under the API prefix.
	ar := r.PathPrefix(s.cfg.APIPrefix + "/auth").Subrouter()
	ar.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	ar.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	ar.HandleFunc("/confirm-signup", s.handleConfirmSignUp).Methods(http.MethodPost)
	ar.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	ar.HandleFunc("/change-password", s.handleChangePassword).Methods(http.MethodPost)
	ar.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	ar.HandleFunc("/confirm-forgot-password", s.handleConfirmForgotPassword).Methods(http.MethodPost)
	ar.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	ar.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	ar.HandleFunc("/csrf-token", s.handleCSRFToken).Methods(http.MethodGet)

	// Device endpoints live at the root, matching the deployed registry.
	r.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/available", s.handleAvailableDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/devices/claim", s.handleClaim).Methods(http.MethodPost)
	r.HandleFunc("/devices/{deviceId}", s.handleGetDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{deviceId}/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/devices/{deviceId}/history", s.handleHistory).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = s.csrfTokenCheck(handler)
	handler = s.withCORS(handler)

	// Fetch-metadata based cross-origin protection on top of the token
	// scheme. Non-browser clients send no Sec-Fetch-Site header and
	// pass through untouched.
	protection := csrf.New()
	handler = protection.Handler(handler)

	handler = httpmiddleware.ClientIPMiddleware()(handler)
	handler = httpmiddleware.RequestLogger(s.logger)(handler)

	return handler
}

// csrfTokenCheck enforces the single-use token on mutating requests in
// cookie mode. Bearer requests skip the dance; endpoints reachable
// before a session exists are exempt because there is nothing to forge
// against yet.
func (s *Server) csrfTokenCheck(next http.Handler) http.Handler {
	exempt := map[string]bool{
		s.cfg.APIPrefix + "/auth/login":                   true,
		s.cfg.APIPrefix + "/auth/refresh":                 true,
		s.cfg.APIPrefix + "/auth/signup":                  true,
		s.cfg.APIPrefix + "/auth/confirm-signup":          true,
		s.cfg.APIPrefix + "/auth/forgot-password":         true,
		s.cfg.APIPrefix + "/auth/confirm-forgot-password": true,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != "" || exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if err := s.issuer.ConsumeCSRFToken(r.Header.Get("X-CSRF-Token")); err != nil {
			s.writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withCORS adds CORS support for browser clients.
func (s *Server) withCORS(h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError answers with the {"detail": ...} shape the clients expect.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
