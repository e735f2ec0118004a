package commands

import (
	"errors"
	"time"

	"github.com/fieldsense/waterline/internal/logger"
	"github.com/fieldsense/waterline/internal/server"
)

type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8003" env:"WATERLINE_LISTEN"`

	SigningSecret string `help:"secret for signing session cookies and tokens (at least 32 bytes)" default:"dev-mode-secret-key-minimum-32-characters-long" env:"WATERLINE_SIGNING_SECRET"`

	APIPrefix   string   `help:"path prefix for auth routes" default:"/api/v1" env:"WATERLINE_API_PREFIX"`
	CORSOrigins []string `help:"allowed CORS origins" default:"http://localhost:3000,http://localhost:5173" env:"WATERLINE_CORS_ORIGINS"`

	SessionTTL time.Duration `help:"session cookie TTL" default:"24h" env:"WATERLINE_SESSION_TTL"`
	TokenTTL   time.Duration `help:"access and identity token TTL" default:"1h" env:"WATERLINE_TOKEN_TTL"`

	SecureCookies bool `help:"mark session cookies Secure (requires HTTPS)" default:"false" env:"WATERLINE_SECURE_COOKIES"`

	Seed              string        `help:"YAML file with seed devices and users" default:"" env:"WATERLINE_SEED"`
	SeedCount         int           `help:"number of synthetic devices when no seed file is given" default:"8"`
	TelemetryInterval time.Duration `help:"spacing of synthetic telemetry readings" default:"5m"`
}

func (c *ServeCmd) Validate() error {
	if len(c.SigningSecret) < 32 {
		return errors.New("signing secret must be at least 32 bytes (--signing-secret or WATERLINE_SIGNING_SECRET)")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting development backend")

	srv, err := server.New(server.Config{
		SigningSecret:     []byte(c.SigningSecret),
		APIPrefix:         c.APIPrefix,
		SessionTTL:        c.SessionTTL,
		TokenTTL:          c.TokenTTL,
		CORSOrigins:       c.CORSOrigins,
		SecureCookies:     c.SecureCookies,
		TelemetryInterval: c.TelemetryInterval,
	}, log)
	if err != nil {
		return err
	}

	if c.Seed != "" {
		if err := srv.SeedFromFile(c.Seed); err != nil {
			return err
		}
		log.Info().Str("file", c.Seed).Msg("Seeded registry from file")
	} else {
		srv.SeedDefaults(c.SeedCount)
		log.Info().Int("devices", c.SeedCount).Msg("Seeded registry with synthetic devices")
	}

	log.Info().Str("addr", c.Listen).Str("prefix", c.APIPrefix).Msg("Listening")
	return configureHTTPServer(c.Listen, srv.Handler()).ListenAndServe()
}
