package server

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fieldsense/waterline/internal/deviceapi"
)

// seedFile is the YAML shape of a device fixture file.
type seedFile struct {
	Devices []seedDevice `yaml:"devices"`
	Users   []seedUser   `yaml:"users"`
}

type seedDevice struct {
	DeviceID  string   `yaml:"deviceId"`
	Label     string   `yaml:"label"`
	FieldName string   `yaml:"fieldName"`
	Lat       *float64 `yaml:"lat"`
	Lon       *float64 `yaml:"lon"`
}

type seedUser struct {
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	GivenName  string `yaml:"givenName"`
	FamilyName string `yaml:"familyName"`
}

// SeedFromFile loads device and user fixtures from a YAML file.
// Seeded users are created pre-confirmed so they can log in directly.
func (s *Server) SeedFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, d := range seed.Devices {
		id := d.DeviceID
		if id == "" {
			id = newDeviceID()
		}
		s.devices.Add(deviceapi.Device{
			DeviceID:  id,
			Label:     d.Label,
			FieldName: d.FieldName,
			Lat:       d.Lat,
			Lon:       d.Lon,
		})
	}

	for _, u := range seed.Users {
		user, code, err := s.users.Create(u.Email, u.Password, u.GivenName, u.FamilyName)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
		if err := s.users.Confirm(user.Email, code); err != nil {
			return fmt.Errorf("failed to confirm seeded user %s: %w", u.Email, err)
		}
	}

	log.Info().
		Int("devices", len(seed.Devices)).
		Int("users", len(seed.Users)).
		Str("path", path).
		Msg("seeded from file")

	return nil
}

// SeedDefaults populates a handful of unclaimed sensors so the client
// has something to browse on a fresh start.
func (s *Server) SeedDefaults(count int) {
	if count <= 0 {
		count = 5
	}

	for i := 0; i < count; i++ {
		s.devices.Add(deviceapi.Device{
			DeviceID:  newDeviceID(),
			Label:     fmt.Sprintf("water-level sensor %d", i+1),
			FieldName: fmt.Sprintf("paddock-%d", i+1),
		})
	}

	log.Info().Int("devices", count).Msg("seeded default devices")
}

// newDeviceID generates a short registry identifier.
func newDeviceID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "wl-" + base58.Encode(buf)[:8]
}
