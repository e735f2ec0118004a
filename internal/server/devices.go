package server

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/internal/deviceapi"
)

// Sentinel errors
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrAlreadyClaimed = errors.New("already claimed")
)

// DeviceStore is an in-memory device registry. The claim transition is
// guarded under the store lock so a device moves from unclaimed to
// claimed exactly once, whichever request arrives first.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*deviceapi.Device
}

// NewDeviceStore creates an empty device registry.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[string]*deviceapi.Device)}
}

// Add registers a device. Existing entries are replaced; this is only
// used by seeding.
func (s *DeviceStore) Add(device deviceapi.Device) {
	if device.ClaimStatus == "" {
		device.ClaimStatus = deviceapi.ClaimStatusUnclaimed
	}
	if device.UpdatedAt == "" {
		device.UpdatedAt = nowISO()
	}
	if device.CreatedAt == "" {
		device.CreatedAt = device.UpdatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.DeviceID] = &device
}

// List returns all devices.
func (s *DeviceStore) List() []deviceapi.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]deviceapi.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	return out
}

// ListAvailable returns devices still open for claiming.
func (s *DeviceStore) ListAvailable() []deviceapi.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]deviceapi.Device, 0)
	for _, d := range s.devices {
		if d.ClaimStatus == deviceapi.ClaimStatusUnclaimed {
			out = append(out, *d)
		}
	}
	return out
}

// Get returns a device by ID.
func (s *DeviceStore) Get(deviceID string) (*deviceapi.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	clone := *d
	return &clone, nil
}

// Claim transitions a device from unclaimed to claimed for ownerID at
// the given position. A second claim fails with ErrAlreadyClaimed no
// matter who owns the device.
func (s *DeviceStore) Claim(deviceID, ownerID string, lat, lon float64) (*deviceapi.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	if d.ClaimStatus == deviceapi.ClaimStatusClaimed {
		return nil, ErrAlreadyClaimed
	}

	d.ClaimStatus = deviceapi.ClaimStatusClaimed
	d.OwnerID = ownerID
	d.Lat = &lat
	d.Lon = &lon
	d.UpdatedAt = nowISO()

	log.Info().
		Str("deviceId", deviceID).
		Str("ownerId", ownerID).
		Msg("device claimed")

	clone := *d
	return &clone, nil
}

// OwnedBy returns the devices claimed by ownerID.
func (s *DeviceStore) OwnedBy(ownerID string) []deviceapi.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]deviceapi.Device, 0)
	for _, d := range s.devices {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out
}

// Count returns the total number of devices.
func (s *DeviceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
