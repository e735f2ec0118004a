package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/waterline/internal/deviceapi"
)

func TestDeviceStoreClaim(t *testing.T) {
	t.Run("claims an unclaimed device", func(t *testing.T) {
		store := NewDeviceStore()
		store.Add(deviceapi.Device{DeviceID: "wl-001"})

		device, err := store.Claim("wl-001", "user-1", -34.5, 148.3)
		require.NoError(t, err)
		assert.Equal(t, deviceapi.ClaimStatusClaimed, device.ClaimStatus)
		assert.Equal(t, "user-1", device.OwnerID)
		require.NotNil(t, device.Lat)
		assert.InDelta(t, -34.5, *device.Lat, 0.001)
	})

	t.Run("second claim fails", func(t *testing.T) {
		store := NewDeviceStore()
		store.Add(deviceapi.Device{DeviceID: "wl-001"})

		_, err := store.Claim("wl-001", "user-1", 0, 0)
		require.NoError(t, err)

		_, err = store.Claim("wl-001", "user-2", 0, 0)
		require.ErrorIs(t, err, ErrAlreadyClaimed)

		// Even the owner cannot claim twice.
		_, err = store.Claim("wl-001", "user-1", 0, 0)
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("unknown device", func(t *testing.T) {
		store := NewDeviceStore()
		_, err := store.Claim("wl-missing", "user-1", 0, 0)
		require.ErrorIs(t, err, ErrDeviceNotFound)
	})

	t.Run("exactly one concurrent claim wins", func(t *testing.T) {
		store := NewDeviceStore()
		store.Add(deviceapi.Device{DeviceID: "wl-001"})

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if _, err := store.Claim("wl-001", "user", 0, 0); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
	})
}

func TestDeviceStoreListAvailable(t *testing.T) {
	store := NewDeviceStore()
	store.Add(deviceapi.Device{DeviceID: "wl-001"})
	store.Add(deviceapi.Device{DeviceID: "wl-002"})

	_, err := store.Claim("wl-001", "user-1", 0, 0)
	require.NoError(t, err)

	available := store.ListAvailable()
	require.Len(t, available, 1)
	assert.Equal(t, "wl-002", available[0].DeviceID)

	assert.Len(t, store.List(), 2)
	assert.Equal(t, 2, store.Count())
}

func TestDeviceStoreOwnedBy(t *testing.T) {
	store := NewDeviceStore()
	store.Add(deviceapi.Device{DeviceID: "wl-001"})
	store.Add(deviceapi.Device{DeviceID: "wl-002"})
	store.Add(deviceapi.Device{DeviceID: "wl-003"})

	_, err := store.Claim("wl-001", "user-1", 0, 0)
	require.NoError(t, err)
	_, err = store.Claim("wl-003", "user-2", 0, 0)
	require.NoError(t, err)

	owned := store.OwnedBy("user-1")
	require.Len(t, owned, 1)
	assert.Equal(t, "wl-001", owned[0].DeviceID)
}

func TestDeviceStoreGetReturnsCopy(t *testing.T) {
	store := NewDeviceStore()
	store.Add(deviceapi.Device{DeviceID: "wl-001"})

	device, err := store.Get("wl-001")
	require.NoError(t, err)

	device.ClaimStatus = deviceapi.ClaimStatusClaimed

	fresh, err := store.Get("wl-001")
	require.NoError(t, err)
	assert.Equal(t, deviceapi.ClaimStatusUnclaimed, fresh.ClaimStatus)
}
