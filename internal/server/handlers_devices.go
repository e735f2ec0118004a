package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fieldsense/waterline/internal/deviceapi"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentUser(r); err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	devices := s.devices.List()
	sortDevices(devices)
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAvailableDevices(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentUser(r); err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	devices := s.devices.ListAvailable()
	sortDevices(devices)
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentUser(r); err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	deviceID := mux.Vars(r)["deviceId"]
	device, err := s.devices.Get(deviceID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req deviceapi.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := s.devices.Claim(req.DeviceID, user.ID, req.Lat, req.Lon)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			s.writeError(w, http.StatusNotFound, "device not found")
		case errors.Is(err, ErrAlreadyClaimed):
			s.writeError(w, http.StatusConflict, "already claimed")
		default:
			s.writeError(w, http.StatusInternalServerError, "claim failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	if _, err := s.devices.Get(deviceID); err != nil {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	s.writeJSON(w, http.StatusOK, s.telemetry.Latest(deviceID))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	if _, err := s.devices.Get(deviceID); err != nil {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}

	hours := intQuery(r, "hours", 24, maxHistoryHours)
	limit := intQuery(r, "limit", 100, maxHistoryLimit)

	// History is synthetic and deterministic, safe to cache briefly.
	w.Header().Set("Cache-Control", "max-age=60")

	s.writeJSON(w, http.StatusOK, s.telemetry.History(deviceID, hours, limit))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	owned := s.devices.OwnedBy(user.ID)
	sortDevices(owned)

	rows := make([]deviceapi.DeviceStats, 0, len(owned))
	for _, d := range owned {
		latest := s.telemetry.Latest(d.DeviceID)
		rows = append(rows, deviceapi.DeviceStats{
			DeviceID:       d.DeviceID,
			Label:          d.Label,
			FieldName:      d.FieldName,
			Lat:            d.Lat,
			Lon:            d.Lon,
			LatestDistance: latest.Distance,
			LastUpdate:     latest.Time,
		})
	}

	s.writeJSON(w, http.StatusOK, deviceapi.Stats{
		UserID:         user.ID,
		TotalDevices:   s.devices.Count(),
		ClaimedDevices: len(owned),
		Devices:        rows,
	})
}

// Query parameter caps. The endpoint is reachable without
// authentication, so an oversized limit must not translate into an
// oversized allocation.
const (
	maxHistoryHours = 24 * 365
	maxHistoryLimit = 10000
)

func intQuery(r *http.Request, name string, fallback, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

func sortDevices(devices []deviceapi.Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
}
