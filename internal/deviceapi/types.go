package deviceapi

// ClaimStatus values as reported by the registry.
const (
	ClaimStatusUnclaimed = "unclaimed"
	ClaimStatusClaimed   = "claimed"
)

// Device is a registry record. The client never mutates it directly
// except through a claim request.
type Device struct {
	DeviceID    string   `json:"deviceId"`
	Label       string   `json:"label,omitempty"`
	FieldID     string   `json:"fieldId,omitempty"`
	FieldName   string   `json:"fieldName,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	ClaimStatus string   `json:"claimStatus"`
	OwnerID     string   `json:"ownerId,omitempty"`
	UpdatedAt   string   `json:"updatedAt"`
	CreatedAt   string   `json:"createdAt,omitempty"`
}

// ClaimRequest pins a device to a geographic position, transitioning
// it from unclaimed to claimed exactly once.
type ClaimRequest struct {
	DeviceID string  `json:"deviceId"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// LatestMetric is the most recent water-level reading for a device.
// Time and Distance are nil when no reading exists yet.
type LatestMetric struct {
	DeviceID string   `json:"deviceId"`
	Time     *string  `json:"time"`
	Distance *float64 `json:"distance"`
}

// HistoryEntry is a single reading in a device's history.
type HistoryEntry struct {
	Time     string  `json:"time"`
	Distance float64 `json:"distance"`
}

// History is a device's recent readings, newest first.
type History struct {
	DeviceID string         `json:"deviceId"`
	History  []HistoryEntry `json:"history"`
	Count    int            `json:"count"`
}

// DeviceStats is the per-device row in the dashboard aggregate.
type DeviceStats struct {
	DeviceID       string   `json:"deviceId"`
	Label          string   `json:"label,omitempty"`
	FieldName      string   `json:"fieldName,omitempty"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
	LatestDistance *float64 `json:"latestDistance,omitempty"`
	LastUpdate     *string  `json:"lastUpdate,omitempty"`
}

// Stats is the dashboard aggregate for the current user.
type Stats struct {
	UserID         string        `json:"userId"`
	TotalDevices   int           `json:"totalDevices"`
	ClaimedDevices int           `json:"claimedDevices"`
	Devices        []DeviceStats `json:"devices"`
}
