package models

import "time"

// Device status values.
const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
	DeviceUnknown = "unknown"
)

// Device is a managed asset in the inventory.
type Device struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	IPAddress string     `json:"ip_address"`
	MAC       string     `json:"mac"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Status    string     `json:"status"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DeviceFilter narrows device listings.
type DeviceFilter struct {
	Type   string
	Status string
	Query  string // matches name, IP or MAC
	Limit  int
	Offset int
}
