package models

import "time"

// DiscoveryRecord is one host observed during a network sweep.
type DiscoveryRecord struct {
	ID        int64     `json:"id"`
	SweepID   string    `json:"sweep_id"`
	IPAddress string    `json:"ip_address"`
	MAC       string    `json:"mac"`
	Hostname  string    `json:"hostname"`
	Vendor    string    `json:"vendor"`
	OpenPorts []int     `json:"open_ports"`
	SeenAt    time.Time `json:"seen_at"`
}

// BlockedSite is a website-blocking rule keyed by hostname.
type BlockedSite struct {
	ID        int64     `json:"id"`
	Hostname  string    `json:"hostname"`
	Reason    string    `json:"reason,omitempty"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// RouterConfig holds the managed router settings.
type RouterConfig struct {
	Address    string    `json:"address"`
	AdminUser  string    `json:"admin_user"`
	DNSServers []string  `json:"dns_servers"`
	DHCPRange  string    `json:"dhcp_range"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Alert severity values.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a notification raised by the service (device offline, new host,
// blocked-site hit).
type Alert struct {
	ID        int64      `json:"id"`
	Severity  string     `json:"severity"`
	Message   string     `json:"message"`
	DeviceID  *string    `json:"device_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	AckedBy   *string    `json:"acked_by,omitempty"`
	AckedAt   *time.Time `json:"acked_at,omitempty"`
}
