package models

import "time"

// Alert sources.
const (
	AlertSourceManual    = "manual"
	AlertSourceThreshold = "threshold"
)

// Alert is one refill alert raised against a device. At most one unresolved
// alert may exist per device; resolution is one-way, a recurring condition
// creates a fresh alert instead of reopening an old one.
type Alert struct {
	ID            string     `json:"id"`
	DeviceID      string     `json:"device_id"`
	ConsumerID    string     `json:"consumer_id"`
	DistributorID string     `json:"distributor_id"`
	TankLevel     float64    `json:"tank_level"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}
