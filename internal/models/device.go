package models

import "time"

// Device is one tank device row with its latest reported reading.
type Device struct {
	ID          string    `json:"id"`
	Measurement float64   `json:"measurement"`
	TankLevelCm float64   `json:"tank_level"`
	Timestamp   time.Time `json:"timestamp"`
	ConsumerID  string    `json:"consumer_id,omitempty"`
	Location    string    `json:"location,omitempty"`
	TankType    string    `json:"tank_type,omitempty"`
}

// DevicePatch carries the only device fields writable through the API.
// Nil means "leave unchanged".
type DevicePatch struct {
	Location *string `json:"location,omitempty"`
	TankType *string `json:"tank_type,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p DevicePatch) Empty() bool {
	return p.Location == nil && p.TankType == nil
}

// Reading is one tank level report from the ingestion path.
type Reading struct {
	DeviceID    string    `json:"device_id"`
	Measurement float64   `json:"measurement"`
	TankLevelCm float64   `json:"tank_level"`
	Timestamp   time.Time `json:"timestamp"`
}
