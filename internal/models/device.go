package models

import (
	"strings"
	"time"
)

// PlaceholderAddress identity used for readings that carry no source address
const PlaceholderAddress = "00:00:00:00:00:00"

// placeholder values for descriptive fields of auto-created devices
const (
	UnknownName     = "unknown"
	UnknownLocation = "unknown"
	UnknownIP       = "0.0.0.0"
)

// Device physical source/actuator, identified by MAC address
type Device struct {
	ID             int64     `json:"id"`
	MacAddress     string    `json:"macAddress"`
	IPAddress      string    `json:"ipAddress"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	CollectMetrics bool      `json:"collectMetrics"`
	RegisteredAt   time.Time `json:"registeredAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewPlaceholderDevice builds the default record created on first contact
func NewPlaceholderDevice(address, ip string, now time.Time) Device {
	if address == "" {
		address = PlaceholderAddress
	}
	if ip == "" {
		ip = UnknownIP
	}
	return Device{
		MacAddress:     address,
		IPAddress:      ip,
		Name:           UnknownName,
		Location:       UnknownLocation,
		CollectMetrics: true,
		RegisteredAt:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeMAC canonical form used as the registry key
func NormalizeMAC(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
