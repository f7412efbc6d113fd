package service

import (
	"context"
	"net"
	"strings"

	"wisefido-envlog/internal/models"
)

// DeviceRegistry registry operations used by DeviceService
type DeviceRegistry interface {
	DeviceDirectory
	List() []models.Device
	Register(ctx context.Context, d models.Device) models.Device
}

// DeviceService operator-facing device listing and registration
type DeviceService struct {
	registry DeviceRegistry
}

func NewDeviceService(registry DeviceRegistry) *DeviceService {
	return &DeviceService{registry: registry}
}

// List devices; collect filters on collectMetrics when non-nil
func (s *DeviceService) List(collect *bool) []models.Device {
	if collect != nil && *collect {
		return s.registry.ListCollecting()
	}
	all := s.registry.List()
	if collect == nil {
		return all
	}
	out := make([]models.Device, 0, len(all))
	for _, d := range all {
		if !d.CollectMetrics {
			out = append(out, d)
		}
	}
	return out
}

// Register validates and stores an operator-described device
func (s *DeviceService) Register(ctx context.Context, d models.Device) (models.Device, error) {
	d.MacAddress = models.NormalizeMAC(d.MacAddress)
	if d.MacAddress == "" {
		return models.Device{}, &ValidationError{Field: "macAddress", Reason: "required"}
	}
	if _, err := net.ParseMAC(d.MacAddress); err != nil {
		return models.Device{}, &ValidationError{Field: "macAddress", Reason: "not a MAC address"}
	}
	d.IPAddress = strings.TrimSpace(d.IPAddress)
	if d.IPAddress == "" {
		d.IPAddress = models.UnknownIP
	} else if net.ParseIP(d.IPAddress) == nil {
		return models.Device{}, &ValidationError{Field: "ipAddress", Reason: "not an IP address"}
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = models.UnknownName
	}
	if strings.TrimSpace(d.Location) == "" {
		d.Location = models.UnknownLocation
	}
	return s.registry.Register(ctx, d), nil
}
