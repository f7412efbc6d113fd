package models

import "time"

// Reading one environmental sample. Immutable once created.
type Reading struct {
	ID             int64     `json:"id"` // process-local sequence, increasing
	DeviceID       int64     `json:"deviceId"`
	TemperatureSht float64   `json:"temperatureSht"`
	TemperatureQmp float64   `json:"temperatureQmp"`
	Humidity       float64   `json:"humidity"`
	Pressure       float64   `json:"pressure"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Key implements buffer.Keyed
func (r Reading) Key() int64 { return r.ID }

// ReadingInput validated ingestion payload, before a sequence id is assigned
type ReadingInput struct {
	MacAddress     string
	IPAddress      string
	TemperatureSht float64
	TemperatureQmp float64
	Humidity       float64
	Pressure       float64
}
