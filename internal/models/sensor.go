package models

import "time"

// IRSensor named learned infrared signal bound to a device.
// Data is opaque; it is stored and replayed verbatim.
type IRSensor struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"deviceId"`
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key implements buffer.Keyed
func (s IRSensor) Key() int64 { return s.ID }

// Command names understood by IR devices
const (
	CommandLearn   = "learn"
	CommandExecute = "execute"
)

// CommandTicket acknowledgement returned once a command has been handed to the transport
type CommandTicket struct {
	Ticket   string    `json:"ticket"`
	SensorID int64     `json:"sensorId"`
	DeviceID int64     `json:"deviceId"`
	Command  string    `json:"command"`
	SentAt   time.Time `json:"sentAt"`
}

// CommandResult asynchronous outcome reported by a device
type CommandResult struct {
	Ticket   string `json:"ticket,omitempty"`
	SensorID int64  `json:"sensorId"`
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	Data     string `json:"data,omitempty"` // learned payload (learn only)
	Error    string `json:"error,omitempty"`
}

// Sensor event status values
const (
	StatusUpdated  = "updated"
	StatusLearned  = "learned"
	StatusExecuted = "executed"
	StatusDeleted  = "deleted"
	StatusError    = "error"
)

// SensorEvent payload of ir_sensor_update
type SensorEvent struct {
	IRSensor
	Command string `json:"command,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// DeviceCommand wire payload handed to a device transport
type DeviceCommand struct {
	Command  string `json:"command"`
	SensorID int64  `json:"sensorId"`
	Data     string `json:"data,omitempty"` // replayed signal (execute only)
	Ticket   string `json:"ticket"`
}
