package store

import (
	"context"
	"strconv"

	"wisefido-envlog/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "env_reading"

// PointWriter subset of api.WriteAPIBlocking
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxMirror copies readings into an InfluxDB bucket for long-range charts
type InfluxMirror struct {
	w PointWriter
}

func NewInfluxMirror(w PointWriter) *InfluxMirror {
	return &InfluxMirror{w: w}
}

func (m *InfluxMirror) MirrorReading(ctx context.Context, r models.Reading) error {
	return m.w.WritePoint(ctx, ReadingPoint(r))
}

// ReadingPoint converts a reading to a line-protocol point tagged by device
func ReadingPoint(r models.Reading) *write.Point {
	tags := map[string]string{
		"device_id": strconv.FormatInt(r.DeviceID, 10),
	}
	fields := map[string]interface{}{
		"temperature_sht": r.TemperatureSht,
		"temperature_qmp": r.TemperatureQmp,
		"humidity":        r.Humidity,
		"pressure":        r.Pressure,
	}
	return influxdb2.NewPoint(influxMeasurement, tags, fields, r.CreatedAt)
}
