package service

import (
	"context"
	"testing"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSensorCreate_DefaultsToFirstCollectingDevice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sensorSv.Create(ctx, 0, "tv", "")
	var ue *UnknownEntityError
	require.ErrorAs(t, err, &ue)

	f.registry.Register(ctx, models.Device{MacAddress: "aa:00:00:00:00:01", CollectMetrics: false})
	dev := f.registry.Register(ctx, models.Device{MacAddress: "aa:00:00:00:00:02", CollectMetrics: true})

	sn, err := f.sensorSv.Create(ctx, 0, "tv", "")
	require.NoError(t, err)
	assert.Equal(t, dev.ID, sn.DeviceID)
	assert.Equal(t, int64(1), sn.ID)
}

func TestSensorCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.sensorSv.Create(context.Background(), 0, "  ", "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = f.sensorSv.Create(context.Background(), 42, "fan", "")
	var ue *UnknownEntityError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "device", ue.Kind)
}

func TestSensorRenameAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	dev := f.registry.Register(ctx, models.Device{MacAddress: "aa:00:00:00:00:03", CollectMetrics: true})

	a, err := f.sensorSv.Create(ctx, dev.ID, "fan", "")
	require.NoError(t, err)
	b, err := f.sensorSv.Create(ctx, dev.ID, "light", "")
	require.NoError(t, err)

	renamed, err := f.sensorSv.Rename(ctx, a.ID, "ceiling fan")
	require.NoError(t, err)
	assert.Equal(t, "ceiling fan", renamed.Name)

	list := f.sensorSv.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, "ceiling fan", list[1].Name)

	require.NoError(t, f.sensorSv.Delete(ctx, a.ID))
	assert.Len(t, f.sensorSv.List(), 1)

	var ue *UnknownEntityError
	assert.ErrorAs(t, f.sensorSv.Delete(ctx, a.ID), &ue)
	_, err = f.sensorSv.Rename(ctx, a.ID, "x")
	assert.ErrorAs(t, err, &ue)

	events := f.pub.on(broadcast.TopicSensorUpdate)
	require.Len(t, events, 4)
	last := events[3].(models.SensorEvent)
	assert.True(t, last.Deleted)
	assert.Equal(t, models.StatusDeleted, last.Status)
	assert.Equal(t, a.ID, last.ID)
}

func TestSensorLoad_SeedsIDs(t *testing.T) {
	repo := repository.NewMemorySensorsRepo()
	ctx := context.Background()
	require.NoError(t, repo.SaveSensor(ctx, models.IRSensor{ID: 7, DeviceID: 1, Name: "old"}))

	f := newFixture(t, nil)
	dev := f.registry.Register(ctx, models.Device{MacAddress: "aa:00:00:00:00:04", CollectMetrics: true})
	svc := NewSensorService(f.sensors, repo, f.registry, f.pub, nil, 0, zap.NewNop())
	require.NoError(t, svc.Load(ctx))

	sn, err := svc.Create(ctx, dev.ID, "new", "")
	require.NoError(t, err)
	assert.Equal(t, int64(8), sn.ID)

	stored, err := repo.ListSensors(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSensorCreate_StopsAtCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	dev := f.registry.Register(ctx, models.Device{MacAddress: "aa:00:00:00:00:05", IPAddress: "10.0.0.5", CollectMetrics: true})

	small, err := buffer.NewHistory[models.IRSensor](2)
	require.NoError(t, err)
	repo := repository.NewMemorySensorsRepo()
	svc := NewSensorService(small, repo, f.registry, f.pub, nil, 0, zap.NewNop())

	a, err := svc.Create(ctx, dev.ID, "a", "sig-a")
	require.NoError(t, err)
	_, err = svc.Create(ctx, dev.ID, "b", "sig-b")
	require.NoError(t, err)

	_, err = svc.Create(ctx, dev.ID, "c", "sig-c")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sensor", ve.Field)

	stored, err := repo.ListSensors(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Len(t, svc.List(), 2)

	// the oldest definition stays addressable
	relay := NewRelayService(svc, f.registry, &fakeSender{}, f.pub, nil, 0, zap.NewNop())
	_, err = relay.Execute(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))
	stored, err = repo.ListSensors(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	_, err = svc.Create(ctx, dev.ID, "c", "sig-c")
	require.NoError(t, err)
}

func TestSensorLoad_ReportsOverflow(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemorySensorsRepo()
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, repo.SaveSensor(ctx, models.IRSensor{ID: id, DeviceID: 1, Name: "s"}))
	}

	small, err := buffer.NewHistory[models.IRSensor](2)
	require.NoError(t, err)
	f := newFixture(t, nil)
	svc := NewSensorService(small, repo, f.registry, f.pub, nil, 0, zap.NewNop())

	err = svc.Load(ctx)
	require.ErrorIs(t, err, ErrSensorListFull)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)
}
