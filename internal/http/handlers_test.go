package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/registry"
	"wisefido-envlog/internal/repository"
	"wisefido-envlog/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type stubSender struct {
	err error
}

func (s *stubSender) Send(context.Context, models.Device, models.DeviceCommand) error {
	return s.err
}

type testAPI struct {
	handler http.Handler
	sender  *stubSender
	hub     *broadcast.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	hub := broadcast.NewHub(broadcast.Options{}, logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	readings, err := buffer.NewHistory[models.Reading](100)
	require.NoError(t, err)
	sensors, err := buffer.NewHistory[models.IRSensor](16)
	require.NoError(t, err)

	reg := registry.NewRegistry(repository.NewMemoryDevicesRepo(), hub, nil, time.Second, logger)
	ingest := service.NewIngestService(readings, repository.NewMemoryReadingsRepo(0), reg, hub, nil, time.Second, logger)
	sensorSvc := service.NewSensorService(sensors, repository.NewMemorySensorsRepo(), reg, hub, nil, time.Second, logger)
	sender := &stubSender{}
	relay := service.NewRelayService(sensorSvc, reg, sender, hub, nil, time.Second, logger)

	router := NewRouter(logger)
	router.RegisterEnvLogRoutes(NewEnvLogHandler(ingest, 28, logger))
	router.RegisterDeviceRoutes(NewDeviceHandler(service.NewDeviceService(reg), logger))
	router.RegisterSensorRoutes(NewSensorHandler(sensorSvc, logger))
	router.RegisterESPRoutes(NewESPHandler(relay, logger))
	health := NewHealthHandler(hub.Count)
	health.AddCheck("mqtt", func() bool { return false })
	router.RegisterOpsRoutes(health, nil)

	return &testAPI{
		handler: WithCORS(router, []string{"http://localhost:5173"}),
		sender:  sender,
		hub:     hub,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func reading(i int) string {
	return fmt.Sprintf(`{"temperatureSht":%d.5,"temperatureQmp":21.9,"humidity":40,"pressure":1013.2}`, i)
}

func TestEnvLogs_CreateAndList(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/env-logs", reading(21))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, env.Code)
	var created models.Reading
	require.NoError(t, json.Unmarshal(env.Result, &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, 21.5, created.TemperatureSht)

	rec, env = api.do(t, http.MethodPost, "/env-logs", `{"temperatureSht":1,"temperatureQmp":2,"humidity":"abc","pressure":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ResultError, env.Code)
	assert.Contains(t, env.Message, "humidity")

	for i := 0; i < 3; i++ {
		api.do(t, http.MethodPost, "/env-logs", reading(i))
	}

	_, env = api.do(t, http.MethodGet, "/env-logs?limit=2", "")
	var list []models.Reading
	require.NoError(t, json.Unmarshal(env.Result, &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(4), list[0].ID)
	assert.Equal(t, int64(3), list[1].ID)
}

func TestEnvLogs_DefaultLimit(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 30; i++ {
		api.do(t, http.MethodPost, "/env-logs", reading(i))
	}

	for _, q := range []string{"", "?limit=abc", "?limit=0", "?limit=-3"} {
		_, env := api.do(t, http.MethodGet, "/env-logs"+q, "")
		var list []models.Reading
		require.NoError(t, json.Unmarshal(env.Result, &list))
		assert.Len(t, list, 28, "query %q", q)
	}
}

func TestEnvLogs_Latest(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(t, http.MethodGet, "/env-logs/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	api.do(t, http.MethodPost, "/env-logs", reading(1))
	api.do(t, http.MethodPost, "/env-logs", reading(2))

	rec, env := api.do(t, http.MethodGet, "/env-logs/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest models.Reading
	require.NoError(t, json.Unmarshal(env.Result, &latest))
	assert.Equal(t, 2.5, latest.TemperatureSht)

	rec, env = api.do(t, http.MethodGet, fmt.Sprintf("/devices/%d/latest", latest.DeviceID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var byDevice models.Reading
	require.NoError(t, json.Unmarshal(env.Result, &byDevice))
	assert.Equal(t, latest.ID, byDevice.ID)

	rec, _ = api.do(t, http.MethodGet, "/devices/999/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnvLogs_Export(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.do(t, http.MethodPost, "/env-logs", reading(i))
	}

	rec, _ := api.do(t, http.MethodGet, "/env-logs/export?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(readingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ReadingsExportHeader[0], rows[0][0])
	assert.Equal(t, "3", rows[1][0])
}

func TestDevices(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/devices", `{"macAddress":"AA:BB:CC:DD:EE:01","ipAddress":"10.0.0.5","name":"hall","collectMetrics":false}`)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var d models.Device
	require.NoError(t, json.Unmarshal(env.Result, &d))
	assert.Equal(t, "aa:bb:cc:dd:ee:01", d.MacAddress)
	assert.False(t, d.CollectMetrics)

	api.do(t, http.MethodPost, "/devices", `{"macAddress":"aa:bb:cc:dd:ee:02"}`)

	_, env = api.do(t, http.MethodGet, "/devices?collect=true", "")
	var list []models.Device
	require.NoError(t, json.Unmarshal(env.Result, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", list[0].MacAddress)

	_, env = api.do(t, http.MethodGet, "/devices", "")
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Len(t, list, 2)

	rec, _ = api.do(t, http.MethodGet, "/devices?collect=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = api.do(t, http.MethodPost, "/devices", `{"macAddress":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = api.do(t, http.MethodPost, "/devices", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func createSensor(t *testing.T, api *testAPI) models.IRSensor {
	t.Helper()
	api.do(t, http.MethodPost, "/devices", `{"macAddress":"aa:bb:cc:dd:ee:10","ipAddress":"10.0.0.10"}`)
	rec, env := api.do(t, http.MethodPost, "/sensor-list", `{"name":"tv","data":{"raw":[1,2,3]}}`)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var sn models.IRSensor
	require.NoError(t, json.Unmarshal(env.Result, &sn))
	return sn
}

func TestSensorList_CRUD(t *testing.T) {
	api := newTestAPI(t)
	sn := createSensor(t, api)
	assert.Equal(t, `{"raw":[1,2,3]}`, sn.Data)

	rec, env := api.do(t, http.MethodPut, fmt.Sprintf("/sensor-list/%d", sn.ID), `{"name":"living room tv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed models.IRSensor
	require.NoError(t, json.Unmarshal(env.Result, &renamed))
	assert.Equal(t, "living room tv", renamed.Name)

	_, env = api.do(t, http.MethodGet, "/sensor-list", "")
	var list []models.IRSensor
	require.NoError(t, json.Unmarshal(env.Result, &list))
	require.Len(t, list, 1)

	rec, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/sensor-list/%d", sn.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/sensor-list/%d", sn.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = api.do(t, http.MethodPut, "/sensor-list/abc", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestESP_Commands(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(t, http.MethodPost, "/esp/learn", `{"sensorId":99}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sn := createSensor(t, api)

	rec, env := api.do(t, http.MethodPost, "/esp/learn", fmt.Sprintf(`{"sensorId":%d}`, sn.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket models.CommandTicket
	require.NoError(t, json.Unmarshal(env.Result, &ticket))
	assert.NotEmpty(t, ticket.Ticket)
	assert.Equal(t, models.CommandLearn, ticket.Command)

	api.sender.err = errors.New("no route to host")
	rec, _ = api.do(t, http.MethodPost, "/esp/send", fmt.Sprintf(`{"sensorId":%d,"learnedIRData":"ignored"}`, sn.ID))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/esp/result", fmt.Sprintf(`{"sensorId":%d,"command":"learn","success":true,"data":"NEC:0x20DF10EF"}`, sn.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, env = api.do(t, http.MethodGet, "/sensor-list", "")
	var list []models.IRSensor
	require.NoError(t, json.Unmarshal(env.Result, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "NEC:0x20DF10EF", list[0].Data)

	rec, env = api.do(t, http.MethodPost, "/esp/result", fmt.Sprintf(`{"sensorId":%d,"command":"learn","success":true}`, sn.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "data")
	_, env = api.do(t, http.MethodGet, "/sensor-list", "")
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Equal(t, "NEC:0x20DF10EF", list[0].Data)

	rec, _ = api.do(t, http.MethodPost, "/esp/result", `{"sensorId":12345,"command":"learn","success":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMethods(t *testing.T) {
	api := newTestAPI(t)
	sub := api.hub.Subscribe()
	defer api.hub.Unsubscribe(sub)

	rec, env := api.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st healthStatus
	require.NoError(t, json.Unmarshal(env.Result, &st))
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, 1, st.Subscribers)
	assert.False(t, st.Dependencies["mqtt"])

	rec, _ = api.do(t, http.MethodPatch, "/env-logs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/env-logs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 28, parseLimit("", 28))
	assert.Equal(t, 28, parseLimit("5abc", 28))
	assert.Equal(t, 5, parseLimit("5", 28))
}

func TestResultEnvelope(t *testing.T) {
	b, err := json.Marshal(Fail("sensor 3 not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":-1,"type":"error","message":"sensor 3 not found","result":null}`, string(b))

	b, err = json.Marshal(Ok([]int{1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":2000,"type":"success","message":"ok","result":[1]}`, string(b))
}
