package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-envlog/internal/broadcast"
	"wisefido-envlog/internal/buffer"
	"wisefido-envlog/internal/common/database"
	logpkg "wisefido-envlog/internal/common/logger"
	mqttcommon "wisefido-envlog/internal/common/mqtt"
	rediscommon "wisefido-envlog/internal/common/redis"
	"wisefido-envlog/internal/config"
	"wisefido-envlog/internal/consumer"
	"wisefido-envlog/internal/device"
	httpapi "wisefido-envlog/internal/http"
	"wisefido-envlog/internal/metrics"
	"wisefido-envlog/internal/models"
	"wisefido-envlog/internal/registry"
	"wisefido-envlog/internal/repository"
	"wisefido-envlog/internal/service"
	"wisefido-envlog/internal/store"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "wisefido-envlog"

func main() {
	cfg := config.Load()

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting wisefido-envlog service",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("db_enabled", cfg.DBEnabled),
		zap.Bool("mqtt_enabled", cfg.MQTTEnabled),
		zap.String("device_transport", cfg.Relay.Transport),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	hub := broadcast.NewHub(broadcast.Options{
		SendTimeout:     cfg.Broadcast.SendTimeout,
		SubscriberQueue: cfg.Broadcast.SubscriberQueue,
		InboxSize:       cfg.Broadcast.InboxSize,
	}, log, m)
	go hub.Run(ctx)

	// Repositories: PostgreSQL when reachable, in-memory otherwise
	var (
		db           *sql.DB
		readingsRepo repository.ReadingsRepository
		devicesRepo  repository.DevicesRepository
		sensorsRepo  repository.SensorsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for wisefido-envlog")
		} else {
			log.Warn("DB enabled but connection failed, falling back to in-memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		readingsRepo = repository.NewPostgresReadingsRepo(db, log)
		devicesRepo = repository.NewPostgresDevicesRepo(db, log)
		sensorsRepo = repository.NewPostgresSensorsRepo(db, log)
	} else {
		readingsRepo = repository.NewMemoryReadingsRepo(cfg.Buffer.ReadingCapacity)
		devicesRepo = repository.NewMemoryDevicesRepo()
		sensorsRepo = repository.NewMemorySensorsRepo()
	}

	readings, err := buffer.NewHistory[models.Reading](cfg.Buffer.ReadingCapacity)
	if err != nil {
		log.Fatal("Invalid reading buffer capacity", zap.Error(err))
	}
	sensors, err := buffer.NewHistory[models.IRSensor](cfg.Buffer.SensorCapacity)
	if err != nil {
		log.Fatal("Invalid sensor buffer capacity", zap.Error(err))
	}

	devices := registry.NewRegistry(devicesRepo, hub, m, cfg.Ingest.PersistTimeout, log)
	ingest := service.NewIngestService(readings, readingsRepo, devices, hub, m, cfg.Ingest.PersistTimeout, log)
	sensorSvc := service.NewSensorService(sensors, sensorsRepo, devices, hub, m, cfg.Ingest.PersistTimeout, log)

	warmCtx, warmCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := devices.Load(warmCtx); err != nil {
		log.Warn("Failed to load devices", zap.Error(err))
	}
	if _, err := ingest.Warm(warmCtx); err != nil {
		log.Warn("Failed to warm reading buffer", zap.Error(err))
	}
	if err := sensorSvc.Load(warmCtx); err != nil {
		log.Warn("Failed to load IR sensors", zap.Error(err))
	}
	warmCancel()

	// Optional mirrors
	var redisClient *rediscommon.Client
	if cfg.RedisEnabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis ping failed, latest cache writes will be retried per reading", zap.Error(err))
		}
		latest := store.NewLatestCache(store.NewRedisKV(redisClient), cfg.Ingest.LatestTTL)
		ingest.AddMirror("redis", latest)
		ingest.SetLatestLookup(latest)
	}

	var influxClient influxdb2.Client
	if cfg.InfluxEnabled {
		influxClient = influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		ingest.AddMirror("influx", store.NewInfluxMirror(influxClient.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)))
		log.Info("InfluxDB mirror enabled", zap.String("url", cfg.Influx.URL), zap.String("bucket", cfg.Influx.Bucket))
	}

	var mqttClient *mqttcommon.Client
	if cfg.MQTTEnabled {
		if c, err := mqttcommon.NewClient(&cfg.MQTT, log); err == nil {
			mqttClient = c
		} else {
			log.Warn("MQTT enabled but connection failed", zap.Error(err))
		}
	}

	// Device command transport
	var sender service.CommandSender
	switch {
	case cfg.Relay.Transport == "mqtt" && mqttClient != nil:
		sender = device.NewMQTTSender(mqttClient, cfg.Relay.CommandTopic, cfg.MQTT.QoS, log)
	default:
		if cfg.Relay.Transport == "mqtt" {
			log.Warn("MQTT transport selected but MQTT is unavailable, using HTTP transport")
		}
		sender = device.NewHTTPSender(cfg.Relay.DevicePort, cfg.Relay.BreakerFails, cfg.Relay.BreakerOpen, log)
	}
	relay := service.NewRelayService(sensorSvc, devices, sender, hub, m, cfg.Relay.CommandTimeout, log)

	var mqttConsumer *consumer.MQTTConsumer
	if mqttClient != nil {
		mqttConsumer = consumer.NewMQTTConsumer(mqttClient, ingest, relay,
			cfg.Ingest.ReadingTopic, cfg.Relay.ResultTopic, cfg.MQTT.QoS, log)
		go func() {
			if err := mqttConsumer.Start(ctx); err != nil {
				log.Error("MQTT consumer failed", zap.Error(err))
			}
		}()
	}

	router := httpapi.NewRouter(log)
	router.RegisterEnvLogRoutes(httpapi.NewEnvLogHandler(ingest, cfg.Buffer.DefaultLimit, log))
	router.RegisterDeviceRoutes(httpapi.NewDeviceHandler(service.NewDeviceService(devices), log))
	router.RegisterSensorRoutes(httpapi.NewSensorHandler(sensorSvc, log))
	router.RegisterESPRoutes(httpapi.NewESPHandler(relay, log))
	router.RegisterStreamRoutes(broadcast.NewWSHandler(hub, cfg.Broadcast.PingInterval, cfg.HTTP.CORSOrigins, log))

	health := httpapi.NewHealthHandler(hub.Count)
	if db != nil {
		health.AddCheck("postgres", func() bool {
			pctx, pcancel := context.WithTimeout(context.Background(), time.Second)
			defer pcancel()
			return db.PingContext(pctx) == nil
		})
	}
	if redisClient != nil {
		health.AddCheck("redis", func() bool {
			pctx, pcancel := context.WithTimeout(context.Background(), time.Second)
			defer pcancel()
			return rediscommon.Ping(pctx, redisClient) == nil
		})
	}
	if mqttClient != nil {
		health.AddCheck("mqtt", mqttClient.IsConnected)
	}
	router.RegisterOpsRoutes(health, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	srv := service.NewServer(cfg.HTTP.Addr, httpapi.WithCORS(router, cfg.HTTP.CORSOrigins), log)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}
	if mqttConsumer != nil {
		_ = mqttConsumer.Stop(shutdownCtx)
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	hub.Close()
	if influxClient != nil {
		influxClient.Close()
	}
	if redisClient != nil {
		_ = rediscommon.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}

	log.Info("Service stopped")
}
