package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "wisefido-envlog/internal/common/config"

	"github.com/joho/godotenv"
)

// Config wisefido-envlog settings
type Config struct {
	HTTP struct {
		Addr        string
		CORSOrigins []string
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	MQTTEnabled bool
	MQTT        commoncfg.MQTTConfig

	InfluxEnabled bool
	Influx        commoncfg.InfluxConfig

	Buffer struct {
		ReadingCapacity int // recent readings kept in memory
		SensorCapacity  int // IR sensor definitions kept in memory
		DefaultLimit    int // GET /env-logs default when limit is missing or invalid
	}

	Broadcast struct {
		SendTimeout     time.Duration // max wait on one slow subscriber
		SubscriberQueue int           // per-subscriber channel size
		InboxSize       int
		PingInterval    time.Duration
	}

	Ingest struct {
		PersistTimeout time.Duration
		ReadingTopic   string        // e.g. "env/+/reading"
		LatestTTL      time.Duration // Redis latest-reading keys
	}

	Relay struct {
		Transport      string // "mqtt" or "http"
		CommandTimeout time.Duration
		CommandTopic   string // e.g. "ir/{mac}/command"
		ResultTopic    string // e.g. "ir/+/result"
		DevicePort     int    // HTTP transport: port of the device web server
		BreakerFails   int
		BreakerOpen    time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads .env (if present) and then the process environment
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")
	cfg.HTTP.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:5173"))

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "envlog"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-envlog"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectRetries = parseInt(getEnv("MQTT_CONNECT_RETRIES", "5"), 5)
	cfg.MQTT.ConnectTimeout = parseDuration(getEnv("MQTT_CONNECT_TIMEOUT", "10s"), 10*time.Second)
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.InfluxEnabled = getEnv("INFLUX_ENABLED", "false") == "true"
	cfg.Influx.URL = "http://localhost:8086"
	cfg.Influx.Org = "wisefido"
	cfg.Influx.Bucket = "envlog"
	cfg.Influx.LoadFromEnv("INFLUX")

	cfg.Buffer.ReadingCapacity = parseInt(getEnv("READING_BUFFER_CAPACITY", "1000"), 1000)
	cfg.Buffer.SensorCapacity = parseInt(getEnv("SENSOR_BUFFER_CAPACITY", "256"), 256)
	cfg.Buffer.DefaultLimit = parseInt(getEnv("READING_DEFAULT_LIMIT", "28"), 28)

	cfg.Broadcast.SendTimeout = parseDuration(getEnv("BROADCAST_SEND_TIMEOUT", "250ms"), 250*time.Millisecond)
	cfg.Broadcast.SubscriberQueue = parseInt(getEnv("BROADCAST_SUBSCRIBER_QUEUE", "64"), 64)
	cfg.Broadcast.InboxSize = parseInt(getEnv("BROADCAST_INBOX_SIZE", "1024"), 1024)
	cfg.Broadcast.PingInterval = parseDuration(getEnv("BROADCAST_PING_INTERVAL", "30s"), 30*time.Second)

	cfg.Ingest.PersistTimeout = parseDuration(getEnv("PERSIST_TIMEOUT", "3s"), 3*time.Second)
	cfg.Ingest.ReadingTopic = getEnv("READING_TOPIC", "env/+/reading")
	cfg.Ingest.LatestTTL = parseDuration(getEnv("LATEST_TTL", "10m"), 10*time.Minute)

	cfg.Relay.Transport = getEnv("DEVICE_TRANSPORT", "mqtt")
	cfg.Relay.CommandTimeout = parseDuration(getEnv("COMMAND_TIMEOUT", "5s"), 5*time.Second)
	cfg.Relay.CommandTopic = getEnv("COMMAND_TOPIC", "ir/{mac}/command")
	cfg.Relay.ResultTopic = getEnv("RESULT_TOPIC", "ir/+/result")
	cfg.Relay.DevicePort = parseInt(getEnv("DEVICE_HTTP_PORT", "80"), 80)
	cfg.Relay.BreakerFails = parseInt(getEnv("DEVICE_BREAKER_FAILS", "3"), 3)
	cfg.Relay.BreakerOpen = parseDuration(getEnv("DEVICE_BREAKER_OPEN", "30s"), 30*time.Second)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
