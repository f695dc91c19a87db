package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	SkipAuth           bool
	VerifyJWTSignature bool
	OIDCIssuer         string

	AMIHost           string
	AMIPort           int
	AMIUsername       string
	AMISecret         string
	AMIReconnectDelay time.Duration

	QueueStatusInterval  time.Duration
	EndpointPollInterval time.Duration

	RecordingDir string

	ServiceLevelThreshold  int // seconds
	ServiceLevelTarget     int // percent
	StatsFlushInterval     time.Duration
	StatsBroadcastInterval time.Duration
	QueueCatalogFile       string

	ShiftGracePeriod     time.Duration
	IdleSampleInterval   time.Duration
	AgentRefreshInterval time.Duration

	PersistBuffer int

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	config := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SkipAuth:           getEnv("SKIP_AUTH", "false") == "true",
		VerifyJWTSignature: env != "development" || getEnv("VERIFY_JWT_SIGNATURE", "false") == "true",
		OIDCIssuer:         getEnv("OIDC_ISSUER", ""),
		AMIHost:            getEnv("AMI_HOST", "127.0.0.1"),
		AMIUsername:        getEnv("AMI_USERNAME", "pbxlive"),
		AMISecret:          getEnv("AMI_SECRET", ""),
		RecordingDir:       getEnv("RECORDING_DIR", "/var/spool/asterisk/monitor"),
		QueueCatalogFile:   getEnv("QUEUE_CATALOG_FILE", ""),
		MQTTBroker:         getEnv("MQTT_BROKER", ""),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "pbxlive"),
		MQTTTopicPrefix:    getEnv("MQTT_TOPIC_PREFIX", "pbxlive"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "pbxlive"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	ints := []struct {
		key  string
		def  string
		dest *int
	}{
		{"AMI_PORT", "5038", &config.AMIPort},
		{"SERVICE_LEVEL_THRESHOLD", "60", &config.ServiceLevelThreshold},
		{"SERVICE_LEVEL_TARGET", "80", &config.ServiceLevelTarget},
		{"PERSIST_BUFFER", "1024", &config.PersistBuffer},
		{"REDIS_DB", "0", &config.RedisDB},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(getEnv(f.key, f.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dest = v
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"AMI_RECONNECT_DELAY", "5s", &config.AMIReconnectDelay},
		{"QUEUE_STATUS_INTERVAL", "30s", &config.QueueStatusInterval},
		{"ENDPOINT_POLL_INTERVAL", "60s", &config.EndpointPollInterval},
		{"STATS_FLUSH_INTERVAL", "60s", &config.StatsFlushInterval},
		{"STATS_BROADCAST_INTERVAL", "5s", &config.StatsBroadcastInterval},
		{"SHIFT_GRACE_PERIOD", "5m", &config.ShiftGracePeriod},
		{"IDLE_SAMPLE_INTERVAL", "30s", &config.IdleSampleInterval},
		{"AGENT_REFRESH_INTERVAL", "5m", &config.AgentRefreshInterval},
	}
	for _, f := range durations {
		d, err := parseDuration(getEnv(f.key, f.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dest = d
	}

	if config.ServiceLevelThreshold <= 0 {
		return nil, fmt.Errorf("invalid SERVICE_LEVEL_THRESHOLD: must be positive")
	}
	if config.ServiceLevelTarget < 0 || config.ServiceLevelTarget > 100 {
		return nil, fmt.Errorf("invalid SERVICE_LEVEL_TARGET: must be between 0 and 100")
	}

	return config, nil
}

// AMIAddress is the host:port of the manager interface
func (c *Config) AMIAddress() string {
	return fmt.Sprintf("%s:%d", c.AMIHost, c.AMIPort)
}

// parseDuration accepts Go duration syntax or a bare number of seconds
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
