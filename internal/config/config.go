package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultFirmwareVersion = "1.0.0"
	defaultHeapWarning     = 16 << 20
)

// Config is loaded once at startup and never mutated afterwards.
type Config struct {
	AppEnv   string `validate:"oneof=dev prod"`
	LogLevel slog.Level

	DeviceID        string `validate:"required"`
	FirmwareVersion string `validate:"required"`
	UserAgent       string `validate:"required"`

	BackendURL string `validate:"required,url"`
	Region     string `validate:"required"`
	StationID  string

	UpdateInterval    time.Duration `validate:"gt=0"`
	MinSleep          time.Duration `validate:"gt=0"`
	WiFiCheckInterval time.Duration `validate:"gt=0"`
	HeartbeatInterval time.Duration `validate:"gt=0"`

	HTTPTimeout    time.Duration `validate:"gt=0"`
	HTTPMaxRetries int           `validate:"min=1,max=10"`
	HTTPRetryDelay time.Duration `validate:"gte=0"`

	WiFiInterface            string        `validate:"required"`
	WiFiConnectTimeout       time.Duration `validate:"gt=0"`
	WiFiMaxReconnectAttempts int           `validate:"min=1"`
	// WiFiResetCommand restarts the radio once connectivity has been lost
	// past the recovery timeout.
	WiFiResetCommand []string

	JSONBufferSize int `validate:"min=256,max=1048576"`

	HeapMonitoring       bool
	HeapCheckInterval    time.Duration `validate:"gt=0"`
	HeapWarningThreshold uint64
	HeapBudget           uint64 `validate:"omitempty,gtfield=HeapWarningThreshold"`

	ErrorRecoveryTimeout time.Duration `validate:"gt=0"`
	WiFiRecoveryTimeout  time.Duration `validate:"gt=0"`

	RefreshPolicy     string        `validate:"oneof=counter always-full minimal-flash"`
	FullRefreshCycles int           `validate:"min=1"`
	RefreshStages     int           `validate:"min=1,max=5"`
	RefreshStageDelay time.Duration `validate:"gte=0"`

	Panel            string `validate:"oneof=terminal epaper"`
	SPIPort          string
	PanelBusyTimeout time.Duration `validate:"gt=0"`

	DeepSleep        bool
	RTCWakeAlarmPath string `validate:"required_if=DeepSleep true"`
	PowerStatePath   string `validate:"required_if=DeepSleep true"`

	IdentifyFlashCount int           `validate:"min=1"`
	IdentifyFlashDelay time.Duration `validate:"gt=0"`
	StatusLEDPin       string
	IdentifyButtonPin  string
	IdentifyOnBoot     bool

	// MQTTBroker empty disables telemetry.
	MQTTBroker   string
	MQTTPort     int `validate:"min=1,max=65535"`
	MQTTClientID string

	// StatusAddr empty disables the local status endpoint.
	StatusAddr string

	TempMin float64
	TempMax float64 `validate:"gtfield=TempMin"`
}

var validate = validator.New()

// LoadDotEnv loads a .env file from the working directory if there is one.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	deviceID := envString("DEVICE_ID", "")
	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "weather-display"
		}
		deviceID = host
	}

	firmware := envString("FIRMWARE_VERSION", defaultFirmwareVersion)

	defaultPanel := "epaper"
	if appEnv == "dev" {
		defaultPanel = "terminal"
	}

	cfg := Config{
		AppEnv:            appEnv,
		LogLevel:          level,
		DeviceID:          deviceID,
		FirmwareVersion:   firmware,
		UserAgent:         envString("USER_AGENT", fmt.Sprintf("WeatherDisplay/%s %s-%s", firmware, runtime.GOOS, runtime.GOARCH)),
		BackendURL:        strings.TrimRight(envString("BACKEND_URL", "https://weather-backend.nativenav.workers.dev"), "/"),
		Region:            strings.ToLower(envString("REGION", "chamonix")),
		StationID:         envString("STATION_ID", ""),
		WiFiInterface:     envString("WIFI_INTERFACE", "wlan0"),
		RefreshPolicy:     strings.ToLower(envString("REFRESH_POLICY", "minimal-flash")),
		Panel:             strings.ToLower(envString("PANEL", defaultPanel)),
		SPIPort:           envString("SPI_PORT", ""),
		RTCWakeAlarmPath:  envString("RTC_WAKEALARM_PATH", "/sys/class/rtc/rtc0/wakealarm"),
		PowerStatePath:    envString("POWER_STATE_PATH", "/sys/power/state"),
		StatusLEDPin:      envString("STATUS_LED_PIN", ""),
		IdentifyButtonPin: envString("IDENTIFY_BUTTON_PIN", ""),
		MQTTBroker:        envString("MQTT_BROKER", ""),
		MQTTClientID:      envString("MQTT_CLIENT_ID", "weather-display-"+deviceID),
		StatusAddr:        envString("STATUS_ADDR", ""),
		WiFiResetCommand:  strings.Fields(os.Getenv("WIFI_RESET_COMMAND")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"UPDATE_INTERVAL", "5m", &cfg.UpdateInterval},
		{"MIN_SLEEP", "10s", &cfg.MinSleep},
		{"WIFI_CHECK_INTERVAL", "10s", &cfg.WiFiCheckInterval},
		{"HEARTBEAT_INTERVAL", "30s", &cfg.HeartbeatInterval},
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"HTTP_RETRY_DELAY", "1s", &cfg.HTTPRetryDelay},
		{"WIFI_CONNECT_TIMEOUT", "30s", &cfg.WiFiConnectTimeout},
		{"HEAP_CHECK_INTERVAL", "30s", &cfg.HeapCheckInterval},
		{"ERROR_RECOVERY_TIMEOUT", "5m", &cfg.ErrorRecoveryTimeout},
		{"WIFI_RECOVERY_TIMEOUT", "1m", &cfg.WiFiRecoveryTimeout},
		{"REFRESH_STAGE_DELAY", "500ms", &cfg.RefreshStageDelay},
		{"PANEL_BUSY_TIMEOUT", "15s", &cfg.PanelBusyTimeout},
		{"IDENTIFY_FLASH_DELAY", "500ms", &cfg.IdentifyFlashDelay},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"HTTP_MAX_RETRIES", 3, &cfg.HTTPMaxRetries},
		{"WIFI_MAX_RECONNECT_ATTEMPTS", 5, &cfg.WiFiMaxReconnectAttempts},
		{"JSON_BUFFER_SIZE", 2048, &cfg.JSONBufferSize},
		{"FULL_REFRESH_CYCLES", 10, &cfg.FullRefreshCycles},
		{"REFRESH_STAGES", 2, &cfg.RefreshStages},
		{"IDENTIFY_FLASH_COUNT", 3, &cfg.IdentifyFlashCount},
		{"MQTT_PORT", 1883, &cfg.MQTTPort},
	}
	for _, i := range ints {
		if *i.dst, err = envInt(i.key, i.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.HeapWarningThreshold, err = envUint("HEAP_WARNING_THRESHOLD", defaultHeapWarning); err != nil {
		return Config{}, err
	}
	if cfg.HeapBudget, err = envUint("HEAP_BUDGET", 0); err != nil {
		return Config{}, err
	}

	if cfg.HeapMonitoring, err = envBool("HEAP_MONITORING", true); err != nil {
		return Config{}, err
	}
	if cfg.DeepSleep, err = envBool("DEEP_SLEEP", false); err != nil {
		return Config{}, err
	}
	if cfg.IdentifyOnBoot, err = envBool("IDENTIFY_ON_BOOT", false); err != nil {
		return Config{}, err
	}

	if cfg.TempMin, err = envFloat("TEMP_MIN", -60); err != nil {
		return Config{}, err
	}
	if cfg.TempMax, err = envFloat("TEMP_MAX", 60); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// StatusEnabled reports whether the local status endpoint should listen.
func (c Config) StatusEnabled() bool {
	return c.StatusAddr != ""
}

// MQTTEnabled reports whether device telemetry is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key, def string) (time.Duration, error) {
	s := envString(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	s := envString(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envUint(key string, def uint64) (uint64, error) {
	s := envString(key, strconv.FormatUint(def, 10))
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := envString(key, strconv.FormatFloat(def, 'f', -1, 64))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	s := envString(key, strconv.FormatBool(def))
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
