// Package config holds the fallwatch runtime configuration.
//
// Values are layered: Default, then environment (FromEnv), then command
// line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	// === Server ===
	Addr      string `json:"addr"`       // HTTP listen address
	AutoStart bool   `json:"auto_start"` // start monitoring at boot
	Headless  bool   `json:"headless"`   // no HTTP server; run one loop then exit

	// === Video ===
	Source         string        `json:"source"`          // device index or file/URL
	StreamInterval time.Duration `json:"stream_interval"` // MJPEG poll period
	JPEGQuality    int           `json:"jpeg_quality"`    // 1-100

	// === Detector ===
	ModelPath        string  `json:"model_path"`
	DetectConfidence float64 `json:"detect_confidence"` // detector score floor
	NMSThreshold     float64 `json:"nms_threshold"`

	// === Fall logic ===
	MinConfidence   float64       `json:"min_confidence"` // posture classifier floor
	FallRatio       float64       `json:"fall_ratio"`     // height/width below this is lying
	ThresholdFrames int           `json:"threshold_frames"`
	Cooldown        time.Duration `json:"cooldown"`
	Pacing          time.Duration `json:"pacing"`

	// === Delivery ===
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	RetryDelay      time.Duration `json:"retry_delay"`

	Telegram Telegram `json:"telegram"`
	MQTT     MQTT     `json:"mqtt"`
	Redis    Redis    `json:"redis"`

	// === Storage & logging ===
	HistoryPath string `json:"history_path"` // empty disables history
	LogLevel    string `json:"log_level"`
}

// Telegram configures the Telegram notifier. It is enabled when both the
// token and chat id are set.
type Telegram struct {
	Token    string `json:"-"`
	ChatID   string `json:"chat_id"`
	Location string `json:"location"`
}

// Enabled reports whether credentials are present.
func (t Telegram) Enabled() bool { return t.Token != "" && t.ChatID != "" }

// MQTT configures the MQTT sink. It is enabled when Broker is set.
type MQTT struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	TopicPrefix string `json:"topic_prefix"`
}

// Redis configures the Redis stream sink. It is enabled when Addr is set.
type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Stream   string `json:"stream"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Addr:             ":5000",
		Source:           "0",
		StreamInterval:   50 * time.Millisecond,
		JPEGQuality:      80,
		ModelPath:        "models/yolov8n.onnx",
		DetectConfidence: 0.25,
		NMSThreshold:     0.45,
		MinConfidence:    0.5,
		FallRatio:        0.5,
		ThresholdFrames:  5,
		Cooldown:         30 * time.Second,
		Pacing:           30 * time.Millisecond,
		DeliveryTimeout:  30 * time.Second,
		RetryDelay:       2 * time.Second,
		Telegram:         Telegram{Location: "Unknown"},
		MQTT:             MQTT{ClientID: "fallwatch", TopicPrefix: "fallwatch"},
		Redis:            Redis{Stream: "fallwatch:events"},
		HistoryPath:      "fallwatch.db",
		LogLevel:         "info",
	}
}

// FromEnv overlays environment variables on base. Malformed values are
// reported together.
func FromEnv(base Config) (Config, error) {
	return fromLookup(base, os.LookupEnv)
}

func fromLookup(c Config, lookup func(string) (string, bool)) (Config, error) {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("FALLWATCH_ADDR", &c.Addr)
	boolean("FALLWATCH_AUTOSTART", &c.AutoStart)
	boolean("FALLWATCH_HEADLESS", &c.Headless)
	str("FALLWATCH_SOURCE", &c.Source)
	dur("FALLWATCH_STREAM_INTERVAL", &c.StreamInterval)
	num("FALLWATCH_JPEG_QUALITY", &c.JPEGQuality)
	str("FALLWATCH_MODEL", &c.ModelPath)
	float("FALLWATCH_DETECT_CONFIDENCE", &c.DetectConfidence)
	float("FALLWATCH_NMS_THRESHOLD", &c.NMSThreshold)
	float("FALLWATCH_MIN_CONFIDENCE", &c.MinConfidence)
	float("FALLWATCH_FALL_RATIO", &c.FallRatio)
	num("FALLWATCH_THRESHOLD_FRAMES", &c.ThresholdFrames)
	dur("FALLWATCH_COOLDOWN", &c.Cooldown)
	dur("FALLWATCH_PACING", &c.Pacing)
	dur("FALLWATCH_DELIVERY_TIMEOUT", &c.DeliveryTimeout)
	dur("FALLWATCH_RETRY_DELAY", &c.RetryDelay)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("FALLWATCH_LOCATION", &c.Telegram.Location)
	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("FALLWATCH_MQTT_PREFIX", &c.MQTT.TopicPrefix)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	str("FALLWATCH_REDIS_STREAM", &c.Redis.Stream)
	str("FALLWATCH_HISTORY", &c.HistoryPath)
	str("FALLWATCH_LOG_LEVEL", &c.LogLevel)

	return c, errors.Join(errs...)
}

// Validate returns every problem with c; an empty result means valid.
func (c Config) Validate() []string {
	var problems []string

	if c.Source == "" {
		problems = append(problems, "source must not be empty")
	}
	if !c.Headless && c.Addr == "" {
		problems = append(problems, "addr must not be empty unless headless")
	}
	if c.ModelPath == "" {
		problems = append(problems, "model path must not be empty")
	}
	if c.DetectConfidence < 0 || c.DetectConfidence > 1 {
		problems = append(problems, "detect confidence must be in [0, 1]")
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		problems = append(problems, "nms threshold must be in (0, 1]")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		problems = append(problems, "min confidence must be in [0, 1]")
	}
	if c.FallRatio <= 0 {
		problems = append(problems, "fall ratio must be positive")
	}
	if c.ThresholdFrames < 1 {
		problems = append(problems, "threshold frames must be at least 1")
	}
	if c.Cooldown < 0 {
		problems = append(problems, "cooldown must not be negative")
	}
	if c.Pacing < 0 {
		problems = append(problems, "pacing must not be negative")
	}
	if c.StreamInterval <= 0 {
		problems = append(problems, "stream interval must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		problems = append(problems, "jpeg quality must be in [1, 100]")
	}
	if c.DeliveryTimeout <= 0 {
		problems = append(problems, "delivery timeout must be positive")
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		problems = append(problems, "telegram needs both a bot token and a chat id")
	}
	if c.Redis.DB < 0 {
		problems = append(problems, "redis db must not be negative")
	}

	return problems
}
