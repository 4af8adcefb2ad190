package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Inkframe.
// All configuration is loaded from YAML or TOML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device" toml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	Power    PowerConfig    `yaml:"power" toml:"power"`
	Display  DisplayConfig  `yaml:"display" toml:"display"`
	Image    ImageConfig    `yaml:"image" toml:"image"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	API      APIConfig      `yaml:"api" toml:"api"`
}

// DeviceConfig identifies this frame.
type DeviceConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name" toml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS       int                 `yaml:"qos" toml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`

	// Topics are the command topics the frame subscribes to.
	Topics []string `yaml:"topics" toml:"topics"`

	// SubscribeQoS is the maximum QoS requested for command topics.
	SubscribeQoS int `yaml:"subscribe_qos" toml:"subscribe_qos"`

	// DurableSession keeps the broker session (and its queued messages)
	// across disconnects. Required for battery mode.
	DurableSession bool `yaml:"durable_session" toml:"durable_session"`

	// ConnectTimeout is the initial connection timeout (seconds).
	ConnectTimeout int `yaml:"connect_timeout" toml:"connect_timeout"`

	// BacklogQuietPeriod is how long a resumed session must stay silent
	// before its backlog is considered drained (milliseconds).
	BacklogQuietPeriod int `yaml:"backlog_quiet_period" toml:"backlog_quiet_period"`

	// InboxSize bounds the number of received messages waiting for dispatch.
	InboxSize int `yaml:"inbox_size" toml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
}

// PowerConfig contains PiSugar power manager and wake cycle settings.
type PowerConfig struct {
	// Enabled selects battery mode at startup.
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Transport is "tcp" or "unix".
	Transport  string `yaml:"transport" toml:"transport"`
	TCPHost    string `yaml:"tcp_host" toml:"tcp_host"`
	TCPPort    int    `yaml:"tcp_port" toml:"tcp_port"`
	SocketPath string `yaml:"socket_path" toml:"socket_path"`

	// DialTimeout and ReplyTimeout bound each peripheral command (milliseconds).
	DialTimeout  int `yaml:"dial_timeout" toml:"dial_timeout"`
	ReplyTimeout int `yaml:"reply_timeout" toml:"reply_timeout"`

	WakeIntervalMinutes  int    `yaml:"wake_interval_minutes" toml:"wake_interval_minutes"`
	MessageWaitTimeout   int    `yaml:"message_wait_timeout" toml:"message_wait_timeout"`
	ShutdownAfterDisplay bool   `yaml:"shutdown_after_display" toml:"shutdown_after_display"`
	BatteryTopic         string `yaml:"battery_topic" toml:"battery_topic"`

	// AlarmRepeat is the weekday mask for the RTC alarm (127 = every day).
	AlarmRepeat int `yaml:"alarm_repeat" toml:"alarm_repeat"`

	// SyncTimeFromRTC sets the system clock from the RTC at wake.
	SyncTimeFromRTC bool `yaml:"sync_time_from_rtc" toml:"sync_time_from_rtc"`

	// ShutdownCommand is the OS command run to power off.
	ShutdownCommand []string `yaml:"shutdown_command" toml:"shutdown_command"`
}

// DisplayConfig contains display panel settings.
type DisplayConfig struct {
	// Driver is "mock" or "file".
	Driver      string `yaml:"driver" toml:"driver"`
	Model       string `yaml:"model" toml:"model"`
	Width       int    `yaml:"width" toml:"width"`
	Height      int    `yaml:"height" toml:"height"`
	OutputPath  string `yaml:"output_path" toml:"output_path"`
	ClearOnExit bool   `yaml:"clear_on_exit" toml:"clear_on_exit"`
}

// ImageConfig contains image fetch and processing settings.
type ImageConfig struct {
	FetchTimeout    int           `yaml:"fetch_timeout" toml:"fetch_timeout"`
	MaxBytes        int64         `yaml:"max_bytes" toml:"max_bytes"`
	MaxPixels       int64         `yaml:"max_pixels" toml:"max_pixels"`
	AutoCropBorders bool          `yaml:"auto_crop_borders" toml:"auto_crop_borders"`
	Preview         PreviewConfig `yaml:"preview" toml:"preview"`
}

// PreviewConfig controls the thumbnail published after each render.
type PreviewConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Topic   string `yaml:"topic" toml:"topic"`
	Width   int    `yaml:"width" toml:"width"`
	Quality int    `yaml:"quality" toml:"quality"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// PushgatewayURL receives one push per wake cycle when set.
	PushgatewayURL string `yaml:"pushgateway_url" toml:"pushgateway_url"`
	Job            string `yaml:"job" toml:"job"`
}

// APIConfig contains the local status API settings (continuous mode only).
type APIConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host"`
	Port    int    `yaml:"port" toml:"port"`
}

// Load reads configuration from a YAML or TOML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files are decoded as TOML, everything else as YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: INKFRAME_SECTION_KEY
// For example: INKFRAME_MQTT_HOST, INKFRAME_POWER_WAKE_INTERVAL_MINUTES
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// decode unmarshals data into cfg using the format implied by the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Default returns the built-in configuration, before any file or environment overrides.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "inkframe-01",
			Name: "Inkframe",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "inkframe-01",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics:             []string{"inkframe/command"},
			SubscribeQoS:       2,
			DurableSession:     true,
			ConnectTimeout:     10,
			BacklogQuietPeriod: 1500,
			InboxSize:          64,
		},
		Power: PowerConfig{
			Transport:            "tcp",
			TCPHost:              "127.0.0.1",
			TCPPort:              8423,
			SocketPath:           "/tmp/pisugar-server.sock",
			DialTimeout:          5000,
			ReplyTimeout:         1000,
			WakeIntervalMinutes:  15,
			MessageWaitTimeout:   30,
			ShutdownAfterDisplay: true,
			BatteryTopic:         "inkframe/battery",
			AlarmRepeat:          127,
			ShutdownCommand:      []string{"sudo", "shutdown", "-h", "now"},
		},
		Display: DisplayConfig{
			Driver:      "mock",
			Model:       "7in3e",
			Width:       800,
			Height:      480,
			OutputPath:  "./data/framebuffer.png",
			ClearOnExit: true,
		},
		Image: ImageConfig{
			FetchTimeout: 30,
			MaxBytes:     20 << 20,
			MaxPixels:    89_478_485,
			Preview: PreviewConfig{
				Topic:   "inkframe/preview",
				Width:   200,
				Quality: 75,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/inkframe.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Job: "inkframe",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INKFRAME_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			switch strings.ToLower(v) {
			case "true", "1", "yes":
				*dst = true
			case "false", "0", "no":
				*dst = false
			default:
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
			}
		}
	}

	// MQTT
	setString("INKFRAME_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("INKFRAME_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("INKFRAME_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("INKFRAME_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	setString("INKFRAME_MQTT_CLIENT_ID", &cfg.MQTT.Broker.ClientID)

	// Display
	setString("INKFRAME_DISPLAY_DRIVER", &cfg.Display.Driver)
	setString("INKFRAME_DISPLAY_MODEL", &cfg.Display.Model)
	setInt("INKFRAME_DISPLAY_WIDTH", &cfg.Display.Width)
	setInt("INKFRAME_DISPLAY_HEIGHT", &cfg.Display.Height)

	// Logging
	setString("INKFRAME_LOGGING_LEVEL", &cfg.Logging.Level)

	// Power
	setBool("INKFRAME_POWER_ENABLED", &cfg.Power.Enabled)
	setString("INKFRAME_POWER_TRANSPORT", &cfg.Power.Transport)
	setString("INKFRAME_POWER_SOCKET_PATH", &cfg.Power.SocketPath)
	setInt("INKFRAME_POWER_WAKE_INTERVAL_MINUTES", &cfg.Power.WakeIntervalMinutes)
	setInt("INKFRAME_POWER_MESSAGE_WAIT_TIMEOUT", &cfg.Power.MessageWaitTimeout)
	setBool("INKFRAME_POWER_SHUTDOWN_AFTER_DISPLAY", &cfg.Power.ShutdownAfterDisplay)

	// Database
	setString("INKFRAME_DATABASE_PATH", &cfg.Database.Path)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required (the durable session is keyed on it)")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.SubscribeQoS < 0 || c.MQTT.SubscribeQoS > 2 {
		errs = append(errs, "mqtt.subscribe_qos must be 0, 1, or 2")
	}
	if len(c.MQTT.Topics) == 0 {
		errs = append(errs, "mqtt.topics must list at least one command topic")
	}

	switch c.Power.Transport {
	case "tcp":
		if c.Power.TCPPort < 1 || c.Power.TCPPort > 65535 {
			errs = append(errs, "power.tcp_port must be between 1 and 65535")
		}
	case "unix":
		if c.Power.SocketPath == "" {
			errs = append(errs, "power.socket_path is required for unix transport")
		}
	default:
		errs = append(errs, "power.transport must be tcp or unix")
	}
	if c.Power.WakeIntervalMinutes < 1 {
		errs = append(errs, "power.wake_interval_minutes must be at least 1")
	}
	if c.Power.MessageWaitTimeout < 1 {
		errs = append(errs, "power.message_wait_timeout must be at least 1")
	}
	if c.Power.AlarmRepeat < 1 || c.Power.AlarmRepeat > 127 {
		errs = append(errs, "power.alarm_repeat must be between 1 and 127")
	}
	if c.Power.BatteryTopic == "" {
		errs = append(errs, "power.battery_topic is required")
	}
	if c.Power.ShutdownAfterDisplay && len(c.Power.ShutdownCommand) == 0 {
		errs = append(errs, "power.shutdown_command is required when shutdown_after_display is set")
	}

	switch c.Display.Driver {
	case "mock", "file":
	default:
		errs = append(errs, "display.driver must be mock or file")
	}
	if c.Display.Width < 1 || c.Display.Height < 1 {
		errs = append(errs, "display.width and display.height must be positive")
	}

	if c.Image.MaxPixels < 1 {
		errs = append(errs, "image.max_pixels must be positive")
	}

	if c.Image.Preview.Enabled {
		if c.Image.Preview.Topic == "" {
			errs = append(errs, "image.preview.topic is required when previews are enabled")
		}
		if c.Image.Preview.Quality < 1 || c.Image.Preview.Quality > 100 {
			errs = append(errs, "image.preview.quality must be between 1 and 100")
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetWakeInterval returns the RTC wake interval as a Duration.
func (c *Config) GetWakeInterval() time.Duration {
	return time.Duration(c.Power.WakeIntervalMinutes) * time.Minute
}

// GetMessageWaitTimeout returns the idle message wait as a Duration.
func (c *Config) GetMessageWaitTimeout() time.Duration {
	return time.Duration(c.Power.MessageWaitTimeout) * time.Second
}

// GetBacklogQuietPeriod returns the backlog drain detection window as a Duration.
func (c *Config) GetBacklogQuietPeriod() time.Duration {
	return time.Duration(c.MQTT.BacklogQuietPeriod) * time.Millisecond
}

// GetFetchTimeout returns the image fetch timeout as a Duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.Image.FetchTimeout) * time.Second
}
