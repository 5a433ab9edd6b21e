package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"flood-alerts/internal/logging"
)

// Storage drivers understood by DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sensor    SensorConfig    `mapstructure:"sensor"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Retention RetentionConfig `mapstructure:"retention"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the ingestion HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	StaticDir       string        `mapstructure:"static_dir"`
	APIKeys         []string      `mapstructure:"api_keys"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MemoryCapacity  int           `mapstructure:"memory_capacity"`
}

// SensorConfig describes the physical installation.
type SensorConfig struct {
	ReferenceHeight int `mapstructure:"reference_height"`
}

// WeatherConfig covers the BMKG forecast API.
type WeatherConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	RegionCode   string        `mapstructure:"region_code"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Channels        []string       `mapstructure:"channels"`
	DispatchTimeout time.Duration  `mapstructure:"dispatch_timeout"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	Commands bool   `mapstructure:"commands"`
}

// MQTTConfig covers the optional broker link.
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	Subscribe   bool          `mapstructure:"subscribe"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RealtimeConfig sizes the websocket hub.
type RealtimeConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// RetentionConfig governs history pruning.
type RetentionConfig struct {
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// BridgeConfig covers the serial-to-HTTP forwarder.
type BridgeConfig struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	APIKey  string        `mapstructure:"api_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the unprefixed variable names used by existing
// deployments next to the FLOODWATCH_ ones.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("alerting.telegram.bot_token", "FLOODWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("alerting.telegram.chat_id", "FLOODWATCH_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("server.addr", "FLOODWATCH_SERVER_ADDR", "SERVER_ADDR")
	_ = v.BindEnv("bridge.port", "FLOODWATCH_BRIDGE_PORT", "SERIAL_PORT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "floodwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.api_keys", []string{})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/floodwatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.memory_capacity", 1000)

	v.SetDefault("sensor.reference_height", 300)

	v.SetDefault("weather.enabled", true)
	v.SetDefault("weather.base_url", "https://api.bmkg.go.id")
	v.SetDefault("weather.region_code", "31.71.03.1001")
	v.SetDefault("weather.timeout", "5s")
	v.SetDefault("weather.user_agent", "floodwatch/1.0")
	v.SetDefault("weather.poll_interval", "15m")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.dispatch_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.commands", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "floodwatch")
	v.SetDefault("mqtt.topic_prefix", "floodwatch")
	v.SetDefault("mqtt.subscribe", false)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", "5s")

	v.SetDefault("realtime.history_size", 50)

	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.max_age", "720h")

	v.SetDefault("bridge.port", "/dev/ttyACM0")
	v.SetDefault("bridge.baud", 9600)
	v.SetDefault("bridge.url", "http://localhost:3000/api/data")
	v.SetDefault("bridge.timeout", "5s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Sensor.ReferenceHeight <= 0 {
		return fmt.Errorf("sensor.reference_height must be greater than zero")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Weather.Enabled && c.Weather.Timeout <= 0 {
		return fmt.Errorf("weather.timeout must be greater than zero")
	}
	if c.Weather.PollInterval < 0 {
		return fmt.Errorf("weather.poll_interval cannot be negative")
	}
	if c.Retention.Schedule != "" && c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be greater than zero when a schedule is set")
	}
	if c.Realtime.HistorySize < 0 {
		return fmt.Errorf("realtime.history_size cannot be negative")
	}
	if c.Bridge.Baud <= 0 {
		return fmt.Errorf("bridge.baud must be greater than zero")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}
	if c.Alerting.Telegram.Enabled || c.Alerting.Telegram.Commands {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.Enabled && c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
