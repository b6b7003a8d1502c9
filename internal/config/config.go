package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportMQTT      = "mqtt"
	TransportWebSocket = "websocket"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type WebSocketConfig struct {
	URL   string
	Token string
}

// APIConfig locates the garden API serving the plant-list snapshot.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SlackConfig struct {
	BotToken      string
	ChannelID     string
	SigningSecret string
}

type EngineConfig struct {
	PendingTimeout    time.Duration `mapstructure:"pending_timeout"`
	SuppressionWindow time.Duration `mapstructure:"suppression_window"`
	ResyncInterval    time.Duration `mapstructure:"resync_interval"`
}

type ServerConfig struct {
	Addr string
}

type Config struct {
	Transport string
	MQTT      MQTTConfig
	WebSocket WebSocketConfig
	API       APIConfig
	Database  DatabaseConfig
	Slack     SlackConfig
	Engine    EngineConfig
	Server    ServerConfig
}

// envBindings maps every configuration key to its environment variable.
var envBindings = map[string]string{
	"transport": "TRANSPORT",

	"mqtt.broker":      "MQTT_BROKER",
	"mqtt.clientid":    "MQTT_CLIENT_ID",
	"mqtt.username":    "MQTT_USERNAME",
	"mqtt.password":    "MQTT_PASSWORD",
	"mqtt.topicprefix": "MQTT_TOPIC_PREFIX",

	"websocket.url":   "WEBSOCKET_URL",
	"websocket.token": "WEBSOCKET_TOKEN",

	"api.base_url": "API_BASE_URL",
	"api.token":    "API_TOKEN",

	"database.enabled":  "DB_ENABLED",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.dbname":   "DB_NAME",
	"database.sslmode":  "DB_SSLMODE",

	"slack.bottoken":      "SLACK_BOT_TOKEN",
	"slack.channelid":     "SLACK_CHANNEL_ID",
	"slack.signingsecret": "SLACK_SIGNING_SECRET",

	"engine.pending_timeout":    "PENDING_TIMEOUT",
	"engine.suppression_window": "SUPPRESSION_WINDOW",
	"engine.resync_interval":    "RESYNC_INTERVAL",

	"server.addr": "SERVER_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportMQTT)
	v.SetDefault("mqtt.clientid", "irrigation-remote")
	v.SetDefault("mqtt.topicprefix", "garden")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("engine.pending_timeout", 90*time.Second)
	v.SetDefault("engine.suppression_window", 5*time.Second)
	v.SetDefault("engine.resync_interval", 5*time.Minute)
	v.SetDefault("server.addr", ":8080")
}

func LoadConfig() (*Config, error) {
	log.Println("--- Starting Configuration Loading ---")
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	log.Println("[1] Explicit environment variable binding configured.")

	env := os.Getenv("APP_ENV")
	if env == "" {
		log.Println("[2] APP_ENV not set, defaulting to 'local'.")
		env = "local"
	} else {
		log.Printf("[2] APP_ENV is set to '%s'.", env)
	}

	if env == "local" {
		log.Println("[3] Attempting to load .env.local file...")
		if err := loadEnvFile(v, ".env.local"); err != nil {
			return nil, err
		}
	} else {
		log.Printf("[3] Skipping .env file loading because APP_ENV is '%s'.", env)
	}

	var config Config
	log.Println("[4] Unmarshaling settings into Config struct...")
	if err := v.Unmarshal(&config); err != nil {
		log.Printf("Error: Failed to unmarshal config: %v", err)
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Transport = strings.ToLower(strings.TrimSpace(config.Transport))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	log.Printf("[5] Configuration loaded (transport=%s, database=%t, slack=%t).",
		config.Transport, config.Database.Enabled, config.Slack.BotToken != "")
	return &config, nil
}

// loadEnvFile reads KEY=VALUE pairs from path. Values from the file rank
// below real environment variables and above the built-in defaults.
func loadEnvFile(v *viper.Viper, path string) error {
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("env")

	if err := file.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Printf("Info: %s not found, which is acceptable. Relying on environment variables.", path)
			return nil
		}
		log.Printf("Error: Failed to read config file %s: %v", path, err)
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	for key, env := range envBindings {
		name := strings.ToLower(env)
		if file.IsSet(name) {
			v.SetDefault(key, file.Get(name))
		}
	}
	log.Printf("Success: Loaded configuration from %s", file.ConfigFileUsed())
	return nil
}

// Validate reports settings the service cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Transport {
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			return errors.New("config: MQTT_BROKER is required for the mqtt transport")
		}
	case TransportWebSocket:
		if cfg.WebSocket.URL == "" {
			return errors.New("config: WEBSOCKET_URL is required for the websocket transport")
		}
	default:
		return fmt.Errorf("config: unknown transport %q", cfg.Transport)
	}
	if cfg.Engine.PendingTimeout < 0 || cfg.Engine.SuppressionWindow < 0 || cfg.Engine.ResyncInterval < 0 {
		return errors.New("config: engine durations must not be negative")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (cfg *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)
}
