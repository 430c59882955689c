package config

import (
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	Relay   RelayConfig    `json:"relay" yaml:"relay"`
	Auth    AuthConfig     `json:"auth" yaml:"auth"`
	Storage StorageConfig  `json:"storage" yaml:"storage"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" env:"RELAY_SERVER_HOST"`
	Port         int           `json:"port" yaml:"port" env:"RELAY_SERVER_PORT" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"RELAY_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"RELAY_SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"RELAY_SERVER_IDLE_TIMEOUT"`
	// ClientOrigin is the browser origin allowed by CORS and the websocket
	// origin check. Empty allows same-origin requests only.
	ClientOrigin string `json:"client_origin" yaml:"client_origin" env:"RELAY_CLIENT_ORIGIN"`
}

// RelayConfig configures the session core
type RelayConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" env:"RELAY_HEARTBEAT_INTERVAL"`
	SendBufferSize    int           `json:"send_buffer_size" yaml:"send_buffer_size" env:"RELAY_SEND_BUFFER_SIZE" validate:"min=1"`
	MaxMessageSize    int64         `json:"max_message_size" yaml:"max_message_size" env:"RELAY_MAX_MESSAGE_SIZE" validate:"min=1024"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"RELAY_WRITE_TIMEOUT"`
	EventWorkers      int           `json:"event_workers" yaml:"event_workers" env:"RELAY_EVENT_WORKERS" validate:"min=1"`
}

// AuthConfig configures credential issuance and verification
type AuthConfig struct {
	JWTSecret  string        `json:"jwt_secret" yaml:"jwt_secret" env:"RELAY_JWT_SECRET" validate:"required,min=16"`
	TokenTTL   time.Duration `json:"token_ttl" yaml:"token_ttl" env:"RELAY_TOKEN_TTL"`
	CookieName string        `json:"cookie_name" yaml:"cookie_name" env:"RELAY_COOKIE_NAME" validate:"required"`
}

// StorageConfig configures the persistence gateway
type StorageConfig struct {
	BadgerPath   string `json:"badger_path" yaml:"badger_path" env:"RELAY_BADGER_PATH" validate:"required"`
	UploadDir    string `json:"upload_dir" yaml:"upload_dir" env:"RELAY_UPLOAD_DIR" validate:"required"`
	HistoryLimit int    `json:"history_limit" yaml:"history_limit" env:"RELAY_HISTORY_LIMIT"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         4000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Relay: RelayConfig{
			HeartbeatInterval: 30 * time.Second,
			SendBufferSize:    256,
			MaxMessageSize:    16 * 1024 * 1024,
			WriteTimeout:      10 * time.Second,
			EventWorkers:      4,
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			CookieName: "token",
		},
		Storage: StorageConfig{
			BadgerPath:   "data/badger",
			UploadDir:    "uploads",
			HistoryLimit: 500,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Relay.HeartbeatInterval <= 0 {
		return NewConfigError("relay.heartbeat_interval", "heartbeat interval must be positive")
	}

	if c.Auth.TokenTTL < 0 {
		return NewConfigError("auth.token_ttl", "token ttl cannot be negative")
	}

	if c.Storage.HistoryLimit < 0 {
		return NewConfigError("storage.history_limit", "history limit cannot be negative")
	}

	return nil
}
