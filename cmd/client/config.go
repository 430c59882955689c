package main

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is read from CHATRELAY_* variables.
type Config struct {
	Server   string `envconfig:"SERVER" default:"http://localhost:4000"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	// CHATRELAY_REGISTER creates the account before logging in
	Register bool   `envconfig:"REGISTER" default:"false"`
	Colours  bool   `envconfig:"COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
}

func loadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("chatrelay", &cfg)
	return cfg, err
}
