package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type fileConfig struct {
	Port     string `toml:"port"`
	Baud     int    `toml:"baud"`
	Timeout  string `toml:"timeout"`
	MQTT     string `toml:"mqtt"`
	LogLevel string `toml:"log_level"`
}

// settings are the connection parameters shared by every mode.
type settings struct {
	Port     string
	Baud     int
	Timeout  time.Duration
	MQTT     string
	LogLevel zerolog.Level
}

func defaultSettings() settings {
	return settings{
		Baud:     19200,
		Timeout:  time.Second,
		LogLevel: zerolog.InfoLevel,
	}
}

// loadSettings overrides cfg with the keys present in the TOML file at path.
func loadSettings(path string, cfg settings) (settings, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return settings{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}

	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return settings{}, fmt.Errorf("parse baud: must be positive, got %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return settings{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("mqtt") {
		cfg.MQTT = strings.TrimSpace(raw.MQTT)
	}

	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw.LogLevel)))
		if err != nil {
			return settings{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", "usbrly").Logger().Level(level)
}
