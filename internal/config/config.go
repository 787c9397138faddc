// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package config loads settings for the rcon command-line tool.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/schultz-is/rcon-stream"
)

// EnvPassword names the environment variable that overrides the configured password.
const EnvPassword = "RCON_PASSWORD"

// DefaultPort is the port Minecraft servers listen for RCON on.
const DefaultPort = 25575

// Config holds everything needed to connect to and talk with a server.
type Config struct {
	Host            string
	Port            int
	Password        string
	DialTimeout     time.Duration
	ReadBufferSize  int
	StrictLength    bool
	Debug           bool
	LogOutboundAuth bool
}

type fileConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Password        string `toml:"password"`
	DialTimeout     string `toml:"dial_timeout"`
	ReadBufferSize  int    `toml:"read_buffer_size"`
	StrictLength    bool   `toml:"strict_length"`
	Debug           bool   `toml:"debug"`
	LogOutboundAuth bool   `toml:"log_outbound_auth"`
}

// Default returns the settings used when no file overrides them.
func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           DefaultPort,
		DialTimeout:    rcon.DefaultDialTimeout,
		ReadBufferSize: rcon.DefaultReadBufferSize,
	}
}

// Load reads the TOML file at path over the defaults, applies environment overrides, and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
		}

		if meta.IsDefined("host") {
			cfg.Host = strings.TrimSpace(raw.Host)
		}
		if meta.IsDefined("port") {
			cfg.Port = raw.Port
		}
		if meta.IsDefined("password") {
			cfg.Password = raw.Password
		}
		if meta.IsDefined("dial_timeout") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
			if err != nil {
				return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
			}
			cfg.DialTimeout = d
		}
		if meta.IsDefined("read_buffer_size") {
			cfg.ReadBufferSize = raw.ReadBufferSize
		}
		if meta.IsDefined("strict_length") {
			cfg.StrictLength = raw.StrictLength
		}
		if meta.IsDefined("debug") {
			cfg.Debug = raw.Debug
		}
		if meta.IsDefined("log_outbound_auth") {
			cfg.LogOutboundAuth = raw.LogOutboundAuth
		}
	}

	if pw, ok := os.LookupEnv(EnvPassword); ok {
		cfg.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("config: host is required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range 1~65535", c.Port)
	case c.DialTimeout < 0:
		return fmt.Errorf("config: dial_timeout must not be negative")
	case c.ReadBufferSize < 1:
		return fmt.Errorf("config: read_buffer_size must be positive")
	}
	return nil
}

// Address returns the host:port to dial.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientConfig converts c into settings for an [rcon.Client].
func (c Config) ClientConfig(logger *slog.Logger, onPacket func(rcon.Packet)) rcon.ClientConfig {
	return rcon.ClientConfig{
		DialTimeout:            c.DialTimeout,
		ReadBufferSize:         c.ReadBufferSize,
		StrictLength:           c.StrictLength,
		OnPacket:               onPacket,
		Logger:                 logger,
		LogOutboundAuthPackets: c.LogOutboundAuth,
	}
}
