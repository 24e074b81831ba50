// Package config binds operator-facing environment overrides that sit
// alongside (never instead of) the spec-mandated positional CLI contract
// of §6. None of §6's required arguments move here.
package config

import "github.com/caarlos0/env/v11"

// Server holds environment-overridable server knobs.
type Server struct {
	// MetricsAddr, when non-empty, serves Prometheus metrics (see
	// internal/metrics) on this address. Disabled by default.
	MetricsAddr string `env:"CHAT_METRICS_ADDR" envDefault:""`
	// LogLevel controls the zerolog level for operational diagnostics;
	// it never affects the literal protocol lines mandated by §6/§8.
	LogLevel string `env:"CHAT_LOG_LEVEL" envDefault:"info"`
}

// Client holds environment-overridable client knobs.
type Client struct {
	LogLevel string `env:"CHAT_LOG_LEVEL" envDefault:"warn"`
}

// LoadServer parses environment overrides for the server into defaults.
func LoadServer() (Server, error) {
	var c Server
	if err := env.Parse(&c); err != nil {
		return Server{}, err
	}
	return c, nil
}

// LoadClient parses environment overrides for the client into defaults.
func LoadClient() (Client, error) {
	var c Client
	if err := env.Parse(&c); err != nil {
		return Client{}, err
	}
	return c, nil
}
