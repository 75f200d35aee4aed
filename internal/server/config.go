package server

import (
	"net"
	"strconv"
	"time"
)

// Config holds relay server configuration.
type Config struct {
	Host string
	Port int

	// PathPrefix is prepended to every API route.
	PathPrefix string

	CORSEnabled bool
	CORSOrigins []string

	// AuthEnabled requires APIKey on every non-health route.
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit int
	// CacheTTL bounds how long a lab snapshot is served from cache. Any
	// projection change invalidates it earlier.
	CacheTTL time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         8080,
		PathPrefix:   "/api/v1",
		CORSEnabled:  false,
		CORSOrigins:  []string{},
		AuthEnabled:  false,
		AuthHeader:   "X-API-Key",
		RateLimit:    0,
		CacheTTL:     2 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses stay open
		IdleTimeout:  120 * time.Second,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
