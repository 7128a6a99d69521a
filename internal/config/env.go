package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Getenv looks up an environment variable. Tests swap it via Manager.SetGetenv.
type Getenv func(key string) string

// ApplyEnv overlays environment overrides onto cfg.
//
// Supported:
//   - PORT: listen port (1..65535)
func ApplyEnv(cfg *Config, getenv Getenv) error {
	if cfg == nil {
		return nil
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if raw := strings.TrimSpace(getenv(PortEnv)); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("%s: invalid port %q", PortEnv, raw)
		}
		cfg.HTTP.Port = p
	}
	return nil
}

// Addr returns the host:port the HTTP server should listen on.
func (h HTTPConfig) Addr() string {
	port := h.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(strings.TrimSpace(h.Host), strconv.Itoa(port))
}
