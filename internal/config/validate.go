package config

import (
	"fmt"
	"strings"

	logx "cronwait/pkg/logx"
)

// Validate rejects configs that cannot be applied. It does not parse
// schedule expressions; malformed schedules are skipped at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port: out of range: %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.RatePerSec < 0 {
		return fmt.Errorf("http.rate_per_sec must be >= 0")
	}
	if cfg.HTTP.Burst < 0 {
		return fmt.Errorf("http.burst must be >= 0")
	}
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if p := strings.TrimSpace(cfg.Pprof.Prefix); p != "" && strings.TrimSpace(strings.Trim(p, "/")) == "" {
		return fmt.Errorf("pprof.prefix: must not be the root path")
	}
	if cfg.Schedules != nil {
		n := 0
		for _, s := range cfg.Schedules {
			if strings.TrimSpace(s) != "" {
				n++
			}
		}
		if n == 0 {
			return fmt.Errorf("schedules: at least one expression required")
		}
	}
	return nil
}

// LogConfig maps the logging section to the logx service config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
