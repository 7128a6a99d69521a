package config

// Config is the on-disk configuration (JSON, or YAML by file extension).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`

	// Schedules is the fixed list of recurring cron expressions.
	// It is read once at startup; changing it requires a restart.
	// If omitted, the built-in weekday schedules are used.
	Schedules []string `json:"schedules,omitempty"`
}

// HTTPConfig controls the public HTTP listener.
//
// The PORT environment variable, when set, overrides Port.
type HTTPConfig struct {
	Host string `json:"host,omitempty"` // default: all interfaces
	Port int    `json:"port,omitempty"` // default: 4001

	ReadTimeout  string `json:"read_timeout,omitempty"`  // default: "5s"
	WriteTimeout string `json:"write_timeout,omitempty"` // default: "10s"
	IdleTimeout  string `json:"idle_timeout,omitempty"`  // default: "60s"

	// Token-bucket limit applied to all routes. 0 disables limiting.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	Burst      int `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PprofConfig mounts net/http/pprof on the public listener under Prefix.
//
// Security note: set Token when the listener is reachable from outside.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token   string `json:"token,omitempty"`  // optional bearer token (do not log)
}

const (
	DefaultPort = 4001
	PortEnv     = "PORT"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: DefaultPort},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}
