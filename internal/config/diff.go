package config

import (
	"reflect"
	"slices"
	"strings"

	logx "cronwait/pkg/logx"
)

// section describes one top-level config key for change reporting.
type section struct {
	name    string
	restart bool // only read at startup
	changed func(a, b *Config) bool
	fields  func(c *Config) []logx.Field
}

var sections = []section{
	{
		name:    "http",
		restart: true,
		changed: func(a, b *Config) bool { return !reflect.DeepEqual(a.HTTP, b.HTTP) },
		fields: func(c *Config) []logx.Field {
			return []logx.Field{
				logx.String("http.addr", c.HTTP.Addr()),
				logx.Int("http.rate_per_sec", c.HTTP.RatePerSec),
			}
		},
	},
	{
		name: "logging",
		changed: func(a, b *Config) bool {
			x, y := a.Logging, b.Logging
			x.File.Path, y.File.Path = strings.TrimSpace(x.File.Path), strings.TrimSpace(y.File.Path)
			return x != y
		},
		fields: func(c *Config) []logx.Field {
			return []logx.Field{
				logx.String("logging.level", c.Logging.Level),
				logx.Bool("logging.console", c.Logging.Console),
				logx.Bool("logging.file_enabled", c.Logging.File.Enabled),
			}
		},
	},
	{
		name:    "pprof",
		restart: true,
		changed: func(a, b *Config) bool {
			return a.Pprof.Enabled != b.Pprof.Enabled ||
				normalizePrefix(a.Pprof.Prefix) != normalizePrefix(b.Pprof.Prefix) ||
				a.Pprof.Token != b.Pprof.Token
		},
		// The token itself is never logged.
		fields: func(c *Config) []logx.Field {
			return []logx.Field{
				logx.Bool("pprof.enabled", c.Pprof.Enabled),
				logx.String("pprof.prefix", normalizePrefix(c.Pprof.Prefix)),
				logx.Bool("pprof.token_set", strings.TrimSpace(c.Pprof.Token) != ""),
			}
		},
	},
	{
		name:    "schedules",
		restart: true,
		changed: func(a, b *Config) bool {
			return !slices.Equal(nonBlank(a.Schedules), nonBlank(b.Schedules))
		},
		fields: func(c *Config) []logx.Field {
			return []logx.Field{logx.Int("schedules.count", len(nonBlank(c.Schedules)))}
		},
	},
}

// RequiresRestart reports whether changes to the named section are ignored
// until the process restarts.
func RequiresRestart(name string) bool {
	for _, s := range sections {
		if s.name == name {
			return s.restart
		}
	}
	return false
}

// SummarizeConfigChange lists the changed sections in alphabetical order,
// along with log fields describing their new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		names  []string
		fields []logx.Field
	)
	for _, s := range sections {
		if s.changed(oldCfg, newCfg) {
			names = append(names, s.name)
			fields = append(fields, s.fields(newCfg)...)
		}
	}
	return names, fields
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizePrefix trims the prefix and gives it leading and trailing
// slashes. Empty stays empty.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p + "/"
}
