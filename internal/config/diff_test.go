package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()

	sections, attrs := SummarizeConfigChange(a, b)
	require.Empty(t, sections)
	require.Empty(t, attrs)

	b.Logging.Level = "debug"
	b.Pprof.Token = "secret"
	b.Schedules = []string{"@hourly"}
	sections, attrs = SummarizeConfigChange(a, b)
	require.Equal(t, []string{"logging", "pprof", "schedules"}, sections)
	require.NotEmpty(t, attrs)

	require.False(t, RequiresRestart("logging"))
	require.True(t, RequiresRestart("schedules"))
}

func TestSummarizeIgnoresBlankSchedules(t *testing.T) {
	a := Default()
	a.Schedules = []string{"0 8 * * 1-5"}
	b := Default()
	b.Schedules = []string{" 0 8 * * 1-5 ", ""}

	sections, _ := SummarizeConfigChange(a, b)
	require.Empty(t, sections)
}

func TestSummarizeNil(t *testing.T) {
	sections, _ := SummarizeConfigChange(nil, Default())
	require.Contains(t, sections, "http")
	require.Contains(t, sections, "logging")
}
