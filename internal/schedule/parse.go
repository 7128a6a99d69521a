package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Standard 5-field crontab with an optional leading seconds field, plus
// descriptors like "@daily" and "@every 90m".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse parses a recurring schedule expression.
//
// Supported forms:
//   - Cron: "30 6 * * 1-5", "*/15 9-17 * * MON-FRI", "0 30 6 * * 1-5" (with seconds)
//   - Descriptors: "@hourly", "@daily", "@weekly", "@every 55m"
//
// An optional "cron:" prefix is stripped. Day-of-week 7 means Sunday, as
// in crontab(5).
func Parse(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
	}
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}
	sched, err := parser.Parse(sundayAsSeven(s))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return sched, nil
}

// sundayAsSeven rewrites 7 in the day-of-week field to 0, which is the
// only Sunday robfig/cron accepts. "7" becomes "0" and a range ending in
// 7 is expanded, e.g. "5-7" to "5,6,0" and "1-7/2" to "1,3,5,0". Anything
// it does not recognise is left for the parser to reject.
func sundayAsSeven(expr string) string {
	if strings.HasPrefix(expr, "@") {
		return expr
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 && len(fields) != 6 {
		return expr
	}
	dow := len(fields) - 1
	parts := strings.Split(fields[dow], ",")
	for i, p := range parts {
		parts[i] = dowPart(p)
	}
	fields[dow] = strings.Join(parts, ",")
	return strings.Join(fields, " ")
}

func dowPart(p string) string {
	if p == "7" {
		return "0"
	}
	rng, stepRaw, hasStep := strings.Cut(p, "/")
	lo, hi, isRange := strings.Cut(rng, "-")
	if !isRange || hi != "7" {
		return p
	}
	start, err := strconv.Atoi(lo)
	if err != nil || start < 0 || start > 7 {
		return p
	}
	step := 1
	if hasStep {
		if step, err = strconv.Atoi(stepRaw); err != nil || step <= 0 {
			return p
		}
	}
	var days []string
	seen := map[int]bool{}
	for d := start; d <= 7; d += step {
		day := d % 7
		if !seen[day] {
			seen[day] = true
			days = append(days, strconv.Itoa(day))
		}
	}
	return strings.Join(days, ",")
}
