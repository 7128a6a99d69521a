package schedule

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "cronwait/pkg/logx"
)

// 2024-01-05 is a Friday.
func friday(hour, min, sec int) time.Time {
	return time.Date(2024, time.January, 5, hour, min, sec, 0, time.UTC)
}

func newCalc(t *testing.T, exprs ...string) *Calculator {
	t.Helper()
	store, err := NewStore(exprs...)
	require.NoError(t, err)
	return NewCalculator(store, WithLocation(time.UTC))
}

func TestNextIntervalSecondsSingleSchedule(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "30 6 * * 1-5")

	got, err := c.NextIntervalSeconds(friday(6, 0, 0))
	require.NoError(t, err)
	require.EqualValues(t, 1800, got)
}

func TestNextIntervalSecondsPicksMinimum(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "30 6 * * 1-5", "0 8 * * 1-5")

	got, err := c.NextIntervalSeconds(friday(7, 0, 0))
	require.NoError(t, err)
	require.EqualValues(t, 3600, got)
}

func TestNextIntervalSecondsOrderIndependent(t *testing.T) {
	t.Parallel()
	now := friday(5, 0, 0)
	a := newCalc(t, "0 8 * * 1-5", "*/10 * * * *", "30 6 * * 1-5")
	b := newCalc(t, "30 6 * * 1-5", "0 8 * * 1-5", "*/10 * * * *")

	ga, err := a.NextIntervalSeconds(now)
	require.NoError(t, err)
	gb, err := b.NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 600, ga)
	require.Equal(t, ga, gb)
}

func TestNextIntervalSecondsRollsOverWeekend(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "30 6 * * 1-5", "0 8 * * 1-5")

	// Friday 09:00 -> Monday 06:30.
	got, err := c.NextIntervalSeconds(friday(9, 0, 0))
	require.NoError(t, err)
	want := time.Date(2024, time.January, 8, 6, 30, 0, 0, time.UTC).Sub(friday(9, 0, 0))
	require.EqualValues(t, int64(want/time.Second), got)
}

func TestNextIntervalSecondsStrictlyAfterNow(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "30 6 * * *")

	// Exactly at the firing instant: the next one is a day later.
	got, err := c.NextIntervalSeconds(friday(6, 30, 0))
	require.NoError(t, err)
	require.EqualValues(t, 24*3600, got)
}

func TestNextIntervalSecondsTruncatesFraction(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "30 6 * * 1-5")

	now := friday(6, 0, 0).Add(400 * time.Millisecond)
	got, err := c.NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 1799, got)
}

func TestNextIntervalSecondsAllMalformed(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "not a cron", "99 99 * * *")

	_, err := c.NextIntervalSeconds(friday(6, 0, 0))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoValidSchedule))

	var nv *NoValidScheduleError
	require.True(t, errors.As(err, &nv))
	require.Len(t, nv.Failures, 2)
	require.Equal(t, "not a cron", nv.Failures[0].Expr)
	require.Equal(t, 1, nv.Failures[1].Index)
}

func TestNextIntervalSecondsSkipsMalformed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	store, err := NewStore("garbage", "30 6 * * 1-5")
	require.NoError(t, err)
	c := NewCalculator(store, WithLocation(time.UTC), WithLogger(logx.NewWriter(&buf, "debug")))

	got, err := c.NextIntervalSeconds(friday(6, 0, 0))
	require.NoError(t, err)
	require.EqualValues(t, 1800, got)
	require.Contains(t, buf.String(), "invalid schedule skipped")
	require.Contains(t, buf.String(), `"expr":"garbage"`)
	require.Contains(t, buf.String(), `"message":"next occurrence"`)
	require.Contains(t, buf.String(), `"next":"2024-01-05T06:30:00.000Z"`)
}

func TestNextSkipsScheduleThatNeverFires(t *testing.T) {
	t.Parallel()
	c := newCalc(t, "0 0 30 2 *", "0 8 * * 1-5")

	outcomes := c.Evaluate(friday(7, 0, 0))
	require.Len(t, outcomes, 2)
	require.ErrorIs(t, outcomes[0].Err, ErrNeverFires)
	require.True(t, outcomes[1].OK())

	got, err := c.NextIntervalSeconds(friday(7, 0, 0))
	require.NoError(t, err)
	require.EqualValues(t, 3600, got)
}

func TestNextDescriptorsAndSeconds(t *testing.T) {
	t.Parallel()
	now := friday(6, 0, 0)

	every, err := newCalc(t, "@every 90s").NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 90, every)

	hourly, err := newCalc(t, "@hourly").NextIntervalSeconds(now.Add(30 * time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1800, hourly)

	withSeconds, err := newCalc(t, "15 30 6 * * 1-5").NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 1815, withSeconds)

	prefixed, err := newCalc(t, "cron: 30 6 * * 1-5").NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 1800, prefixed)
}

func TestNextUsesCalculatorLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	store, err := NewStore("0 8 * * *")
	require.NoError(t, err)
	c := NewCalculator(store, WithLocation(loc))

	// 00:00 UTC is 07:00 in UTC+7, so 08:00 local is one hour away.
	now := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	got, err := c.NextIntervalSeconds(now)
	require.NoError(t, err)
	require.EqualValues(t, 3600, got)

	next, err := c.Next(now)
	require.NoError(t, err)
	require.Equal(t, loc, next.Location())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	store, err := NewStore("30 6 * * 1-5", "nope", "@daily")
	require.NoError(t, err)

	bad := Validate(store)
	require.Len(t, bad, 1)
	require.Equal(t, 1, bad[0].Index)
	require.Equal(t, "nope", bad[0].Expr)
}

func TestNextAcceptsSevenAsSunday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr string
		now  time.Time
		want int64
	}{
		// Friday 08:00 -> Sunday 08:00.
		{"0 8 * * 7", friday(8, 0, 0), 2 * 24 * 3600},
		{"0 0 8 * * 7", friday(8, 0, 0), 2 * 24 * 3600},
		{"0 8 * * 0", friday(8, 0, 0), 2 * 24 * 3600},
		// Friday 08:00 -> Saturday 08:00.
		{"0 8 * * 6-7", friday(8, 0, 0), 24 * 3600},
		{"0 9 * * 1,7", friday(9, 0, 0), 2 * 24 * 3600},
		{"* * * * 5-7", friday(8, 0, 0), 60},
		// 1-7/2 is Mon, Wed, Fri, Sun.
		{"0 8 * * 1-7/2", friday(8, 0, 0), 2 * 24 * 3600},
	}
	for _, tt := range tests {
		got, err := newCalc(t, tt.expr).NextIntervalSeconds(tt.now)
		require.NoError(t, err, tt.expr)
		require.EqualValues(t, tt.want, got, tt.expr)
	}
}

func TestSundayAsSeven(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0 8 * * 0", sundayAsSeven("0 8 * * 7"))
	require.Equal(t, "0 8 * * 5,6,0", sundayAsSeven("0 8 * * 5-7"))
	require.Equal(t, "0 8 * * 1,0", sundayAsSeven("0 8 * * 1,7"))
	require.Equal(t, "7 0 8 * * 0", sundayAsSeven("7 0 8 * * 7"))
	require.Equal(t, "7 8 * * 1-5", sundayAsSeven("7 8 * * 1-5"))
	require.Equal(t, "@every 7m", sundayAsSeven("@every 7m"))

	_, err := Parse("0 8 * * 8")
	require.Error(t, err)
}

func TestEarliestTieGoesToFirstEntry(t *testing.T) {
	t.Parallel()
	now := friday(7, 0, 0)

	o, err := newCalc(t, "30 6 * * 1-5", "0 8 * * *", "0 8 * * 1-5").Earliest(now)
	require.NoError(t, err)
	require.Equal(t, 1, o.Index)
	require.Equal(t, "0 8 * * *", o.Expr)

	o, err = newCalc(t, "0 8 * * 1-5", "0 8 * * *").Earliest(now)
	require.NoError(t, err)
	require.Equal(t, 0, o.Index)
	require.Equal(t, friday(8, 0, 0), o.Next)
}
