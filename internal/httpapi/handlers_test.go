package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cronwait/internal/schedule"
)

type fakeCalc struct {
	secs int64
	err  error
	got  time.Time
}

func (f *fakeCalc) NextIntervalSeconds(now time.Time) (int64, error) {
	f.got = now
	return f.secs, f.err
}

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestNextReturnsSeconds(t *testing.T) {
	now := time.Date(2024, time.January, 5, 6, 0, 0, 0, time.UTC)
	calc := &fakeCalc{secs: 1800}
	r := NewRouter(RouterOptions{Calc: calc, Clock: fixedClock(now)})

	rec := do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1800", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Equal(t, now, calc.got)
}

func TestNextFailureReturnsJSONError(t *testing.T) {
	calc := &fakeCalc{err: &schedule.NoValidScheduleError{}}
	r := NewRouter(RouterOptions{Calc: calc})

	rec := do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	require.Equal(t, `{"error":"Failed to calculate next time"}`, rec.Body.String())

	// The server keeps serving after a failure.
	calc.err = nil
	calc.secs = 5
	rec = do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5", rec.Body.String())
}

func TestNextWithRealCalculator(t *testing.T) {
	store, err := schedule.NewStore("30 6 * * 1-5", "0 8 * * 1-5")
	require.NoError(t, err)
	calc := schedule.NewCalculator(store, schedule.WithLocation(time.UTC))
	now := time.Date(2024, time.January, 5, 7, 0, 0, 0, time.UTC)
	r := NewRouter(RouterOptions{Calc: calc, Clock: fixedClock(now)})

	rec := do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3600", rec.Body.String())

	bad, err := schedule.NewStore("garbage")
	require.NoError(t, err)
	r = NewRouter(RouterOptions{Calc: schedule.NewCalculator(bad), Clock: fixedClock(now)})
	rec = do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEchoAndHealth(t *testing.T) {
	r := NewRouter(RouterOptions{Calc: &fakeCalc{}})

	rec := do(t, r, http.MethodGet, "/test/42")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/test/abc")
	require.Equal(t, "abc", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = do(t, r, http.MethodPost, "/")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, r, http.MethodGet, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	r := NewRouter(RouterOptions{Calc: &fakeCalc{secs: 1}, RatePerSec: 1, Burst: 2})

	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/").Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/").Code)
	rec := do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Equal(t, `{"error":"Too many requests"}`, rec.Body.String())
}

type panicCalc struct{}

func (panicCalc) NextIntervalSeconds(time.Time) (int64, error) { panic(errors.New("kaboom")) }

func TestRecovererReturns500(t *testing.T) {
	r := NewRouter(RouterOptions{Calc: panicCalc{}})
	rec := do(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPprofMount(t *testing.T) {
	r := NewRouter(RouterOptions{Calc: &fakeCalc{}})
	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/debug/pprof/").Code)

	r = NewRouter(RouterOptions{Calc: &fakeCalc{}, Pprof: PprofConfig{Enabled: true, Prefix: "/dbg", Token: "s3cret"}})
	require.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/dbg/").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/dbg/?token=wrong").Code)

	rec := do(t, r, http.MethodGet, "/dbg/?token=s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "goroutine")

	req := httptest.NewRequest(http.MethodGet, "/dbg/cmdline", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusPermanentRedirect, do(t, r, http.MethodGet, "/dbg").Code)
}

func TestNormalizePrefix(t *testing.T) {
	require.Equal(t, "/debug/pprof/", normalizePrefix(""))
	require.Equal(t, "/x/", normalizePrefix("x"))
	require.Equal(t, "/x/", normalizePrefix("/x/"))
}
