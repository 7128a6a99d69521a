package schedule

import (
	"time"

	logx "cronwait/pkg/logx"
)

// Outcome is the result of evaluating one store entry against a
// reference instant. Exactly one of Next (non-zero) or Err is set.
type Outcome struct {
	Index int
	Expr  string
	Next  time.Time
	Err   error
}

func (o Outcome) OK() bool { return o.Err == nil && !o.Next.IsZero() }

// Calculator computes the next occurrence across a Store.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	store *Store
	loc   *time.Location
	log   logx.Logger
}

type Option func(*Calculator)

// WithLocation evaluates expressions in loc instead of the host's local time.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Calculator) { c.log = log }
}

func NewCalculator(store *Store, opts ...Option) *Calculator {
	c := &Calculator{store: store, loc: time.Local}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

func (c *Calculator) Store() *Store { return c.store }

// Evaluate parses every expression and computes its first occurrence
// strictly after now. One outcome is returned per store entry, in order.
func (c *Calculator) Evaluate(now time.Time) []Outcome {
	ref := now.In(c.loc)
	out := make([]Outcome, 0, c.store.Len())
	for i := 0; i < c.store.Len(); i++ {
		expr := c.store.At(i)
		o := Outcome{Index: i, Expr: expr}
		sched, err := Parse(expr)
		if err != nil {
			o.Err = err
			out = append(out, o)
			continue
		}
		next := sched.Next(ref)
		if next.IsZero() || !next.After(now) {
			o.Err = ErrNeverFires
		} else {
			o.Next = next
		}
		out = append(out, o)
	}
	return out
}

// Earliest returns the outcome with the earliest occurrence strictly after
// now. Failed entries are logged and skipped; on a tie the earlier store
// entry wins. If no entry yields an occurrence the error is a
// *NoValidScheduleError.
func (c *Calculator) Earliest(now time.Time) (Outcome, error) {
	var (
		best     Outcome
		found    bool
		failures []Outcome
	)
	for _, o := range c.Evaluate(now) {
		if !o.OK() {
			c.log.Warn("invalid schedule skipped",
				logx.Int("index", o.Index),
				logx.String("expr", o.Expr),
				logx.Err(o.Err),
			)
			failures = append(failures, o)
			continue
		}
		if !found || o.Next.Before(best.Next) {
			best, found = o, true
		}
	}
	if !found {
		return Outcome{}, &NoValidScheduleError{Failures: failures}
	}
	c.log.Debug("next occurrence",
		logx.Int("index", best.Index),
		logx.String("expr", best.Expr),
		logx.Time("next", best.Next),
	)
	return best, nil
}

// Next returns the earliest occurrence strictly after now. See Earliest.
func (c *Calculator) Next(now time.Time) (time.Time, error) {
	o, err := c.Earliest(now)
	if err != nil {
		return time.Time{}, err
	}
	return o.Next, nil
}

// NextIntervalSeconds returns the whole seconds from now until the next
// occurrence. Fractional seconds are truncated.
func (c *Calculator) NextIntervalSeconds(now time.Time) (int64, error) {
	next, err := c.Next(now)
	if err != nil {
		return 0, err
	}
	return int64(next.Sub(now) / time.Second), nil
}

// Validate parses every expression without computing occurrences and
// returns the entries that failed.
func Validate(store *Store) []Outcome {
	var bad []Outcome
	for i := 0; i < store.Len(); i++ {
		if _, err := Parse(store.At(i)); err != nil {
			bad = append(bad, Outcome{Index: i, Expr: store.At(i), Err: err})
		}
	}
	return bad
}
