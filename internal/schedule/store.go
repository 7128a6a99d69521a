package schedule

import (
	"errors"
	"strings"
)

// ErrEmptyStore is returned when a store would hold no expressions.
var ErrEmptyStore = errors.New("schedule store is empty")

// DefaultExpressions fire every weekday at 06:30 and 08:00.
var DefaultExpressions = []string{
	"30 6 * * 1-5",
	"0 8 * * 1-5",
}

// Store is an immutable, ordered list of recurring schedule expressions.
type Store struct {
	exprs []string
}

// NewStore copies exprs (trimmed, blanks dropped) into a new Store.
func NewStore(exprs ...string) (*Store, error) {
	out := make([]string, 0, len(exprs))
	for _, e := range exprs {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, ErrEmptyStore
	}
	return &Store{exprs: out}, nil
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exprs)
}

func (s *Store) At(i int) string { return s.exprs[i] }

// Expressions returns a copy of the stored expressions.
func (s *Store) Expressions() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.exprs...)
}
