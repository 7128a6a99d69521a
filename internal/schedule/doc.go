// Package schedule holds the fixed set of recurring schedules and computes
// the next time any of them fires.
//
// The store is built once at startup and never mutated. The calculator
// evaluates every expression against a reference instant, collects one
// Outcome per expression, and picks the earliest Occurrence. Expressions
// that fail to parse (or can never fire) are logged and skipped.
package schedule
