// Package assert expresses business-rule guards for command handlers. A
// failed check reports every failed condition as one es.ValidationError.
package assert

import (
	"cmp"
	"fmt"

	"github.com/codewandler/esgo/core/es"
)

type CondFunc func() bool

type Cond interface {
	String() string
	Eval() bool
}

type cond struct {
	name string
	cond CondFunc
}

func (c *cond) String() string { return c.name }
func (c *cond) Eval() bool     { return c.cond() }

func newCond(name string, condFn CondFunc) *cond { return &cond{name: name, cond: condFn} }

// That wraps an arbitrary predicate.
func That(name string, fn CondFunc) Cond { return newCond(name, fn) }

func Not(c Cond) Cond {
	return newCond(fmt.Sprintf("[not](%s)", c.String()), func() bool { return !c.Eval() })
}
func True(v bool, name string) Cond  { return newCond(name, func() bool { return v }) }
func False(v bool, name string) Cond { return newCond(name, func() bool { return !v }) }

func Equal[T comparable](got, want T, name string) Cond {
	return newCond(name, func() bool { return got == want })
}

func Greater[T cmp.Ordered](a, b T, name string) Cond {
	return newCond(name, func() bool { return a > b })
}

func GreaterOrEqual[T cmp.Ordered](a, b T, name string) Cond {
	return newCond(name, func() bool { return a >= b })
}

// Any holds when at least one of cs holds.
func Any(name string, cs ...Cond) Cond {
	return newCond(name, func() bool {
		for _, c := range cs {
			if c.Eval() {
				return true
			}
		}
		return false
	})
}

// Failed returns the names of the conditions that do not hold, in order.
func Failed(cs ...Cond) []string {
	var failed []string
	for _, c := range cs {
		if !c.Eval() {
			failed = append(failed, c.String())
		}
	}
	return failed
}

// Check evaluates all conditions and returns nil or an *es.ValidationError
// naming every failed one.
func Check(msg string, cs ...Cond) error {
	if failed := Failed(cs...); len(failed) > 0 {
		return es.NewValidationError(msg, failed...)
	}
	return nil
}
