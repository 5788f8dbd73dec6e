// Package filter provides composable predicates over incoming events,
// used to decide which subscribers a given event is dispatched to.
package filter

import "github.com/aviarybot/aviary/gateway"

// Filter decides whether an event should reach a subscriber.
type Filter interface {
	Accepts(e gateway.Event) bool
}

// Func adapts a plain function to a Filter.
type Func func(e gateway.Event) bool

func (f Func) Accepts(e gateway.Event) bool { return f(e) }

type andFilter struct {
	a, b Filter
}

func (f andFilter) Accepts(e gateway.Event) bool {
	return f.a.Accepts(e) && f.b.Accepts(e)
}

// And returns a Filter that accepts only events both a and b accept.
func And(a, b Filter) Filter {
	return andFilter{a: a, b: b}
}

type orFilter struct {
	a, b Filter
}

// Accepts is true disjunction: the event is accepted if either branch
// accepts it, evaluating b only when a does not already accept.
func (f orFilter) Accepts(e gateway.Event) bool {
	return f.a.Accepts(e) || f.b.Accepts(e)
}

// Or returns a Filter that accepts an event accepted by either a or b.
func Or(a, b Filter) Filter {
	return orFilter{a: a, b: b}
}

type notFilter struct {
	inner Filter
}

func (f notFilter) Accepts(e gateway.Event) bool {
	return !f.inner.Accepts(e)
}

// Not returns a Filter that accepts exactly the events inner rejects.
func Not(inner Filter) Filter {
	return notFilter{inner: inner}
}

type allFilter struct {
	filters []Filter
}

func (f allFilter) Accepts(e gateway.Event) bool {
	for _, inner := range f.filters {
		if !inner.Accepts(e) {
			return false
		}
	}
	return true
}

// All returns a Filter that accepts an event only if every given filter
// accepts it. An empty All accepts everything.
func All(filters ...Filter) Filter {
	return allFilter{filters: filters}
}

type noneFilter struct {
	filters []Filter
}

func (f noneFilter) Accepts(e gateway.Event) bool {
	for _, inner := range f.filters {
		if inner.Accepts(e) {
			return false
		}
	}
	return true
}

// None returns a Filter that accepts an event only if none of the given
// filters accept it. An empty None accepts everything.
func None(filters ...Filter) Filter {
	return noneFilter{filters: filters}
}

// Accept is the filter that accepts every event, useful as a default
// subscription when no filtering is needed.
var Accept Filter = Func(func(gateway.Event) bool { return true })

// Reject is the filter that accepts no event.
var Reject Filter = Func(func(gateway.Event) bool { return false })
