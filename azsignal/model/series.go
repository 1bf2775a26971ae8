package model

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Series is a time ordered list of values, the last element is the most recent one
type Series[T constraints.Ordered] []T

// Values returns the values of the series
func (s Series[T]) Values() []T {
	return s
}

// Length returns the number of values
func (s Series[T]) Length() int {
	return len(s)
}

// Last returns the value at position `position` counting backwards from the most recent
// value (0 is the current value). The zero value is returned when out of range.
func (s Series[T]) Last(position int) T {
	var zero T
	if position < 0 || position >= len(s) {
		return zero
	}
	return s[len(s)-1-position]
}

// LastValues returns the last `size` values of the series
func (s Series[T]) LastValues(size int) []T {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Crossover reports whether s crosses above ref on the current value:
// previous s <= previous ref and current s > current ref.
func (s Series[T]) Crossover(ref Series[T]) bool {
	if len(s) < 2 || len(ref) < 2 {
		return false
	}
	return s.Last(1) <= ref.Last(1) && s.Last(0) > ref.Last(0)
}

// Crossunder reports whether ref crosses above s on the current value.
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return ref.Crossover(s)
}

// CrossoverLevel reports whether s crosses above a constant level.
func (s Series[T]) CrossoverLevel(level T) bool {
	if len(s) < 2 {
		return false
	}
	return s.Last(1) <= level && s.Last(0) > level
}

// CrossunderLevel reports whether a constant level crosses above s,
// i.e. previous s >= level and current s < level.
func (s Series[T]) CrossunderLevel(level T) bool {
	if len(s) < 2 {
		return false
	}
	return level <= s.Last(1) && level > s.Last(0)
}

// Defined reports whether the last `size` values are all finite numbers.
func Defined(s Series[float64], size int) bool {
	if size <= 0 {
		return true
	}
	if len(s) < size {
		return false
	}
	for _, v := range s.LastValues(size) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Mean returns the arithmetic mean of the last `size` values, or NaN for an empty window.
func Mean(s Series[float64], size int) float64 {
	values := s.LastValues(size)
	if len(values) == 0 || size <= 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
