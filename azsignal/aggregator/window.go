package aggregator

import (
	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/signal"
)

// Window is a fixed capacity FIFO of recent signal values. The backing array is allocated
// once, pushing into a full window overwrites the oldest value.
type Window struct {
	values []signal.Value
	head   int
	size   int
}

func NewWindow(capacity int) *Window {
	return &Window{values: make([]signal.Value, max(capacity, 1))}
}

func (w *Window) Push(v signal.Value) {
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
	if w.size < len(w.values) {
		w.size++
	}
}

func (w *Window) Len() int { return w.size }

func (w *Window) Cap() int { return len(w.values) }

// Values returns the window content from oldest to newest
func (w *Window) Values() []signal.Value {
	out := make([]signal.Value, 0, w.size)
	first := (w.head - w.size + len(w.values)) % len(w.values)
	for i := 0; i < w.size; i++ {
		out = append(out, w.values[(first+i)%len(w.values)])
	}
	return out
}

// Max is the largest value in the window, neutral when empty
func (w *Window) Max() signal.Value {
	if w.size == 0 {
		return signal.Neutral
	}
	return lo.Max(w.Values())
}

// Min is the smallest value in the window, neutral when empty
func (w *Window) Min() signal.Value {
	if w.size == 0 {
		return signal.Neutral
	}
	return lo.Min(w.Values())
}

func (w *Window) Reset() {
	w.head, w.size = 0, 0
}
