// Package aggregator keeps one trailing window per evaluator and reduces the windows to a
// weighted buy score and sell score.
package aggregator

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/signal"
)

// Weight holds the buy and sell multipliers of one evaluator
type Weight struct {
	Buy  float64 `yaml:"buy"`
	Sell float64 `yaml:"sell"`
}

type WeightTable map[signal.ID]Weight

// Clone returns an independent copy of the table
func (t WeightTable) Clone() WeightTable {
	return lo.Assign(map[signal.ID]Weight{}, t)
}

// Aggregator is not safe for concurrent use, every strategy context owns its own.
type Aggregator struct {
	order   []signal.ID
	windows map[signal.ID]*Window
	weights WeightTable
}

// New allocates one window per evaluator id in capacities. Evaluators missing from the
// weight table weigh zero.
func New(capacities map[signal.ID]int, weights WeightTable) (*Aggregator, error) {
	a := &Aggregator{
		windows: make(map[signal.ID]*Window, len(capacities)),
		weights: weights.Clone(),
	}
	for _, id := range signal.IDs {
		capacity, ok := capacities[id]
		if !ok {
			continue
		}
		if capacity < 1 {
			return nil, fmt.Errorf("aggregator: window of %s must hold at least one value, got %d", id, capacity)
		}
		a.order = append(a.order, id)
		a.windows[id] = NewWindow(capacity)
	}
	return a, nil
}

// Update pushes the readings of the current bar and returns
// buy = Σ max(window)·buy weight and sell = Σ min(window)·sell weight.
// Readings of unknown evaluators are ignored.
func (a *Aggregator) Update(readings []signal.Reading) (buy, sell float64) {
	for _, reading := range readings {
		if window, ok := a.windows[reading.ID]; ok {
			window.Push(reading.Value)
		}
	}
	return a.Scores()
}

// Scores reduces the current windows without pushing anything
func (a *Aggregator) Scores() (buy, sell float64) {
	buy = lo.SumBy(a.order, func(id signal.ID) float64 {
		return float64(a.windows[id].Max()) * a.weights[id].Buy
	})
	sell = lo.SumBy(a.order, func(id signal.ID) float64 {
		return float64(a.windows[id].Min()) * a.weights[id].Sell
	})
	return buy, sell
}

func (a *Aggregator) Window(id signal.ID) (*Window, bool) {
	w, ok := a.windows[id]
	return w, ok
}

func (a *Aggregator) Reset() {
	for _, w := range a.windows {
		w.Reset()
	}
}
