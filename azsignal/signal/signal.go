// Package signal turns indicator series into small bounded integer opinions per bar.
//
// Every evaluator is a pure function of the dataframe history and the indicator snapshot.
// Undefined (NaN) inputs never produce a crossover or a pattern, so they always evaluate
// to a neutral signal.
package signal

import (
	"fmt"
	"math"

	"github.com/ezquant/azsignal/azsignal/indicator"
	"github.com/ezquant/azsignal/azsignal/model"
)

// Value is the opinion of one evaluator on the current bar, positive is bullish
type Value int

const (
	Bearish Value = -1
	Neutral Value = 0
	Bullish Value = 1
)

// ID identifies an evaluator, it is also the configuration key of its weights and window
type ID string

const (
	RSI         ID = "rsi"
	RSIWeekly   ID = "rsi_weekly"
	MACD        ID = "macd"
	MACDWeekly  ID = "macd_weekly"
	Bollinger   ID = "bollinger"
	EMACross    ID = "ema_cross"
	ADX         ID = "adx"
	Momentum    ID = "momentum"
	Candlestick ID = "candlestick"
	Stochastic  ID = "stochastic"
)

// IDs lists every evaluator in evaluation order
var IDs = []ID{RSI, RSIWeekly, MACD, MACDWeekly, Bollinger, EMACross, ADX, Momentum, Candlestick, Stochastic}

func (id ID) Valid() bool {
	for _, known := range IDs {
		if id == known {
			return true
		}
	}
	return false
}

// Range is the closed interval of values an evaluator may return
type Range struct {
	Min Value
	Max Value
}

func (r Range) Contains(v Value) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

var (
	unit  = Range{Min: -1, Max: 1}
	pair  = Range{Min: -2, Max: 2}
	triad = Range{Min: -3, Max: 3}
)

// Input is everything an evaluator may look at for the current (last) bar
type Input struct {
	Frame      *model.Dataframe
	Indicators indicator.Snapshot
}

type Evaluator interface {
	ID() ID
	Range() Range
	// Warmup is the minimum number of bars before the evaluator may return a non neutral value
	Warmup() int
	Evaluate(in Input) Value
}

// Reading is the value produced by one evaluator on one bar
type Reading struct {
	ID    ID
	Value Value
}

// Evaluate runs every evaluator on the current bar, evaluators without enough history are neutral
func Evaluate(evaluators []Evaluator, in Input) []Reading {
	readings := make([]Reading, len(evaluators))
	for i, e := range evaluators {
		readings[i] = Reading{ID: e.ID(), Value: Neutral}
		if in.Frame == nil || in.Frame.Len() < max(e.Warmup(), 1) {
			continue
		}
		readings[i].Value = e.Evaluate(in)
	}
	return readings
}

// sign maps two mutually exclusive conditions to a unit value
func sign(bullish, bearish bool) Value {
	switch {
	case bullish:
		return Bullish
	case bearish:
		return Bearish
	}
	return Neutral
}

func defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// volumeRatio is volume divided by its average, zero when the average is not usable
func volumeRatio(volume, average float64) float64 {
	if !defined(volume, average) || average <= 0 {
		return 0
	}
	return volume / average
}
