package signal

import "math"

// MACDEvaluator emits +1 when the MACD line crosses above its signal line and -1 on the
// opposite crossing.
//
// The daily variant only counts crossings while RSI is strictly inside (RSILower, RSIUpper)
// and, when HistDelta > 0, while the histogram moved by more than HistDelta on the bar.
// The weekly variant requires |MACD - signal| > Deviation instead.
type MACDEvaluator struct {
	Weekly    bool
	RSILower  float64
	RSIUpper  float64
	HistDelta float64
	Deviation float64
	MinBars   int
}

func (e MACDEvaluator) ID() ID {
	if e.Weekly {
		return MACDWeekly
	}
	return MACD
}

func (e MACDEvaluator) Range() Range { return unit }

func (e MACDEvaluator) Warmup() int { return e.MinBars }

func (e MACDEvaluator) Evaluate(in Input) Value {
	if e.Weekly {
		return e.weekly(in)
	}

	ind := in.Indicators
	macd, signal := ind.MACD, ind.MACDSignal
	rsi := ind.RSI.Last(0)
	if !defined(rsi) || rsi <= e.RSILower || rsi >= e.RSIUpper {
		return Neutral
	}

	if e.HistDelta > 0 {
		current, previous := ind.MACDHist.Last(0), ind.MACDHist.Last(1)
		if !defined(current, previous) || math.Abs(current-previous) <= e.HistDelta {
			return Neutral
		}
	}

	return sign(macd.Crossover(signal), macd.Crossunder(signal))
}

func (e MACDEvaluator) weekly(in Input) Value {
	macd, signal := in.Indicators.MACDWeekly, in.Indicators.MACDWeeklySignal
	deviation := math.Abs(macd.Last(0) - signal.Last(0))
	if !defined(deviation) || deviation <= e.Deviation {
		return Neutral
	}
	return sign(macd.Crossover(signal), macd.Crossunder(signal))
}
