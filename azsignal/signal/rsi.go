package signal

import "github.com/ezquant/azsignal/azsignal/model"

const confirmBars = 3

// RSIEvaluator emits +1 when RSI leaves the oversold zone and -1 when it leaves the
// overbought zone. With Confirm set, the 3 bars before the crossover must all sit in the
// zone being left.
type RSIEvaluator struct {
	Weekly  bool
	Lower   float64
	Upper   float64
	Confirm bool
	MinBars int
}

func (e RSIEvaluator) ID() ID {
	if e.Weekly {
		return RSIWeekly
	}
	return RSI
}

func (e RSIEvaluator) Range() Range { return unit }

func (e RSIEvaluator) Warmup() int { return e.MinBars }

func (e RSIEvaluator) Evaluate(in Input) Value {
	rsi := in.Indicators.RSI
	if e.Weekly {
		rsi = in.Indicators.RSIWeekly
	}

	bullish := rsi.CrossoverLevel(e.Lower)
	bearish := rsi.CrossunderLevel(e.Upper)
	if e.Confirm && !e.Weekly {
		bullish = bullish && zone(rsi, func(v float64) bool { return v <= e.Lower })
		bearish = bearish && zone(rsi, func(v float64) bool { return v >= e.Upper })
	}
	return sign(bullish, bearish)
}

// zone checks the bars preceding the current one
func zone(rsi model.Series[float64], in func(float64) bool) bool {
	if rsi.Length() < confirmBars+1 {
		return false
	}
	for position := 1; position <= confirmBars; position++ {
		v := rsi.Last(position)
		if !defined(v) || !in(v) {
			return false
		}
	}
	return true
}
