package signal

import "github.com/ezquant/azsignal/azsignal/model"

// CandlestickEvaluator adds one point per classic reversal shape on the current candle:
// a large candle at the extreme relative to the fast EMA, an engulfing candle on rising
// volume and a hammer or shooting star against the 3-bar mean close.
// Bullish shapes need a green candle and bearish shapes a red one, so they never mix.
type CandlestickEvaluator struct {
	BodyRatio       float64
	VolumeRatioHigh float64
	MinBars         int
}

func (e CandlestickEvaluator) ID() ID { return Candlestick }

func (e CandlestickEvaluator) Range() Range { return triad }

func (e CandlestickEvaluator) Warmup() int { return max(e.MinBars, 3) }

func (e CandlestickEvaluator) Evaluate(in Input) Value {
	df, ind := in.Frame, in.Indicators
	if df.Len() < 3 {
		return Neutral
	}

	c0, c1 := df.Close.Last(0), df.Close.Last(1)
	o0, o1 := df.Open.Last(0), df.Open.Last(1)
	h0, l0 := df.High.Last(0), df.Low.Last(0)
	v0, v1 := df.Volume.Last(0), df.Volume.Last(1)
	green, red := c0 > o0, c0 < o0

	var value Value

	fast := ind.EMAFast.Last(0)
	if defined(fast) && o0 > 0 && c0 > 0 {
		mid := (c0 + o0) / 2
		heavy := volumeRatio(v0, ind.VolumeAvg.Last(0)) > e.VolumeRatioHigh
		value += sign(
			green && mid < fast && c0/o0 > 1+e.BodyRatio && heavy,
			red && mid > fast && o0/c0 > 1+e.BodyRatio && heavy,
		)
	}

	value += sign(
		c1 < o1 && green && c0 > o1 && o0 < c1 && v0 > v1,
		c1 > o1 && red && c0 < o1 && o0 > c1 && v0 > v1,
	)

	mean := model.Mean(df.Close, 3)
	value += sign(
		green && h0-l0 > 2*(c0-o0) && c0 < mean,
		red && h0-l0 > 2*(o0-c0) && c0 > mean,
	)

	return value
}
