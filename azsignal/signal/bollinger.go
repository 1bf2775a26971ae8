package signal

import "math"

// BollingerEvaluator sums three sub-signals:
//   - bounce: a candle closing outside a band followed by an opposite colour candle closing back inside
//   - breakout: two closes outside a band with the average volume of both bars above VolumeRatio
//   - reversal: a close outside a band followed by a body midpoint moving back, with the
//     larger of both volumes above VolumeRatioHigh
type BollingerEvaluator struct {
	VolumeRatio     float64
	VolumeRatioHigh float64
	MinBars         int
}

func (e BollingerEvaluator) ID() ID { return Bollinger }

func (e BollingerEvaluator) Range() Range { return triad }

func (e BollingerEvaluator) Warmup() int { return max(e.MinBars, 2) }

func (e BollingerEvaluator) Evaluate(in Input) Value {
	df, ind := in.Frame, in.Indicators
	upper0, upper1 := ind.BBUpper.Last(0), ind.BBUpper.Last(1)
	lower0, lower1 := ind.BBLower.Last(0), ind.BBLower.Last(1)
	if df.Len() < 2 || !defined(upper0, upper1, lower0, lower1) {
		return Neutral
	}

	c0, c1 := df.Close.Last(0), df.Close.Last(1)
	o0, o1 := df.Open.Last(0), df.Open.Last(1)
	v0, v1 := df.Volume.Last(0), df.Volume.Last(1)
	average := ind.VolumeAvg.Last(0)

	bounce := sign(
		c1 < o1 && c1 < lower1 && c0 > o0 && c0 > lower0,
		c1 > o1 && c1 > upper1 && c0 < o0 && c0 < upper0,
	)

	elevated := volumeRatio((v0+v1)/2, average) > e.VolumeRatio
	breakout := sign(
		c1 > upper1 && c0 > upper0 && elevated,
		c1 < lower1 && c0 < lower0 && elevated,
	)

	mid0, mid1 := (c0+o0)/2, (c1+o1)/2
	extreme := volumeRatio(math.Max(v0, v1), average) > e.VolumeRatioHigh
	reversal := sign(
		c1 < lower1 && mid0 > mid1 && extreme,
		c1 > upper1 && mid0 < mid1 && extreme,
	)

	return bounce + breakout + reversal
}
