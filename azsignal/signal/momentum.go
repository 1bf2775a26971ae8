package signal

import "math"

// MomentumEvaluator sums a 3-bar directional run and a gap candle, both confirmed by volume
// against the short volume average.
type MomentumEvaluator struct {
	VolumeRatio float64
	MinBars     int
}

func (e MomentumEvaluator) ID() ID { return Momentum }

func (e MomentumEvaluator) Range() Range { return pair }

func (e MomentumEvaluator) Warmup() int { return max(e.MinBars, 3) }

func (e MomentumEvaluator) Evaluate(in Input) Value {
	df, ind := in.Frame, in.Indicators
	if df.Len() < 3 {
		return Neutral
	}

	c0, c2 := df.Close.Last(0), df.Close.Last(2)
	o0, o2 := df.Open.Last(0), df.Open.Last(2)
	average := ind.VolumeAvgShort.Last(0)
	middle := ind.BBMiddle.Last(0)

	var run Value
	if defined(middle) {
		peak := math.Max(df.Volume.Last(0), math.Max(df.Volume.Last(1), df.Volume.Last(2)))
		active := volumeRatio(peak, average) > e.VolumeRatio
		run = sign(
			c0 > o0 && c2 > o2 && c0 > c2 && o0 > o2 && active && c0 > middle,
			c0 < o0 && c2 < o2 && c0 < c2 && o0 < o2 && active && c0 < middle,
		)
	}

	active := volumeRatio(df.Volume.Last(0), average) > e.VolumeRatio
	gap := sign(
		c0 > o0 && df.Low.Last(0) > df.High.Last(1) && active,
		c0 < o0 && df.High.Last(0) < df.Low.Last(1) && active,
	)

	return run + gap
}
