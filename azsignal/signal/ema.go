package signal

import "math"

// EMACrossEvaluator sums three sub-signals built on the fast/mid/slow EMA stack
// (5/10/20 by default) and a long EMA (60 by default):
//   - the close jumping over (or under) the whole stack with volume above VolumeRatioConfirm
//   - the stack ordering flipping between StackLookback bars ago and now
//   - the close crossing the long EMA with volume above VolumeRatio
type EMACrossEvaluator struct {
	StackLookback      int
	VolumeRatio        float64
	VolumeRatioConfirm float64
	MinBars            int
}

func (e EMACrossEvaluator) ID() ID { return EMACross }

func (e EMACrossEvaluator) Range() Range { return triad }

func (e EMACrossEvaluator) Warmup() int { return max(e.MinBars, e.StackLookback, 2) }

func (e EMACrossEvaluator) Evaluate(in Input) Value {
	return e.stackBreak(in) + e.stackFlip(in) + e.longCross(in)
}

func (e EMACrossEvaluator) stackBreak(in Input) Value {
	df, ind := in.Frame, in.Indicators
	fast, mid, slow := ind.EMAFast.Last(0), ind.EMAMid.Last(0), ind.EMASlow.Last(0)
	if df.Len() < 2 || !defined(fast, mid, slow) {
		return Neutral
	}

	low := math.Min(fast, math.Min(mid, slow))
	high := math.Max(fast, math.Max(mid, slow))
	c0, c1 := df.Close.Last(0), df.Close.Last(1)
	o0, o1 := df.Open.Last(0), df.Open.Last(1)
	confirmed := volumeRatio(df.Volume.Last(0), ind.VolumeAvg.Last(0)) > e.VolumeRatioConfirm

	return sign(
		math.Min(c1, o0) < low && c0 > high && c0 > o1 && confirmed,
		math.Max(c1, o0) > high && c0 < low && c0 < o1 && confirmed,
	)
}

func (e EMACrossEvaluator) stackFlip(in Input) Value {
	ind := in.Indicators
	back := e.StackLookback - 1
	if back < 1 || ind.EMASlow.Length() <= back {
		return Neutral
	}

	f0, m0, s0 := ind.EMAFast.Last(0), ind.EMAMid.Last(0), ind.EMASlow.Last(0)
	fb, mb, sb := ind.EMAFast.Last(back), ind.EMAMid.Last(back), ind.EMASlow.Last(back)
	if !defined(f0, m0, s0, fb, mb, sb) {
		return Neutral
	}

	return sign(
		f0 > m0 && m0 > s0 && fb < mb && mb < sb,
		f0 < m0 && m0 < s0 && fb > mb && mb > sb,
	)
}

func (e EMACrossEvaluator) longCross(in Input) Value {
	df, ind := in.Frame, in.Indicators
	if volumeRatio(df.Volume.Last(0), ind.VolumeAvg.Last(0)) <= e.VolumeRatio {
		return Neutral
	}
	return sign(df.Close.Crossover(ind.EMALong), df.Close.Crossunder(ind.EMALong))
}
