package signal

// ADXEvaluator follows the dominant directional indicator once the trend is strong enough
type ADXEvaluator struct {
	Threshold float64
	MinBars   int
}

func (e ADXEvaluator) ID() ID { return ADX }

func (e ADXEvaluator) Range() Range { return unit }

func (e ADXEvaluator) Warmup() int { return e.MinBars }

func (e ADXEvaluator) Evaluate(in Input) Value {
	ind := in.Indicators
	adx, plus, minus := ind.ADX.Last(0), ind.PlusDI.Last(0), ind.MinusDI.Last(0)
	if !defined(adx, plus, minus) || adx <= e.Threshold {
		return Neutral
	}
	return sign(plus > minus, minus > plus)
}
