package signal

// StochasticEvaluator reads %K/%D crossings in the oversold and overbought zones
type StochasticEvaluator struct {
	Lower   float64
	Upper   float64
	MinBars int
}

func (e StochasticEvaluator) ID() ID { return Stochastic }

func (e StochasticEvaluator) Range() Range { return unit }

func (e StochasticEvaluator) Warmup() int { return e.MinBars }

func (e StochasticEvaluator) Evaluate(in Input) Value {
	k, d := in.Indicators.StochK, in.Indicators.StochD
	current := k.Last(0)
	if !defined(current) {
		return Neutral
	}
	return sign(
		k.Crossover(d) && current < e.Lower,
		k.Crossunder(d) && current > e.Upper,
	)
}
