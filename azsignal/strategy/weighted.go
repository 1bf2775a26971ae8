// Package strategy holds the per instrument strategy context: indicator adapter, signal
// evaluators, windowed aggregator and position state machine.
package strategy

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/aggregator"
	"github.com/ezquant/azsignal/azsignal/indicator"
	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/position"
	"github.com/ezquant/azsignal/azsignal/signal"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

// Result is the output of one bar
type Result struct {
	Time      time.Time
	Close     float64
	Action    position.Action
	StopPrice float64
	BuyScore  float64
	SellScore float64
	Signals   []signal.Reading
	State     position.State
}

func (r Result) String() string {
	return fmt.Sprintf("[%s] %s close=%.4f buy=%.2f sell=%.2f state=%s",
		r.Time.Format(time.DateOnly), r.Action, r.Close, r.BuyScore, r.SellScore, r.State)
}

// Weighted is the strategy context of one instrument. It is mutated by every Step and
// must not be shared between runs or goroutines.
type Weighted struct {
	settings   Settings
	adapter    indicator.Adapter
	evaluators []signal.Evaluator
	aggregator *aggregator.Aggregator
	machine    *position.Machine
}

// New validates the settings and allocates every signal window
func New(settings Settings) (*Weighted, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	agg, err := aggregator.New(settings.Windows, settings.Weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	return &Weighted{
		settings:   settings,
		adapter:    indicator.NewAdapter(settings.params()),
		evaluators: evaluators(settings),
		aggregator: agg,
		machine:    position.NewMachine(settings.BuyThreshold, settings.SellThreshold, settings.StopFraction),
	}, nil
}

// evaluators builds the enabled evaluators in the fixed evaluation order
func evaluators(s Settings) []signal.Evaluator {
	p := s.params()
	rsiBars := indicator.RSILookback(p.RSIPeriod) + 2
	if s.RSIConfirm {
		rsiBars += 2
	}
	stackBars := max(
		indicator.EMALookback(p.EMALong)+2,
		s.EMAStackLookback+indicator.EMALookback(max(p.EMAFast, p.EMAMid, p.EMASlow)),
		p.VolumeAvg,
	)

	all := map[signal.ID]signal.Evaluator{
		signal.RSI: signal.RSIEvaluator{
			Lower: s.RSILower, Upper: s.RSIUpper, Confirm: s.RSIConfirm, MinBars: rsiBars,
		},
		signal.RSIWeekly: signal.RSIEvaluator{
			Weekly: true, Lower: s.RSILower, Upper: s.RSIUpper, MinBars: 2,
		},
		signal.MACD: signal.MACDEvaluator{
			RSILower: s.MACDRSILower, RSIUpper: s.MACDRSIUpper, HistDelta: s.MACDHistDelta,
			MinBars: max(indicator.MACDLookback(p.MACDFast, p.MACDSlow, p.MACDSignal), indicator.RSILookback(p.RSIPeriod)) + 2,
		},
		signal.MACDWeekly: signal.MACDEvaluator{
			Weekly: true, Deviation: s.MACDWeeklyDeviation, MinBars: 2,
		},
		signal.Bollinger: signal.BollingerEvaluator{
			VolumeRatio: s.VolumeRatio, VolumeRatioHigh: s.VolumeRatioHigh,
			MinBars: max(indicator.BBLookback(p.BBPeriod)+2, p.VolumeAvg),
		},
		signal.EMACross: signal.EMACrossEvaluator{
			StackLookback: s.EMAStackLookback, VolumeRatio: s.VolumeRatio,
			VolumeRatioConfirm: s.VolumeRatioConfirm, MinBars: stackBars,
		},
		signal.ADX: signal.ADXEvaluator{
			Threshold: s.ADXThreshold, MinBars: indicator.ADXLookback(p.ADXPeriod) + 1,
		},
		signal.Momentum: signal.MomentumEvaluator{
			VolumeRatio: s.VolumeRatio,
			MinBars:     max(3, indicator.BBLookback(p.BBPeriod)+1, p.VolumeAvgShort),
		},
		signal.Candlestick: signal.CandlestickEvaluator{
			BodyRatio: s.CandleBodyRatio, VolumeRatioHigh: s.VolumeRatioHigh,
			MinBars: max(3, indicator.EMALookback(p.EMAFast)+1, p.VolumeAvg),
		},
		signal.Stochastic: signal.StochasticEvaluator{
			Lower: s.StochLower, Upper: s.StochUpper,
			MinBars: indicator.StochLookback(p.StochKPeriod, p.StochDPeriod, p.StochDPeriod) + 2,
		},
	}

	enabled := lo.Filter(signal.IDs, func(id signal.ID, _ int) bool {
		_, ok := s.Windows[id]
		return ok
	})
	return lo.Map(enabled, func(id signal.ID, _ int) signal.Evaluator {
		return all[id]
	})
}

func (w *Weighted) Settings() Settings { return w.settings }

func (w *Weighted) Timeframe() string { return w.settings.Timeframe }

// WarmupPeriod is the number of bars after which every enabled daily evaluator may fire
func (w *Weighted) WarmupPeriod() int {
	return lo.Max(lo.Map(w.evaluators, func(e signal.Evaluator, _ int) int {
		return e.Warmup()
	}))
}

func (w *Weighted) State() position.State { return w.machine.State() }

// SyncPosition aligns the state machine with the execution harness, it never emits an action
func (w *Weighted) SyncPosition(state position.State) {
	if state != w.machine.State() {
		log.Debugf("[STRATEGY] position synced from %s to %s", w.machine.State(), state)
	}
	w.machine.Sync(state)
}

// Step processes the last bar of df, which holds the complete history up to that bar.
// It always returns a well defined result.
func (w *Weighted) Step(df *model.Dataframe) Result {
	if df == nil || df.Len() == 0 {
		return Result{Action: position.Hold, State: w.machine.State(), Signals: []signal.Reading{}}
	}

	snapshot := w.adapter.Load(df)
	readings := signal.Evaluate(w.evaluators, signal.Input{Frame: df, Indicators: snapshot})
	buy, sell := w.aggregator.Update(readings)

	closePrice := df.Close.Last(0)
	decision := w.machine.Next(buy, sell, closePrice)

	result := Result{
		Time:      df.Time[len(df.Time)-1],
		Close:     closePrice,
		Action:    decision.Action,
		StopPrice: decision.StopPrice,
		BuyScore:  buy,
		SellScore: sell,
		Signals:   readings,
		State:     w.machine.State(),
	}

	if decision.Action != position.Hold {
		log.WithFields(log.Fields{
			"pair": df.Pair,
			"buy":  buy,
			"sell": sell,
			"stop": decision.StopPrice,
		}).Debugf("[STRATEGY] %s at %.4f", decision.Action, closePrice)
	}

	return result
}

// Indicators returns the diagnostic series of df grouped for charting
func (w *Weighted) Indicators(df *model.Dataframe) []ChartIndicator {
	w.adapter.Load(df)
	return chartIndicators(df, w.WarmupPeriod())
}
