package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/aggregator"
	"github.com/ezquant/azsignal/azsignal/indicator"
	"github.com/ezquant/azsignal/azsignal/plus/models"
	"github.com/ezquant/azsignal/azsignal/signal"
)

var ErrInvalidSettings = errors.New("invalid strategy settings")

const (
	PresetWeighted  = "weighted"
	PresetRSI       = "rsi"
	PresetMACD      = "macd"
	PresetBollinger = "bollinger"
)

// Settings is the whole configuration surface of a weighted strategy.
// An evaluator takes part in the score only when it has a window in Windows.
type Settings struct {
	Timeframe string `yaml:"timeframe"`

	RSIPeriod  int     `yaml:"rsi_period"`
	RSILower   float64 `yaml:"rsi_lower"`
	RSIUpper   float64 `yaml:"rsi_upper"`
	RSIConfirm bool    `yaml:"rsi_confirm"`

	MACDFast            int     `yaml:"macd_fast"`
	MACDSlow            int     `yaml:"macd_slow"`
	MACDSignal          int     `yaml:"macd_signal"`
	MACDRSILower        float64 `yaml:"macd_rsi_lower"`
	MACDRSIUpper        float64 `yaml:"macd_rsi_upper"`
	MACDHistDelta       float64 `yaml:"macd_hist_delta"`
	MACDWeeklyDeviation float64 `yaml:"macd_weekly_deviation"`

	BBPeriod    int     `yaml:"bb_period"`
	BBDeviation float64 `yaml:"bb_deviation"`

	EMAFast          int `yaml:"ema_fast"`
	EMAMid           int `yaml:"ema_mid"`
	EMASlow          int `yaml:"ema_slow"`
	EMALong          int `yaml:"ema_long"`
	EMAStackLookback int `yaml:"ema_stack_lookback"`

	ADXPeriod    int     `yaml:"adx_period"`
	ADXThreshold float64 `yaml:"adx_threshold"`

	StochKPeriod int     `yaml:"stoch_k_period"`
	StochDPeriod int     `yaml:"stoch_d_period"`
	StochLower   float64 `yaml:"stoch_lower"`
	StochUpper   float64 `yaml:"stoch_upper"`

	VolumeAvgPeriod      int     `yaml:"volume_avg_period"`
	VolumeAvgShortPeriod int     `yaml:"volume_avg_short_period"`
	VolumeRatio          float64 `yaml:"volume_ratio"`
	VolumeRatioHigh      float64 `yaml:"volume_ratio_high"`
	VolumeRatioConfirm   float64 `yaml:"volume_ratio_confirm"`
	CandleBodyRatio      float64 `yaml:"candle_body_ratio"`

	Windows map[signal.ID]int      `yaml:"windows"`
	Weights aggregator.WeightTable `yaml:"weights"`

	BuyThreshold  float64 `yaml:"buy_threshold"`
	SellThreshold float64 `yaml:"sell_threshold"`
	StopFraction  float64 `yaml:"stop_fraction"`
}

// DefaultSettings returns the weighted multi indicator configuration
func DefaultSettings() Settings {
	return Settings{
		Timeframe: "1d",

		RSIPeriod: 10,
		RSILower:  30,
		RSIUpper:  70,

		MACDFast:            12,
		MACDSlow:            26,
		MACDSignal:          9,
		MACDRSILower:        30,
		MACDRSIUpper:        70,
		MACDHistDelta:       0.25,
		MACDWeeklyDeviation: 1.5,

		BBPeriod:    20,
		BBDeviation: 2.1,

		EMAFast:          5,
		EMAMid:           10,
		EMASlow:          20,
		EMALong:          60,
		EMAStackLookback: 5,

		ADXPeriod:    14,
		ADXThreshold: 25,

		StochKPeriod: 14,
		StochDPeriod: 3,
		StochLower:   25,
		StochUpper:   75,

		VolumeAvgPeriod:      20,
		VolumeAvgShortPeriod: 10,
		VolumeRatio:          1.25,
		VolumeRatioHigh:      1.75,
		VolumeRatioConfirm:   1,
		CandleBodyRatio:      0.02,

		Windows: map[signal.ID]int{
			signal.RSI:         5,
			signal.RSIWeekly:   5,
			signal.MACD:        5,
			signal.MACDWeekly:  5,
			signal.Bollinger:   3,
			signal.EMACross:    3,
			signal.ADX:         3,
			signal.Momentum:    3,
			signal.Candlestick: 3,
			signal.Stochastic:  3,
		},
		Weights: aggregator.WeightTable{
			signal.RSI:         {Buy: 0.5, Sell: 0.25},
			signal.RSIWeekly:   {Buy: 0, Sell: 0},
			signal.MACD:        {Buy: 0.5, Sell: 0.5},
			signal.MACDWeekly:  {Buy: 0.25, Sell: 0.25},
			signal.Bollinger:   {Buy: 0.5, Sell: 0.25},
			signal.EMACross:    {Buy: 0.5, Sell: 0.5},
			signal.ADX:         {Buy: 0.25, Sell: 0.25},
			signal.Momentum:    {Buy: 0.25, Sell: 0.25},
			signal.Candlestick: {Buy: 0.25, Sell: 0.25},
			signal.Stochastic:  {Buy: 0.25, Sell: 0.25},
		},

		BuyThreshold:  1,
		SellThreshold: -1,
		StopFraction:  0.05,
	}
}

// Preset returns the settings of a named strategy. The single indicator presets trade on
// the raw signals of their evaluators: one bar windows, unit weights and no stop. The rsi
// and macd presets add up the daily and the weekly evaluator.
func Preset(name string) (Settings, error) {
	settings := DefaultSettings()

	single := func(ids ...signal.ID) {
		settings.Windows = map[signal.ID]int{}
		settings.Weights = aggregator.WeightTable{}
		for _, id := range ids {
			settings.Windows[id] = 1
			settings.Weights[id] = aggregator.Weight{Buy: 1, Sell: 1}
		}
		settings.StopFraction = 0
	}

	switch name {
	case PresetWeighted, "":
	case PresetRSI:
		single(signal.RSI, signal.RSIWeekly)
		settings.RSIPeriod = 12
		settings.RSILower = 25
		settings.RSIUpper = 75
	case PresetMACD:
		single(signal.MACD, signal.MACDWeekly)
	case PresetBollinger:
		single(signal.Bollinger)
	default:
		return Settings{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidSettings, name)
	}
	return settings, nil
}

func (s Settings) weekly() bool {
	_, rsi := s.Windows[signal.RSIWeekly]
	_, macd := s.Windows[signal.MACDWeekly]
	return rsi || macd
}

func (s Settings) params() indicator.Params {
	return indicator.Params{
		RSIPeriod:      s.RSIPeriod,
		MACDFast:       s.MACDFast,
		MACDSlow:       s.MACDSlow,
		MACDSignal:     s.MACDSignal,
		BBPeriod:       s.BBPeriod,
		BBDeviation:    s.BBDeviation,
		EMAFast:        s.EMAFast,
		EMAMid:         s.EMAMid,
		EMASlow:        s.EMASlow,
		EMALong:        s.EMALong,
		ADXPeriod:      s.ADXPeriod,
		StochKPeriod:   s.StochKPeriod,
		StochDPeriod:   s.StochDPeriod,
		VolumeAvg:      s.VolumeAvgPeriod,
		VolumeAvgShort: s.VolumeAvgShortPeriod,
		Weekly:         s.weekly(),
	}
}

// Validate reports every offending field at once, the returned error wraps ErrInvalidSettings
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	bound := func(v float64) bool { return finite(v) && v >= 0 && v <= 100 }

	periods := map[string]int{
		"rsi_period":              s.RSIPeriod,
		"macd_fast":               s.MACDFast,
		"macd_slow":               s.MACDSlow,
		"bb_period":               s.BBPeriod,
		"ema_fast":                s.EMAFast,
		"ema_mid":                 s.EMAMid,
		"ema_slow":                s.EMASlow,
		"ema_long":                s.EMALong,
		"adx_period":              s.ADXPeriod,
		"stoch_k_period":          s.StochKPeriod,
		"ema_stack_lookback":      s.EMAStackLookback,
		"volume_avg_period":       s.VolumeAvgPeriod,
		"volume_avg_short_period": s.VolumeAvgShortPeriod,
	}
	for _, name := range lo.Keys(periods) {
		check(periods[name] >= 2, "%s must be at least 2, got %d", name, periods[name])
	}
	check(s.MACDSignal >= 1, "macd_signal must be at least 1, got %d", s.MACDSignal)
	check(s.StochDPeriod >= 1, "stoch_d_period must be at least 1, got %d", s.StochDPeriod)
	check(s.MACDFast < s.MACDSlow, "macd_fast (%d) must be lower than macd_slow (%d)", s.MACDFast, s.MACDSlow)

	check(bound(s.RSILower) && bound(s.RSIUpper) && s.RSILower < s.RSIUpper,
		"rsi bounds must satisfy 0 <= rsi_lower < rsi_upper <= 100, got %v and %v", s.RSILower, s.RSIUpper)
	check(bound(s.MACDRSILower) && bound(s.MACDRSIUpper) && s.MACDRSILower < s.MACDRSIUpper,
		"macd rsi band must satisfy 0 <= macd_rsi_lower < macd_rsi_upper <= 100, got %v and %v",
		s.MACDRSILower, s.MACDRSIUpper)
	check(bound(s.StochLower) && bound(s.StochUpper) && s.StochLower < s.StochUpper,
		"stochastic bounds must satisfy 0 <= stoch_lower < stoch_upper <= 100, got %v and %v",
		s.StochLower, s.StochUpper)
	check(bound(s.ADXThreshold), "adx_threshold must be within [0, 100], got %v", s.ADXThreshold)

	nonNegative := map[string]float64{
		"macd_hist_delta":       s.MACDHistDelta,
		"macd_weekly_deviation": s.MACDWeeklyDeviation,
		"volume_ratio":          s.VolumeRatio,
		"volume_ratio_high":     s.VolumeRatioHigh,
		"volume_ratio_confirm":  s.VolumeRatioConfirm,
		"candle_body_ratio":     s.CandleBodyRatio,
	}
	for _, name := range lo.Keys(nonNegative) {
		v := nonNegative[name]
		check(finite(v) && v >= 0, "%s must be a non negative number, got %v", name, v)
	}
	check(finite(s.BBDeviation) && s.BBDeviation > 0, "bb_deviation must be positive, got %v", s.BBDeviation)

	check(len(s.Windows) > 0, "at least one evaluator window is required")
	for id, capacity := range s.Windows {
		check(id.Valid(), "unknown evaluator %q", id)
		check(capacity >= 1, "window of %s must be at least 1, got %d", id, capacity)
	}
	for id, weight := range s.Weights {
		check(id.Valid(), "unknown evaluator %q in weights", id)
		check(finite(weight.Buy) && weight.Buy >= 0, "buy weight of %s must be a non negative number, got %v", id, weight.Buy)
		check(finite(weight.Sell) && weight.Sell >= 0, "sell weight of %s must be a non negative number, got %v", id, weight.Sell)
	}

	check(finite(s.BuyThreshold) && s.BuyThreshold > 0, "buy_threshold must be positive, got %v", s.BuyThreshold)
	check(finite(s.SellThreshold) && s.SellThreshold < 0, "sell_threshold must be negative, got %v", s.SellThreshold)
	check(finite(s.StopFraction) && s.StopFraction >= 0 && s.StopFraction < 1,
		"stop_fraction must be within [0, 1), got %v", s.StopFraction)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

// Apply sets the named parameters on a copy of the settings. Names are the yaml keys of
// Settings, windows use "window_<evaluator>" and weights "buy_weight_<evaluator>" or
// "sell_weight_<evaluator>".
func (s Settings) Apply(params map[string]any) (Settings, error) {
	s.Windows = lo.Assign(map[signal.ID]int{}, s.Windows)
	s.Weights = s.Weights.Clone()

	var errs []error
	for _, name := range lo.Keys(params) {
		if err := s.set(name, params[name]); err != nil {
			errs = append(errs, fmt.Errorf("parameter %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return s, nil
}

func (s *Settings) set(name string, value any) error {
	if id, ok := strings.CutPrefix(name, "window_"); ok {
		if !signal.ID(id).Valid() {
			return fmt.Errorf("unknown evaluator %q", id)
		}
		capacity, err := models.ToInt(value)
		if err != nil {
			return err
		}
		if capacity == 0 {
			delete(s.Windows, signal.ID(id))
			return nil
		}
		s.Windows[signal.ID(id)] = capacity
		return nil
	}
	for _, side := range []string{"buy_weight_", "sell_weight_"} {
		id, ok := strings.CutPrefix(name, side)
		if !ok {
			continue
		}
		if !signal.ID(id).Valid() {
			return fmt.Errorf("unknown evaluator %q", id)
		}
		weight, err := models.ToFloat(value)
		if err != nil {
			return err
		}
		current := s.Weights[signal.ID(id)]
		if side == "buy_weight_" {
			current.Buy = weight
		} else {
			current.Sell = weight
		}
		s.Weights[signal.ID(id)] = current
		return nil
	}

	if name == "timeframe" {
		timeframe, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", value)
		}
		s.Timeframe = timeframe
		return nil
	}
	if name == "rsi_confirm" {
		confirm, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected a bool, got %T", value)
		}
		s.RSIConfirm = confirm
		return nil
	}

	if field, ok := s.intFields()[name]; ok {
		v, err := models.ToInt(value)
		if err != nil {
			return err
		}
		*field = v
		return nil
	}
	if field, ok := s.floatFields()[name]; ok {
		v, err := models.ToFloat(value)
		if err != nil {
			return err
		}
		*field = v
		return nil
	}
	return errors.New("unknown parameter")
}

func (s *Settings) intFields() map[string]*int {
	return map[string]*int{
		"rsi_period":              &s.RSIPeriod,
		"macd_fast":               &s.MACDFast,
		"macd_slow":               &s.MACDSlow,
		"macd_signal":             &s.MACDSignal,
		"bb_period":               &s.BBPeriod,
		"ema_fast":                &s.EMAFast,
		"ema_mid":                 &s.EMAMid,
		"ema_slow":                &s.EMASlow,
		"ema_long":                &s.EMALong,
		"ema_stack_lookback":      &s.EMAStackLookback,
		"adx_period":              &s.ADXPeriod,
		"stoch_k_period":          &s.StochKPeriod,
		"stoch_d_period":          &s.StochDPeriod,
		"volume_avg_period":       &s.VolumeAvgPeriod,
		"volume_avg_short_period": &s.VolumeAvgShortPeriod,
	}
}

func (s *Settings) floatFields() map[string]*float64 {
	return map[string]*float64{
		"rsi_lower":             &s.RSILower,
		"rsi_upper":             &s.RSIUpper,
		"macd_rsi_lower":        &s.MACDRSILower,
		"macd_rsi_upper":        &s.MACDRSIUpper,
		"macd_hist_delta":       &s.MACDHistDelta,
		"macd_weekly_deviation": &s.MACDWeeklyDeviation,
		"bb_deviation":          &s.BBDeviation,
		"adx_threshold":         &s.ADXThreshold,
		"stoch_lower":           &s.StochLower,
		"stoch_upper":           &s.StochUpper,
		"volume_ratio":          &s.VolumeRatio,
		"volume_ratio_high":     &s.VolumeRatioHigh,
		"volume_ratio_confirm":  &s.VolumeRatioConfirm,
		"candle_body_ratio":     &s.CandleBodyRatio,
		"buy_threshold":         &s.BuyThreshold,
		"sell_threshold":        &s.SellThreshold,
		"stop_fraction":         &s.StopFraction,
	}
}

// FromConfig starts from the preset named by the config strategy and applies the default
// value of every configured parameter.
func FromConfig(config *models.Config) (Settings, error) {
	settings, err := Preset(config.Strategy)
	if err != nil {
		return Settings{}, err
	}
	if config.BacktestConfig.Timeframe != "" {
		settings.Timeframe = config.BacktestConfig.Timeframe
	}
	return settings.Apply(config.Defaults())
}
