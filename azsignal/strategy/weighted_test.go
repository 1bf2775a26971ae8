package strategy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/plus/models"
	"github.com/ezquant/azsignal/azsignal/position"
	"github.com/ezquant/azsignal/azsignal/signal"
)

func flatCandles(size int) []model.Candle {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, size)
	for i := range candles {
		candles[i] = model.Candle{
			Pair: "FLAT", Time: start.AddDate(0, 0, i),
			Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000, Complete: true,
		}
	}
	return candles
}

func randomCandles(seed int64, size int) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, size)
	price := 50.0
	for i := range candles {
		open := price
		price = math.Max(1, price*(1+rng.NormFloat64()*0.025))
		candles[i] = model.Candle{
			Pair:     "RAND",
			Time:     start.AddDate(0, 0, i),
			Open:     open,
			High:     math.Max(open, price) * (1 + rng.Float64()*0.01),
			Low:      math.Min(open, price) * (1 - rng.Float64()*0.01),
			Close:    price,
			Volume:   500 + rng.Float64()*1500,
			Complete: true,
		}
	}
	return candles
}

func run(t *testing.T, w *Weighted, candles []model.Candle) []Result {
	t.Helper()
	df := model.NewDataframe(candles[0].Pair)
	results := make([]Result, 0, len(candles))
	for _, candle := range candles {
		df.Append(candle)
		results = append(results, w.Step(df))
	}
	return results
}

func TestWeighted_FlatSeries(t *testing.T) {
	w, err := New(DefaultSettings())
	require.NoError(t, err)

	for _, result := range run(t, w, flatCandles(100)) {
		for _, reading := range result.Signals {
			require.Equal(t, signal.Neutral, reading.Value, "%s at %s", reading.ID, result.Time)
		}
		require.Equal(t, position.Hold, result.Action)
		require.Zero(t, result.BuyScore)
		require.Zero(t, result.SellScore)
	}
	assert.Equal(t, position.Flat, w.State())
}

func TestWeighted_ShortHistory(t *testing.T) {
	w, err := New(DefaultSettings())
	require.NoError(t, err)

	results := run(t, w, randomCandles(3, 5))
	require.Len(t, results, 5)
	for _, result := range results {
		assert.Len(t, result.Signals, len(signal.IDs))
		for _, reading := range result.Signals {
			assert.Equal(t, signal.Neutral, reading.Value)
		}
		assert.Equal(t, position.Hold, result.Action)
	}
}

func TestWeighted_Deterministic(t *testing.T) {
	candles := randomCandles(11, 250)

	first, err := New(DefaultSettings())
	require.NoError(t, err)
	second, err := New(DefaultSettings())
	require.NoError(t, err)

	a := run(t, first, candles)
	b := run(t, second, candles)
	assert.Equal(t, a, b)

	for _, result := range a {
		assert.False(t, math.IsNaN(result.BuyScore))
		assert.False(t, math.IsNaN(result.SellScore))
	}
}

func TestWeighted_ActionsFollowState(t *testing.T) {
	settings := DefaultSettings()
	settings.BuyThreshold = 0.25
	settings.SellThreshold = -0.25

	w, err := New(settings)
	require.NoError(t, err)

	state := position.Flat
	for _, result := range run(t, w, randomCandles(5, 300)) {
		switch result.Action {
		case position.Enter:
			require.Equal(t, position.Flat, state)
			require.InDelta(t, result.Close*0.95, result.StopPrice, 1e-9)
		case position.Exit:
			require.Equal(t, position.Long, state)
		}
		state = result.State
	}
}

func TestWeighted_SyncPosition(t *testing.T) {
	w, err := New(DefaultSettings())
	require.NoError(t, err)

	w.SyncPosition(position.Long)
	assert.Equal(t, position.Long, w.State())
	w.SyncPosition(position.Flat)
	assert.Equal(t, position.Flat, w.State())
}

func TestWeighted_WarmupPeriod(t *testing.T) {
	w, err := New(DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 61, w.WarmupPeriod())
	assert.Equal(t, "1d", w.Timeframe())

	settings, err := Preset(PresetRSI)
	require.NoError(t, err)
	w, err = New(settings)
	require.NoError(t, err)
	assert.Equal(t, 14, w.WarmupPeriod())
}

func TestWeighted_Indicators(t *testing.T) {
	w, err := New(DefaultSettings())
	require.NoError(t, err)

	df := model.DataframeFromCandles("RAND", randomCandles(1, 80))
	groups := w.Indicators(df)
	require.Len(t, groups, 7)
	for _, group := range groups {
		for _, metric := range group.Metrics {
			assert.Len(t, metric.Values, 80, metric.Name)
		}
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.RSIPeriod = 1
	settings.StopFraction = 1.5
	settings.Windows = map[signal.ID]int{signal.RSI: -1}

	_, err := New(settings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSettings))
	assert.ErrorContains(t, err, "rsi_period")
	assert.ErrorContains(t, err, "stop_fraction")
	assert.ErrorContains(t, err, "window of rsi")
}

func TestPresets(t *testing.T) {
	for _, name := range []string{PresetWeighted, PresetRSI, PresetMACD, PresetBollinger} {
		settings, err := Preset(name)
		require.NoError(t, err, name)
		require.NoError(t, settings.Validate(), name)
	}

	settings, err := Preset(PresetBollinger)
	require.NoError(t, err)
	assert.Equal(t, map[signal.ID]int{signal.Bollinger: 1}, settings.Windows)
	assert.Zero(t, settings.StopFraction)

	// daily and weekly readings are added up
	settings, err = Preset(PresetRSI)
	require.NoError(t, err)
	assert.Equal(t, map[signal.ID]int{signal.RSI: 1, signal.RSIWeekly: 1}, settings.Windows)
	assert.Equal(t, 1.0, settings.Weights[signal.RSIWeekly].Buy)
	assert.Equal(t, 1.0, settings.Weights[signal.RSIWeekly].Sell)
	assert.True(t, settings.params().Weekly)

	settings, err = Preset(PresetMACD)
	require.NoError(t, err)
	assert.Equal(t, map[signal.ID]int{signal.MACD: 1, signal.MACDWeekly: 1}, settings.Windows)
	assert.Equal(t, 1.0, settings.Weights[signal.MACDWeekly].Buy)
	assert.True(t, settings.params().Weekly)

	_, err = Preset("turtle")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSettings_Apply(t *testing.T) {
	base := DefaultSettings()

	settings, err := base.Apply(map[string]any{
		"rsi_period":       14,
		"rsi_confirm":      true,
		"bb_deviation":     2,
		"window_adx":       0,
		"buy_weight_rsi":   1.0,
		"sell_weight_macd": 0.75,
		"timeframe":        "1w",
	})
	require.NoError(t, err)

	assert.Equal(t, 14, settings.RSIPeriod)
	assert.True(t, settings.RSIConfirm)
	assert.Equal(t, 2.0, settings.BBDeviation)
	assert.NotContains(t, settings.Windows, signal.ADX)
	assert.Equal(t, 1.0, settings.Weights[signal.RSI].Buy)
	assert.Equal(t, 0.25, settings.Weights[signal.RSI].Sell)
	assert.Equal(t, 0.75, settings.Weights[signal.MACD].Sell)
	assert.Equal(t, "1w", settings.Timeframe)

	// the receiver is left untouched
	assert.Equal(t, 10, base.RSIPeriod)
	assert.Contains(t, base.Windows, signal.ADX)
	assert.Equal(t, 0.5, base.Weights[signal.RSI].Buy)

	_, err = base.Apply(map[string]any{"rsi_period": 10.5, "volume": 1, "window_turtle": 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.ErrorContains(t, err, "rsi_period")
	assert.ErrorContains(t, err, "volume")
	assert.ErrorContains(t, err, "window_turtle")
}

func TestFromConfig(t *testing.T) {
	config := &models.Config{
		Strategy: PresetMACD,
		Parameters: []models.Parameter{
			{Name: "macd_fast", Type: "int", Default: 8, Min: 6, Max: 12, Step: 2},
			{Name: "stop_fraction", Type: "float", Default: 0.1},
		},
	}
	config.BacktestConfig.Timeframe = "1h"

	settings, err := FromConfig(config)
	require.NoError(t, err)
	assert.Equal(t, 8, settings.MACDFast)
	assert.Equal(t, 0.1, settings.StopFraction)
	assert.Equal(t, "1h", settings.Timeframe)
	assert.Equal(t, map[signal.ID]int{signal.MACD: 1, signal.MACDWeekly: 1}, settings.Windows)
}
