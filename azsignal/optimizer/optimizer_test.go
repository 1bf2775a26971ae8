package optimizer

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/plus/localkv"
	"github.com/ezquant/azsignal/azsignal/plus/models"
)

type memoryFeeder struct {
	candles map[string][]model.Candle
}

func (m memoryFeeder) CandlesByPeriod(_ context.Context, pair, _ string, start, end time.Time) ([]model.Candle, error) {
	var candles []model.Candle
	for _, candle := range m.candles[pair] {
		if !candle.Time.Before(start) && !candle.Time.After(end) {
			candles = append(candles, candle)
		}
	}
	return candles, nil
}

func (m memoryFeeder) CandlesByLimit(_ context.Context, pair, _ string, _ int) ([]model.Candle, error) {
	return append([]model.Candle(nil), m.candles[pair]...), nil
}

// countingFeeder counts the candle loads, one per pair for every backtest
type countingFeeder struct {
	memoryFeeder
	loads *atomic.Int32
}

func (c countingFeeder) CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]model.Candle, error) {
	c.loads.Add(1)
	return c.memoryFeeder.CandlesByLimit(ctx, pair, timeframe, limit)
}

func counting(feeder memoryFeeder) countingFeeder {
	return countingFeeder{memoryFeeder: feeder, loads: &atomic.Int32{}}
}

func randomWalk(pair string, n int, seed int64) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	candles := make([]model.Candle, n)
	for i := range candles {
		open := price
		price = math.Max(1, price*(1+rng.NormFloat64()*0.02))
		candles[i] = model.Candle{
			Pair:     pair,
			Time:     start.AddDate(0, 0, i),
			Open:     open,
			High:     math.Max(open, price) * (1 + rng.Float64()*0.01),
			Low:      math.Min(open, price) * (1 - rng.Float64()*0.01),
			Close:    price,
			Volume:   1000 + rng.Float64()*1000,
			Complete: true,
		}
	}
	return candles
}

func testConfig() *models.Config {
	return &models.Config{
		Strategy: "weighted",
		Parameters: []models.Parameter{
			{Name: "buy_threshold", Type: "float", Default: 1.0, Min: 0.5, Max: 1.0, Step: 0.5},
			{Name: "stop_fraction", Type: "float", Default: 0.05},
			{Name: "rsi_confirm", Type: "bool", Default: false},
		},
		BacktestConfig: models.BacktestConfig{Timeframe: "1d"},
		Data:           []models.DataFeed{{Pair: "AAPL"}, {Pair: "MSFT"}},
	}
}

func testFeeder() memoryFeeder {
	return memoryFeeder{candles: map[string][]model.Candle{
		"AAPL": randomWalk("AAPL", 160, 1),
		"MSFT": randomWalk("MSFT", 160, 2),
	}}
}

func TestOptimizer_ParameterSets(t *testing.T) {
	t.Run("cartesian product", func(t *testing.T) {
		config := &models.Config{Parameters: []models.Parameter{
			{Name: "rsi_period", Type: "int", Default: 10, Min: 8, Max: 12, Step: 2},
			{Name: "stop_fraction", Type: "float", Default: 0.05, Min: 0.02, Max: 0.06, Step: 0.02},
			{Name: "rsi_confirm", Type: "bool", Default: false},
			{Name: "adx_threshold", Type: "float", Default: 25.0},
		}}

		sets, err := NewOptimizer(config, nil).ParameterSets()
		require.NoError(t, err)
		require.Len(t, sets, 3*3*2)

		assert.Equal(t, map[string]interface{}{
			"rsi_period": 8, "stop_fraction": 0.02, "rsi_confirm": false,
		}, sets[0])
		assert.Equal(t, map[string]interface{}{
			"rsi_period": 12, "stop_fraction": 0.06, "rsi_confirm": true,
		}, sets[len(sets)-1])

		seen := make(map[string]bool)
		for _, set := range sets {
			assert.NotContains(t, set, "adx_threshold")
			seen[key(set)] = true
		}
		assert.Len(t, seen, len(sets))
	})

	t.Run("yaml numbers", func(t *testing.T) {
		config := &models.Config{Parameters: []models.Parameter{
			{Name: "ema_fast", Type: "int", Min: 3.0, Max: 5.0, Step: 1.0},
			{Name: "buy_threshold", Type: "float", Min: 1, Max: 2, Step: 1},
		}}
		sets, err := NewOptimizer(config, nil).ParameterSets()
		require.NoError(t, err)
		require.Len(t, sets, 6)
		assert.Equal(t, 3, sets[0]["ema_fast"])
		assert.Equal(t, 1.0, sets[0]["buy_threshold"])
	})

	t.Run("no tunable parameter", func(t *testing.T) {
		config := &models.Config{Parameters: []models.Parameter{{Name: "rsi_period", Type: "int", Default: 10}}}
		sets, err := NewOptimizer(config, nil).ParameterSets()
		require.NoError(t, err)
		assert.Equal(t, []map[string]interface{}{{}}, sets)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, param := range []models.Parameter{
			{Name: "a", Type: "int", Min: 5, Max: 1, Step: 1},
			{Name: "b", Type: "int", Min: 1, Max: 5, Step: 0},
			{Name: "c", Type: "int", Min: 1.5, Max: 5, Step: 1},
			{Name: "d", Type: "float", Min: "x", Max: 5.0, Step: 1.0},
			{Name: "e", Type: "string", Min: 1, Max: 5, Step: 1},
		} {
			config := &models.Config{Parameters: []models.Parameter{param}}
			_, err := NewOptimizer(config, nil).ParameterSets()
			assert.ErrorIs(t, err, ErrInvalidParameter, param.Name)
		}
	})
}

func TestKey(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1.5}
	b := map[string]interface{}{"a": 1.5, "b": 2}
	assert.Equal(t, key(a), key(b))
	assert.Equal(t, "a=1.5;b=2", key(a))
}

func TestOptimizer_Optimize(t *testing.T) {
	config := testConfig()
	kv, err := localkv.NewLocalKV("")
	require.NoError(t, err)
	defer kv.Close()

	optimizer := NewOptimizer(config, testFeeder(), WithWorkers(2), WithStore(kv))
	best, err := optimizer.Optimize(context.Background())
	require.NoError(t, err)

	results := optimizer.Results()
	require.Len(t, results, 4)
	assert.Equal(t, results[0], best)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Sharpe, results[i].Sharpe)
	}
	for _, result := range results {
		assert.LessOrEqual(t, result.Drawdown, 0.0)
		assert.False(t, math.IsNaN(result.Sharpe))
	}

	stored, err := optimizer.Stored(10)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.InDelta(t, best.Sharpe, stored[0].Sharpe, 1e-9)

	t.Run("deterministic and resumable", func(t *testing.T) {
		again := NewOptimizer(config, testFeeder(), WithWorkers(3))
		fresh, err := again.Optimize(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, best.Sharpe, fresh.Sharpe, 1e-9)

		// every set is read back from the store, candles are only loaded once per pair
		feeder := counting(testFeeder())
		resumed := NewOptimizer(config, feeder, WithStore(kv))
		result, err := resumed.Optimize(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, best.Sharpe, result.Sharpe, 1e-9)
		assert.Len(t, resumed.Results(), 4)
		assert.Equal(t, int32(2), feeder.loads.Load())
	})
}

func TestOptimizer_StoreIsScopedToConfigAndData(t *testing.T) {
	kv, err := localkv.NewLocalKV("")
	require.NoError(t, err)
	defer kv.Close()

	first, err := NewOptimizer(testConfig(), testFeeder(), WithStore(kv)).Optimize(context.Background())
	require.NoError(t, err)

	other := testConfig()
	other.Parameters[1].Default = 0.2
	otherData := memoryFeeder{candles: map[string][]model.Candle{
		"AAPL": randomWalk("AAPL", 160, 3),
		"MSFT": randomWalk("MSFT", 160, 4),
	}}

	for name, run := range map[string]struct {
		config *models.Config
		feeder memoryFeeder
	}{
		"other config":  {other, testFeeder()},
		"other data":    {testConfig(), otherData},
		"config + data": {other, otherData},
	} {
		t.Run(name, func(t *testing.T) {
			expected, err := NewOptimizer(run.config, run.feeder).Optimize(context.Background())
			require.NoError(t, err)

			feeder := counting(run.feeder)
			shared := NewOptimizer(run.config, feeder, WithStore(kv))
			result, err := shared.Optimize(context.Background())
			require.NoError(t, err)

			// nothing is read back from the first run, every set is backtested again
			assert.Equal(t, int32(2+4*2), feeder.loads.Load())
			assert.InDelta(t, expected.Sharpe, result.Sharpe, 1e-9)

			stored, err := shared.Stored(10)
			require.NoError(t, err)
			require.Len(t, stored, 4)
			assert.InDelta(t, expected.Sharpe, stored[0].Sharpe, 1e-9)
		})
	}

	// the first configuration still resumes from its own results
	feeder := counting(testFeeder())
	resumed, err := NewOptimizer(testConfig(), feeder, WithStore(kv)).Optimize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, first.Sharpe, resumed.Sharpe, 1e-9)
	assert.Equal(t, int32(2), feeder.loads.Load())
}

func TestSaveOptimizedConfig(t *testing.T) {
	config := testConfig()
	path := filepath.Join(t.TempDir(), "user_data", "optimized.yml")

	require.NoError(t, SaveOptimizedConfig(config, map[string]interface{}{"buy_threshold": 0.5}, path))

	saved, err := models.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, saved.Defaults()["buy_threshold"])
	assert.Equal(t, 1.0, config.Defaults()["buy_threshold"])
	assert.Equal(t, config.Pairs(), saved.Pairs())
}
