package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeries_Last(t *testing.T) {
	s := Series[float64]{1, 2, 3}
	assert.Equal(t, 3.0, s.Last(0))
	assert.Equal(t, 1.0, s.Last(2))
	assert.Equal(t, 0.0, s.Last(3))
	assert.Equal(t, []float64{2, 3}, s.LastValues(2))
	assert.Equal(t, []float64{1, 2, 3}, s.LastValues(10))
}

func TestSeries_Crossover(t *testing.T) {
	tt := []struct {
		name  string
		a, b  Series[float64]
		over  bool
		under bool
	}{
		{"cross above", Series[float64]{1, 3}, Series[float64]{2, 2}, true, false},
		{"touch then above", Series[float64]{2, 3}, Series[float64]{2, 2}, true, false},
		{"cross below", Series[float64]{3, 1}, Series[float64]{2, 2}, false, true},
		{"stays above", Series[float64]{3, 4}, Series[float64]{2, 2}, false, false},
		{"equal now", Series[float64]{1, 2}, Series[float64]{2, 2}, false, false},
		{"nan previous", Series[float64]{math.NaN(), 3}, Series[float64]{2, 2}, false, false},
		{"too short", Series[float64]{3}, Series[float64]{2}, false, false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.over, tc.a.Crossover(tc.b))
			assert.Equal(t, tc.under, tc.a.Crossunder(tc.b))
			// both directions can never fire on the same bar
			assert.False(t, tc.a.Crossover(tc.b) && tc.b.Crossover(tc.a))
		})
	}
}

func TestSeries_CrossLevel(t *testing.T) {
	rsi := Series[float64]{20, 25, 26}
	assert.True(t, rsi.CrossoverLevel(25))
	assert.False(t, rsi[:2].CrossoverLevel(25))

	rsi = Series[float64]{80, 75, 74}
	assert.True(t, rsi.CrossunderLevel(75))
	assert.False(t, rsi[:2].CrossunderLevel(75))
}

func TestDefinedAndMean(t *testing.T) {
	s := Series[float64]{math.NaN(), 1, 2, 3}
	assert.True(t, Defined(s, 3))
	assert.False(t, Defined(s, 4))
	assert.False(t, Defined(s, 5))
	assert.Equal(t, 2.5, Mean(s, 2))
	assert.True(t, math.IsNaN(Mean(Series[float64]{}, 3)))
}

func TestDataframe(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{Pair: "AAPL", Time: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Pair: "AAPL", Time: start.Add(24 * time.Hour), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 20},
	}
	require.NoError(t, CheckOrder(candles))

	df := DataframeFromCandles("AAPL", candles)
	assert.Equal(t, 2, df.Len())
	assert.Equal(t, 2.5, df.Close.Last(0))
	assert.Equal(t, candles[0].Close, df.Candle(1).Close)
	assert.Equal(t, start.Add(24*time.Hour), df.LastUpdate)

	sample := df.Sample(1)
	assert.Equal(t, 1, sample.Len())
	assert.Equal(t, 2, df.Len())

	candles[1].Time = start
	assert.ErrorIs(t, CheckOrder(candles), ErrCandleOrder)
}
