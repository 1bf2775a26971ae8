// Package indicator wraps go-talib so that every series is aligned with the dataframe and
// the warm-up period is marked with NaN instead of zeros.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/ezquant/azsignal/azsignal/model"
)

// mask returns a copy of values where the first `lookback` entries are NaN
func mask(values []float64, lookback int) model.Series[float64] {
	out := make(model.Series[float64], len(values))
	for i, v := range values {
		if i < lookback {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// undefined returns a series of NaN with the given length
func undefined(size int) model.Series[float64] {
	return mask(make([]float64, size), size)
}

func SMALookback(period int) int { return period - 1 }
func EMALookback(period int) int { return period - 1 }
func RSILookback(period int) int { return period }
func BBLookback(period int) int  { return period - 1 }
func ADXLookback(period int) int { return 2*period - 1 }
func DILookback(period int) int  { return period }

func MACDLookback(fast, slow, signal int) int {
	return max(fast, slow) - 1 + signal - 1
}

func StochLookback(fastK, slowK, slowD int) int {
	return fastK - 1 + slowK - 1 + slowD - 1
}

func SMA(input model.Series[float64], period int) model.Series[float64] {
	lookback := SMALookback(period)
	if period < 1 || len(input) <= lookback {
		return undefined(len(input))
	}
	return mask(talib.Sma(input, period), lookback)
}

func EMA(input model.Series[float64], period int) model.Series[float64] {
	lookback := EMALookback(period)
	if period < 1 || len(input) <= lookback {
		return undefined(len(input))
	}
	return mask(talib.Ema(input, period), lookback)
}

func RSI(input model.Series[float64], period int) model.Series[float64] {
	lookback := RSILookback(period)
	if period < 2 || len(input) <= lookback {
		return undefined(len(input))
	}
	return mask(talib.Rsi(input, period), lookback)
}

// MACD returns the MACD line, the signal line and the histogram
func MACD(input model.Series[float64], fast, slow, signal int) (model.Series[float64],
	model.Series[float64], model.Series[float64]) {

	lookback := MACDLookback(fast, slow, signal)
	if fast < 2 || slow < 2 || signal < 1 || len(input) <= lookback {
		return undefined(len(input)), undefined(len(input)), undefined(len(input))
	}

	// the signal line is an EMA of the defined MACD values only
	start := max(fast, slow) - 1
	fastEMA, slowEMA := talib.Ema(input, fast), talib.Ema(input, slow)
	macd := make([]float64, len(input))
	for i := start; i < len(input); i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	macdSignal := make([]float64, len(input))
	copy(macdSignal[start:], talib.Ema(macd[start:], signal))

	hist := make([]float64, len(input))
	for i := range hist {
		hist[i] = macd[i] - macdSignal[i]
	}
	return mask(macd, lookback), mask(macdSignal, lookback), mask(hist, lookback)
}

// BB returns the upper, middle and lower Bollinger bands
func BB(input model.Series[float64], period int, deviation float64) (model.Series[float64],
	model.Series[float64], model.Series[float64]) {

	lookback := BBLookback(period)
	if period < 2 || len(input) <= lookback {
		return undefined(len(input)), undefined(len(input)), undefined(len(input))
	}
	upper, middle, lower := talib.BBands(input, period, deviation, deviation, talib.SMA)
	return mask(upper, lookback), mask(middle, lookback), mask(lower, lookback)
}

func ADX(high, low, close model.Series[float64], period int) model.Series[float64] {
	lookback := ADXLookback(period)
	if period < 2 || len(close) <= lookback {
		return undefined(len(close))
	}
	return mask(talib.Adx(high, low, close, period), lookback)
}

func PlusDI(high, low, close model.Series[float64], period int) model.Series[float64] {
	lookback := DILookback(period)
	if period < 2 || len(close) <= lookback {
		return undefined(len(close))
	}
	return mask(talib.PlusDI(high, low, close, period), lookback)
}

func MinusDI(high, low, close model.Series[float64], period int) model.Series[float64] {
	lookback := DILookback(period)
	if period < 2 || len(close) <= lookback {
		return undefined(len(close))
	}
	return mask(talib.MinusDI(high, low, close, period), lookback)
}

// Stoch returns the slow %K and %D lines, both smoothed with a simple moving average
func Stoch(high, low, close model.Series[float64], fastK, slowK, slowD int) (model.Series[float64],
	model.Series[float64]) {

	lookback := StochLookback(fastK, slowK, slowD)
	if fastK < 1 || slowK < 1 || slowD < 1 || len(close) <= lookback {
		return undefined(len(close)), undefined(len(close))
	}
	k, d := talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
	return mask(k, lookback), mask(d, lookback)
}
