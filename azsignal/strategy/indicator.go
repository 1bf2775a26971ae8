package strategy

import (
	"time"

	"github.com/ezquant/azsignal/azsignal/indicator"
	"github.com/ezquant/azsignal/azsignal/model"
)

type MetricStyle string

const (
	StyleBar       = "bar"
	StyleScatter   = "scatter"
	StyleLine      = "line"
	StyleHistogram = "histogram"
	StyleWaterfall = "waterfall"
)

type IndicatorMetric struct {
	Name   string
	Color  string
	Style  MetricStyle // default: line
	Values model.Series[float64]
}

type ChartIndicator struct {
	Time      []time.Time
	Metrics   []IndicatorMetric
	Overlay   bool
	GroupName string
	Warmup    int
}

// chartIndicators groups the series the adapter stored in the dataframe metadata
func chartIndicators(df *model.Dataframe, warmup int) []ChartIndicator {
	metric := func(key, name, color string, style MetricStyle) IndicatorMetric {
		return IndicatorMetric{Name: name, Color: color, Style: style, Values: df.Metadata[key]}
	}
	group := func(name string, overlay bool, metrics ...IndicatorMetric) ChartIndicator {
		return ChartIndicator{
			Time:      df.Time,
			Metrics:   metrics,
			Overlay:   overlay,
			GroupName: name,
			Warmup:    warmup,
		}
	}

	return []ChartIndicator{
		group("Bollinger", true,
			metric(indicator.KeyBBUpper, "BB Upper", "gray", StyleLine),
			metric(indicator.KeyBBMiddle, "BB Middle", "orange", StyleLine),
			metric(indicator.KeyBBLower, "BB Lower", "gray", StyleLine),
		),
		group("EMA", true,
			metric(indicator.KeyEMAFast, "EMA Fast", "red", StyleLine),
			metric(indicator.KeyEMAMid, "EMA Mid", "blue", StyleLine),
			metric(indicator.KeyEMASlow, "EMA Slow", "green", StyleLine),
			metric(indicator.KeyEMALong, "EMA Long", "purple", StyleLine),
		),
		group("RSI", false,
			metric(indicator.KeyRSI, "RSI", "purple", StyleLine),
			metric(indicator.KeyRSIWeekly, "RSI Weekly", "pink", StyleLine),
		),
		group("MACD", false,
			metric(indicator.KeyMACD, "MACD", "blue", StyleLine),
			metric(indicator.KeyMACDSignal, "Signal", "red", StyleLine),
			metric(indicator.KeyMACDHist, "Histogram", "gray", StyleHistogram),
			metric(indicator.KeyMACDWeekly, "MACD Weekly", "navy", StyleLine),
			metric(indicator.KeyMACDWeeklySignal, "Signal Weekly", "maroon", StyleLine),
		),
		group("ADX", false,
			metric(indicator.KeyADX, "ADX", "black", StyleLine),
			metric(indicator.KeyPlusDI, "+DI", "green", StyleLine),
			metric(indicator.KeyMinusDI, "-DI", "red", StyleLine),
		),
		group("Stochastic", false,
			metric(indicator.KeyStochK, "%K", "blue", StyleLine),
			metric(indicator.KeyStochD, "%D", "orange", StyleLine),
		),
		group("Volume", false,
			metric(indicator.KeyVolumeAvg, "Volume Avg", "teal", StyleBar),
			metric(indicator.KeyVolumeAvgShort, "Volume Avg Short", "olive", StyleBar),
		),
	}
}
