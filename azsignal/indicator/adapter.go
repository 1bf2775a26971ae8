package indicator

import (
	"github.com/ezquant/azsignal/azsignal/model"
)

// Metadata keys written by the adapter into the dataframe
const (
	KeyRSI              = "rsi"
	KeyRSIWeekly        = "rsi_weekly"
	KeyMACD             = "macd"
	KeyMACDSignal       = "macd_signal"
	KeyMACDHist         = "macd_hist"
	KeyMACDWeekly       = "macd_weekly"
	KeyMACDWeeklySignal = "macd_weekly_signal"
	KeyBBUpper          = "bb_upper"
	KeyBBMiddle         = "bb_middle"
	KeyBBLower          = "bb_lower"
	KeyEMAFast          = "ema_fast"
	KeyEMAMid           = "ema_mid"
	KeyEMASlow          = "ema_slow"
	KeyEMALong          = "ema_long"
	KeyADX              = "adx"
	KeyPlusDI           = "plus_di"
	KeyMinusDI          = "minus_di"
	KeyStochK           = "stoch_k"
	KeyStochD           = "stoch_d"
	KeyVolumeAvg        = "volume_avg"
	KeyVolumeAvgShort   = "volume_avg_short"
)

// Params are the lookback periods of every indicator the adapter produces
type Params struct {
	RSIPeriod      int
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	BBPeriod       int
	BBDeviation    float64
	EMAFast        int
	EMAMid         int
	EMASlow        int
	EMALong        int
	ADXPeriod      int
	StochKPeriod   int
	StochDPeriod   int
	VolumeAvg      int
	VolumeAvgShort int
	Weekly         bool
}

// Warmup is the number of bars needed before every daily series is defined
func (p Params) Warmup() int {
	return 1 + max(
		RSILookback(p.RSIPeriod),
		MACDLookback(p.MACDFast, p.MACDSlow, p.MACDSignal),
		BBLookback(p.BBPeriod),
		EMALookback(max(p.EMAFast, p.EMAMid, p.EMASlow, p.EMALong)),
		ADXLookback(p.ADXPeriod),
		StochLookback(p.StochKPeriod, p.StochDPeriod, p.StochDPeriod),
		SMALookback(max(p.VolumeAvg, p.VolumeAvgShort)),
	)
}

// Snapshot holds every indicator series aligned with the bars of a dataframe
type Snapshot struct {
	RSI              model.Series[float64]
	RSIWeekly        model.Series[float64]
	MACD             model.Series[float64]
	MACDSignal       model.Series[float64]
	MACDHist         model.Series[float64]
	MACDWeekly       model.Series[float64]
	MACDWeeklySignal model.Series[float64]
	BBUpper          model.Series[float64]
	BBMiddle         model.Series[float64]
	BBLower          model.Series[float64]
	EMAFast          model.Series[float64]
	EMAMid           model.Series[float64]
	EMASlow          model.Series[float64]
	EMALong          model.Series[float64]
	ADX              model.Series[float64]
	PlusDI           model.Series[float64]
	MinusDI          model.Series[float64]
	StochK           model.Series[float64]
	StochD           model.Series[float64]
	VolumeAvg        model.Series[float64]
	VolumeAvgShort   model.Series[float64]
}

// Adapter computes the indicator snapshot of a dataframe, it has no state of its own
type Adapter struct {
	params Params
}

func NewAdapter(params Params) Adapter {
	return Adapter{params: params}
}

func (a Adapter) Params() Params {
	return a.params
}

// Load computes all indicators for the full history of df, stores them in df.Metadata
// and returns them. Short histories produce NaN series, never an error.
func (a Adapter) Load(df *model.Dataframe) Snapshot {
	p := a.params
	var s Snapshot

	s.RSI = RSI(df.Close, p.RSIPeriod)
	s.MACD, s.MACDSignal, s.MACDHist = MACD(df.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
	s.BBUpper, s.BBMiddle, s.BBLower = BB(df.Close, p.BBPeriod, p.BBDeviation)
	s.EMAFast = EMA(df.Close, p.EMAFast)
	s.EMAMid = EMA(df.Close, p.EMAMid)
	s.EMASlow = EMA(df.Close, p.EMASlow)
	s.EMALong = EMA(df.Close, p.EMALong)
	s.ADX = ADX(df.High, df.Low, df.Close, p.ADXPeriod)
	s.PlusDI = PlusDI(df.High, df.Low, df.Close, p.ADXPeriod)
	s.MinusDI = MinusDI(df.High, df.Low, df.Close, p.ADXPeriod)
	s.StochK, s.StochD = Stoch(df.High, df.Low, df.Close, p.StochKPeriod, p.StochDPeriod, p.StochDPeriod)
	s.VolumeAvg = SMA(df.Volume, p.VolumeAvg)
	s.VolumeAvgShort = SMA(df.Volume, p.VolumeAvgShort)

	if p.Weekly {
		weekly, align := Weekly(df)
		s.RSIWeekly = Align(RSI(weekly.Close, p.RSIPeriod), align)
		macd, signal, _ := MACD(weekly.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
		s.MACDWeekly = Align(macd, align)
		s.MACDWeeklySignal = Align(signal, align)
	} else {
		s.RSIWeekly = undefined(df.Len())
		s.MACDWeekly = undefined(df.Len())
		s.MACDWeeklySignal = undefined(df.Len())
	}

	if df.Metadata == nil {
		df.Metadata = make(map[string]model.Series[float64])
	}
	for key, series := range s.Named() {
		df.Metadata[key] = series
	}

	return s
}

// Named returns the snapshot series keyed by their metadata name
func (s Snapshot) Named() map[string]model.Series[float64] {
	return map[string]model.Series[float64]{
		KeyRSI:              s.RSI,
		KeyRSIWeekly:        s.RSIWeekly,
		KeyMACD:             s.MACD,
		KeyMACDSignal:       s.MACDSignal,
		KeyMACDHist:         s.MACDHist,
		KeyMACDWeekly:       s.MACDWeekly,
		KeyMACDWeeklySignal: s.MACDWeeklySignal,
		KeyBBUpper:          s.BBUpper,
		KeyBBMiddle:         s.BBMiddle,
		KeyBBLower:          s.BBLower,
		KeyEMAFast:          s.EMAFast,
		KeyEMAMid:           s.EMAMid,
		KeyEMASlow:          s.EMASlow,
		KeyEMALong:          s.EMALong,
		KeyADX:              s.ADX,
		KeyPlusDI:           s.PlusDI,
		KeyMinusDI:          s.MinusDI,
		KeyStochK:           s.StochK,
		KeyStochD:           s.StochD,
		KeyVolumeAvg:        s.VolumeAvg,
		KeyVolumeAvgShort:   s.VolumeAvgShort,
	}
}
