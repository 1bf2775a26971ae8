package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrCandleOrder = errors.New("candles are not in strictly increasing time order")

type Settings struct {
	Pairs []string
}

// Candle is a single OHLCV bar of one pair
type Candle struct {
	Pair     string
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Complete bool
}

// Mid returns the midpoint of the candle body
func (c Candle) Mid() float64 {
	return (c.Open + c.Close) / 2
}

func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !c.Time.IsZero()
}

func (c Candle) String() string {
	return fmt.Sprintf("[%s] %s | O: %f, H: %f, L: %f, C: %f, V: %f",
		c.Time.Format("2006-01-02 15:04"), c.Pair, c.Open, c.High, c.Low, c.Close, c.Volume)
}

// CheckOrder returns ErrCandleOrder if timestamps are not strictly increasing.
func CheckOrder(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return fmt.Errorf("%w: %s at index %d (%s) follows %s", ErrCandleOrder, candles[i].Pair, i,
				candles[i].Time.Format(time.RFC3339), candles[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Dataframe keeps the full history of one pair, column oriented
type Dataframe struct {
	Pair string

	Close  Series[float64]
	Open   Series[float64]
	High   Series[float64]
	Low    Series[float64]
	Volume Series[float64]

	Time       []time.Time
	LastUpdate time.Time

	// Custom user metadata, indicator series are stored here by name
	Metadata map[string]Series[float64]
}

func NewDataframe(pair string) *Dataframe {
	return &Dataframe{
		Pair:     pair,
		Metadata: make(map[string]Series[float64]),
	}
}

// DataframeFromCandles builds a dataframe with the given candles in order
func DataframeFromCandles(pair string, candles []Candle) *Dataframe {
	df := NewDataframe(pair)
	for _, candle := range candles {
		df.Append(candle)
	}
	return df
}

// Append adds a completed candle at the end of the dataframe
func (df *Dataframe) Append(candle Candle) {
	df.Close = append(df.Close, candle.Close)
	df.Open = append(df.Open, candle.Open)
	df.High = append(df.High, candle.High)
	df.Low = append(df.Low, candle.Low)
	df.Volume = append(df.Volume, candle.Volume)
	df.Time = append(df.Time, candle.Time)
	df.LastUpdate = candle.Time
}

func (df *Dataframe) Len() int {
	return len(df.Close)
}

// Candle returns the candle stored at the given position counting backwards (0 is the current bar)
func (df *Dataframe) Candle(position int) Candle {
	index := len(df.Close) - 1 - position
	if index < 0 || index >= len(df.Close) {
		return Candle{Pair: df.Pair}
	}
	return Candle{
		Pair:     df.Pair,
		Time:     df.Time[index],
		Open:     df.Open[index],
		High:     df.High[index],
		Low:      df.Low[index],
		Close:    df.Close[index],
		Volume:   df.Volume[index],
		Complete: true,
	}
}

// Sample returns a copy of the dataframe restricted to the first `size` candles,
// metadata is not carried over.
func (df *Dataframe) Sample(size int) *Dataframe {
	if size > df.Len() {
		size = df.Len()
	}
	sample := NewDataframe(df.Pair)
	sample.Close = append(Series[float64]{}, df.Close[:size]...)
	sample.Open = append(Series[float64]{}, df.Open[:size]...)
	sample.High = append(Series[float64]{}, df.High[:size]...)
	sample.Low = append(Series[float64]{}, df.Low[:size]...)
	sample.Volume = append(Series[float64]{}, df.Volume[:size]...)
	sample.Time = append([]time.Time{}, df.Time[:size]...)
	if size > 0 {
		sample.LastUpdate = sample.Time[size-1]
	}
	return sample
}

type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// Trade is a simulated fill produced by the execution harness
type Trade struct {
	ID        int64    `gorm:"primaryKey"`
	Pair      string   `gorm:"index"`
	Side      SideType `gorm:"index"`
	Price     float64
	Quantity  float64
	Fee       float64
	Reason    string
	Time      time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf("[%s] %s %s | Price: %f, Quantity: %f, Reason: %s",
		t.Time.Format("2006-01-02 15:04"), t.Side, t.Pair, t.Price, t.Quantity, t.Reason)
}
