package service

import (
	"context"
	"time"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/position"
)

// Feeder provides historical candles of a pair
type Feeder interface {
	CandlesByPeriod(ctx context.Context, pair, timeframe string, start, end time.Time) ([]model.Candle, error)
	CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]model.Candle, error)
}

// Broker executes strategy decisions on a simulated or real account
type Broker interface {
	// OnCandle fills pending orders and protective stops, returning the resulting trades
	OnCandle(candle model.Candle) []model.Trade
	// Submit schedules the action decided on the close of the last candle of pair
	Submit(pair string, action position.Action, stopPrice float64) error
	// Position returns the asset quantity held and the free quote balance
	Position(pair string) (asset, quote float64, err error)
}
