package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const (
	binanceKlineLimit = 1000
	binanceTestnetURL = "https://testnet.binance.vision"
	maxRetries        = 5
)

// Binance downloads spot klines, it only needs public endpoints
type Binance struct {
	client  *binance.Client
	backoff *backoff.Backoff

	apiKey    string
	apiSecret string
	testnet   bool
}

type BinanceOption func(*Binance)

// WithBinanceCredentials sets the API key and secret, they are optional for klines
func WithBinanceCredentials(key, secret string) BinanceOption {
	return func(b *Binance) {
		b.apiKey = key
		b.apiSecret = secret
	}
}

// WithBinanceTestnet switches the client to the spot testnet
func WithBinanceTestnet() BinanceOption {
	return func(b *Binance) {
		b.testnet = true
	}
}

func NewBinance(_ context.Context, options ...BinanceOption) (*Binance, error) {
	b := &Binance{
		backoff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
	for _, option := range options {
		option(b)
	}

	b.client = binance.NewClient(b.apiKey, b.apiSecret)
	if b.testnet {
		b.client.SetApiEndpoint(binanceTestnetURL)
	}
	return b, nil
}

func (b *Binance) klines(ctx context.Context, pair, timeframe string, start, end time.Time, limit int) ([]*binance.Kline, error) {
	b.backoff.Reset()
	for {
		service := b.client.NewKlinesService().Symbol(pair).Interval(timeframe).Limit(limit)
		if !start.IsZero() {
			service = service.StartTime(start.UnixMilli())
		}
		if !end.IsZero() {
			service = service.EndTime(end.UnixMilli())
		}

		klines, err := service.Do(ctx)
		if err == nil {
			return klines, nil
		}
		if ctx.Err() != nil || b.backoff.Attempt() >= maxRetries {
			return nil, fmt.Errorf("binance klines %s: %w", pair, err)
		}

		wait := b.backoff.Duration()
		log.Warnf("[BINANCE] %s: %v, retrying in %s", pair, err, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CandlesByPeriod pages through klines from start to end
func (b *Binance) CandlesByPeriod(ctx context.Context, pair, timeframe string, start, end time.Time) ([]model.Candle, error) {
	candles := make([]model.Candle, 0)
	for start.Before(end) {
		klines, err := b.klines(ctx, pair, timeframe, start, end, binanceKlineLimit)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}

		for _, kline := range klines {
			candle, err := klineToCandle(pair, kline)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}
		start = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
	}
	return candles, nil
}

func (b *Binance) CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]model.Candle, error) {
	klines, err := b.klines(ctx, pair, timeframe, time.Time{}, time.Time{}, limit+1)
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(klines))
	// the last kline is still open
	for _, kline := range klines[:max(len(klines)-1, 0)] {
		candle, err := klineToCandle(pair, kline)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func klineToCandle(pair string, kline *binance.Kline) (model.Candle, error) {
	candle := model.Candle{
		Pair:     pair,
		Time:     time.UnixMilli(kline.OpenTime).UTC(),
		Complete: true,
	}

	var err error
	values := []struct {
		raw    string
		target *float64
	}{
		{kline.Open, &candle.Open},
		{kline.High, &candle.High},
		{kline.Low, &candle.Low},
		{kline.Close, &candle.Close},
		{kline.Volume, &candle.Volume},
	}
	for _, v := range values {
		*v.target, err = strconv.ParseFloat(v.raw, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("binance kline %s: %w", pair, err)
		}
	}
	return candle, nil
}
