package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jpillora/backoff"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const alphaVantageURL = "https://www.alphavantage.co"

var (
	ErrRateLimited          = errors.New("alphavantage rate limit reached")
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

type alphaVantageBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type alphaVantageResponse struct {
	Daily       map[string]alphaVantageBar `json:"Time Series (Daily)"`
	Intraday1   map[string]alphaVantageBar `json:"Time Series (1min)"`
	Intraday5   map[string]alphaVantageBar `json:"Time Series (5min)"`
	Intraday15  map[string]alphaVantageBar `json:"Time Series (15min)"`
	Intraday30  map[string]alphaVantageBar `json:"Time Series (30min)"`
	Intraday60  map[string]alphaVantageBar `json:"Time Series (60min)"`
	Note        string                     `json:"Note"`
	Information string                     `json:"Information"`
	Error       string                     `json:"Error Message"`
}

func (r alphaVantageResponse) series() map[string]alphaVantageBar {
	for _, series := range []map[string]alphaVantageBar{
		r.Daily, r.Intraday1, r.Intraday5, r.Intraday15, r.Intraday30, r.Intraday60,
	} {
		if series != nil {
			return series
		}
	}
	return nil
}

// AlphaVantage downloads daily or intraday stock bars
type AlphaVantage struct {
	client  *resty.Client
	apiKey  string
	backoff *backoff.Backoff
}

// NewAlphaVantage creates a client, baseURL is mostly replaced in tests
func NewAlphaVantage(apiKey string, baseURL string) *AlphaVantage {
	if baseURL == "" {
		baseURL = alphaVantageURL
	}
	return &AlphaVantage{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
		apiKey: apiKey,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    time.Minute,
			Factor: 2,
		},
	}
}

// queryFor maps a timeframe to the endpoint parameters
func queryFor(timeframe string) (map[string]string, error) {
	duration, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	switch duration {
	case 24 * time.Hour:
		return map[string]string{"function": "TIME_SERIES_DAILY"}, nil
	case time.Minute, 5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour:
		return map[string]string{
			"function": "TIME_SERIES_INTRADAY",
			"interval": fmt.Sprintf("%dmin", int(duration.Minutes())),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
}

func (a *AlphaVantage) fetch(ctx context.Context, pair, timeframe string) ([]model.Candle, error) {
	query, err := queryFor(timeframe)
	if err != nil {
		return nil, err
	}
	query["symbol"] = pair
	query["outputsize"] = "full"
	query["apikey"] = a.apiKey

	a.backoff.Reset()
	for {
		var body alphaVantageResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(&body).
			Get("/query")

		switch {
		case err != nil:
		case resp.IsError():
			err = fmt.Errorf("alphavantage %s: status %s", pair, resp.Status())
		case body.Error != "":
			return nil, fmt.Errorf("alphavantage %s: %s", pair, body.Error)
		case body.Note != "" || (body.Information != "" && body.series() == nil):
			err = ErrRateLimited
		default:
			return alphaVantageCandles(pair, body.series())
		}

		if ctx.Err() != nil || a.backoff.Attempt() >= maxRetries {
			return nil, fmt.Errorf("alphavantage %s: %w", pair, err)
		}
		wait := a.backoff.Duration()
		log.Warnf("[ALPHAVANTAGE] %s: %v, retrying in %s", pair, err, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func alphaVantageCandles(pair string, series map[string]alphaVantageBar) ([]model.Candle, error) {
	candles := make([]model.Candle, 0, len(series))
	for stamp, bar := range series {
		t, err := ParseTime(stamp)
		if err != nil {
			return nil, fmt.Errorf("alphavantage %s: %w", pair, err)
		}

		candle := model.Candle{Pair: pair, Time: t, Complete: true}
		for _, v := range []struct {
			raw    string
			target *float64
		}{
			{bar.Open, &candle.Open},
			{bar.High, &candle.High},
			{bar.Low, &candle.Low},
			{bar.Close, &candle.Close},
			{bar.Volume, &candle.Volume},
		} {
			if *v.target, err = strconv.ParseFloat(v.raw, 64); err != nil {
				return nil, fmt.Errorf("alphavantage %s at %s: %w", pair, stamp, err)
			}
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}

func (a *AlphaVantage) CandlesByPeriod(ctx context.Context, pair, timeframe string, start, end time.Time) ([]model.Candle, error) {
	candles, err := a.fetch(ctx, pair, timeframe)
	if err != nil {
		return nil, err
	}

	filtered := candles[:0]
	for _, candle := range candles {
		if !candle.Time.Before(start) && !candle.Time.After(end) {
			filtered = append(filtered, candle)
		}
	}
	return filtered, nil
}

func (a *AlphaVantage) CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]model.Candle, error) {
	candles, err := a.fetch(ctx, pair, timeframe)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(candles) {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}
