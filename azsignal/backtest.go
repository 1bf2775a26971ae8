package azsignal

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/ezquant/azsignal/azsignal/exchange"
	"github.com/ezquant/azsignal/azsignal/plus/models"
)

const tradingDaysPerYear = 252

// PeriodsPerYear converts a timeframe into the number of candles in a trading year
func PeriodsPerYear(timeframe string) (float64, error) {
	duration, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	return tradingDaysPerYear * float64(24*time.Hour) / float64(duration), nil
}

// NewPaperWallet creates the paper account described by the backtest section of a config
func NewPaperWallet(config models.BacktestConfig, timeframe string, pairs ...string) (*exchange.PaperWallet, error) {
	options := []exchange.PaperWalletOption{
		exchange.WithPairs(pairs...),
		exchange.WithPaperSlippage(config.Slippage),
	}

	if config.InitialBalance < 0 || config.Slippage < 0 || (config.Fee != nil && *config.Fee < 0) {
		return nil, fmt.Errorf("backtest balance, fee and slippage must not be negative")
	}
	if config.InitialBalance > 0 || config.Quote != "" {
		quote := config.Quote
		if quote == "" {
			quote = "USD"
		}
		balance := config.InitialBalance
		if balance == 0 {
			balance = 10000
		}
		options = append(options, exchange.WithPaperAsset(quote, balance))
	}
	if config.Fee != nil {
		options = append(options, exchange.WithPaperFee(*config.Fee))
	}

	periods, err := PeriodsPerYear(timeframe)
	if err != nil {
		return nil, err
	}
	options = append(options, exchange.WithPeriodsPerYear(periods))

	return exchange.NewPaperWallet(options...), nil
}

// NewCSVFeed loads the data files of a config, recorded with the given timeframe
func NewCSVFeed(config *models.Config, timeframe string) (*exchange.CSVFeed, error) {
	if len(config.Data) == 0 {
		return nil, ErrNoPairs
	}

	feeds := make([]exchange.PairFeed, 0, len(config.Data))
	for _, data := range config.Data {
		feeds = append(feeds, exchange.PairFeed{
			Pair:      data.Pair,
			File:      data.File,
			Timeframe: timeframe,
		})
	}
	return exchange.NewCSVFeed(timeframe, feeds...)
}
