package azsignal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"

	"github.com/ezquant/azsignal/azsignal/exchange"
	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/order"
	"github.com/ezquant/azsignal/azsignal/position"
	"github.com/ezquant/azsignal/azsignal/service"
	"github.com/ezquant/azsignal/azsignal/storage"
	"github.com/ezquant/azsignal/azsignal/strategy"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const defaultDatabase = "azsignal.db"

var ErrNoPairs = errors.New("no pairs to trade")

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04",
	})
}

// ResultSubscriber receives the strategy output of every processed candle
type ResultSubscriber interface {
	OnResult(pair string, result strategy.Result)
}

type TradeSubscriber interface {
	OnTrade(model.Trade)
}

type AzSignal struct {
	storage  storage.Storage
	settings model.Settings
	feeder   service.Feeder
	broker   service.Broker
	config   strategy.Settings

	paperWallet *exchange.PaperWallet
	contexts    map[string]*strategy.Weighted
	dataframes  map[string]*model.Dataframe
	results     map[string]*order.Summary

	resultSubscribers []ResultSubscriber
	tradeSubscribers  []TradeSubscriber

	start, end time.Time
	progress   bool
}

type Option func(*AzSignal)

// NewBot validates the strategy settings and prepares a run over the given pairs. Every
// pair gets its own strategy context when Run starts.
func NewBot(_ context.Context, settings model.Settings, feeder service.Feeder, config strategy.Settings,
	options ...Option) (*AzSignal, error) {

	if len(settings.Pairs) == 0 {
		return nil, ErrNoPairs
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	bot := &AzSignal{
		settings:   settings,
		feeder:     feeder,
		config:     config,
		contexts:   make(map[string]*strategy.Weighted),
		dataframes: make(map[string]*model.Dataframe),
		results:    make(map[string]*order.Summary),
		progress:   true,
	}

	for _, option := range options {
		option(bot)
	}

	if bot.broker == nil {
		bot.paperWallet = exchange.NewPaperWallet(exchange.WithPairs(settings.Pairs...))
		bot.broker = bot.paperWallet
	}

	var err error
	if bot.storage == nil {
		bot.storage, err = storage.FromFile(defaultDatabase)
		if err != nil {
			return nil, err
		}
	}

	return bot, nil
}

// WithStorage sets the storage for the bot, by default it uses a local file called azsignal.db
func WithStorage(storage storage.Storage) Option {
	return func(bot *AzSignal) {
		bot.storage = storage
	}
}

// WithLogLevel sets the log level. eg: log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel, log.FatalLevel
func WithLogLevel(level log.Level) Option {
	return func(_ *AzSignal) {
		log.SetLevel(level)
	}
}

// WithPaperWallet sets the paper wallet executing the decisions
func WithPaperWallet(wallet *exchange.PaperWallet) Option {
	return func(bot *AzSignal) {
		bot.paperWallet = wallet
		bot.broker = wallet
	}
}

// WithBroker executes the decisions on a custom broker, the wallet summary is not available
func WithBroker(broker service.Broker) Option {
	return func(bot *AzSignal) {
		bot.paperWallet = nil
		bot.broker = broker
	}
}

// WithInterval restricts the run to candles between start and end
func WithInterval(start, end time.Time) Option {
	return func(bot *AzSignal) {
		bot.start = start
		bot.end = end
	}
}

// WithProgress shows or hides the progress bar
func WithProgress(enabled bool) Option {
	return func(bot *AzSignal) {
		bot.progress = enabled
	}
}

func WithResultSubscription(subscriber ResultSubscriber) Option {
	return func(bot *AzSignal) {
		bot.resultSubscribers = append(bot.resultSubscribers, subscriber)
	}
}

func WithTradeSubscription(subscriber TradeSubscriber) Option {
	return func(bot *AzSignal) {
		bot.tradeSubscribers = append(bot.tradeSubscribers, subscriber)
	}
}

func (n *AzSignal) Storage() storage.Storage {
	return n.storage
}

func (n *AzSignal) PaperWallet() *exchange.PaperWallet {
	return n.paperWallet
}

// Results returns the trade summary of every pair, keyed by pair
func (n *AzSignal) Results() map[string]*order.Summary {
	return n.results
}

// Indicators returns the diagnostic series of a pair after a run
func (n *AzSignal) Indicators(pair string) []strategy.ChartIndicator {
	str, ok := n.contexts[pair]
	if !ok {
		return nil
	}
	return str.Indicators(n.dataframes[pair])
}

func (n *AzSignal) candles(ctx context.Context, pair string) ([]model.Candle, error) {
	if n.start.IsZero() && n.end.IsZero() {
		return n.feeder.CandlesByLimit(ctx, pair, n.config.Timeframe, 0)
	}

	end := n.end
	if end.IsZero() {
		end = time.Now()
	}
	return n.feeder.CandlesByPeriod(ctx, pair, n.config.Timeframe, n.start, end)
}

// preload creates the strategy context of every pair and returns all candles in
// chronological order, candles sharing a timestamp keep the order of the pairs
func (n *AzSignal) preload(ctx context.Context) ([]model.Candle, error) {
	var all []model.Candle
	for _, pair := range n.settings.Pairs {
		candles, err := n.candles(ctx, pair)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", pair, err)
		}
		if err := model.CheckOrder(candles); err != nil {
			return nil, err
		}

		n.contexts[pair], err = strategy.New(n.config)
		if err != nil {
			return nil, err
		}
		n.dataframes[pair] = model.NewDataframe(pair)
		n.results[pair] = order.NewSummary(pair)

		if len(candles) < n.contexts[pair].WarmupPeriod() {
			log.Warnf("[SETUP] %s: %d candles, fewer than the warmup period of %d",
				pair, len(candles), n.contexts[pair].WarmupPeriod())
		}
		all = append(all, candles...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time.Before(all[j].Time)
	})
	return all, nil
}

func (n *AzSignal) processCandle(candle model.Candle) error {
	for _, trade := range n.broker.OnCandle(candle) {
		if err := n.storage.CreateTrade(&trade); err != nil {
			return fmt.Errorf("store trade: %w", err)
		}
		n.results[candle.Pair].Add(trade)
		for _, subscriber := range n.tradeSubscribers {
			subscriber.OnTrade(trade)
		}
		log.Infof("[TRADE] %s", trade)
	}

	// fills, rejected orders and stops may leave the broker out of step with the state machine
	str := n.contexts[candle.Pair]
	asset, _, err := n.broker.Position(candle.Pair)
	if err != nil {
		return err
	}
	str.SyncPosition(lo.Ternary(asset > 0, position.Long, position.Flat))

	df := n.dataframes[candle.Pair]
	df.Append(candle)
	result := str.Step(df)

	if err := n.broker.Submit(candle.Pair, result.Action, result.StopPrice); err != nil {
		return fmt.Errorf("submit %s %s: %w", result.Action, candle.Pair, err)
	}
	for _, subscriber := range n.resultSubscribers {
		subscriber.OnResult(candle.Pair, result)
	}
	return nil
}

// Run loads the candles of every pair, checks their ordering and replays them through the
// strategy contexts and the broker.
func (n *AzSignal) Run(ctx context.Context) error {
	candles, err := n.preload(ctx)
	if err != nil {
		return err
	}

	log.Infof("[SETUP] Starting backtesting of %d candles", len(candles))

	var progressBar *progressbar.ProgressBar
	if n.progress {
		progressBar = progressbar.Default(int64(len(candles)))
	}
	for _, candle := range candles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.processCandle(candle); err != nil {
			return err
		}

		if progressBar != nil {
			if err := progressBar.Add(1); err != nil {
				log.Warnf("update progressbar fail: %v", err)
			}
		}
	}
	return nil
}

// Summary function displays all trades, accuracy and some bot metrics in stdout
// To access the raw data, you may access `bot.Results()`
func (n *AzSignal) Summary() {
	var (
		total     float64
		wins      int
		loses     int
		volume    float64
		sqn       float64
		avgPayoff float64
	)

	ratio := func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	}

	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Pair", "Trades", "Win", "Loss", "% Win", "Payoff", "SQN", "Profit", "Volume"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	pairs := lo.Keys(n.results)
	sort.Strings(pairs)
	for _, pair := range pairs {
		summary := n.results[pair]
		avgPayoff += summary.Payoff() * float64(summary.Trades())
		table.Append([]string{
			summary.Pair,
			strconv.Itoa(summary.Trades()),
			strconv.Itoa(len(summary.Win())),
			strconv.Itoa(len(summary.Lose())),
			fmt.Sprintf("%.1f %%", summary.WinRate()*100),
			fmt.Sprintf("%.3f", summary.Payoff()),
			fmt.Sprintf("%.1f", summary.SQN()),
			fmt.Sprintf("%.2f", summary.Profit()),
			fmt.Sprintf("%.2f", summary.Volume),
		})
		total += summary.Profit()
		sqn += summary.SQN()
		wins += len(summary.Win())
		loses += len(summary.Lose())
		volume += summary.Volume
	}

	table.SetFooter([]string{
		"TOTAL",
		strconv.Itoa(wins + loses),
		strconv.Itoa(wins),
		strconv.Itoa(loses),
		fmt.Sprintf("%.1f %%", ratio(float64(wins), float64(wins+loses))*100),
		fmt.Sprintf("%.3f", ratio(avgPayoff, float64(wins+loses))),
		fmt.Sprintf("%.1f", ratio(sqn, float64(len(n.results)))),
		fmt.Sprintf("%.2f", total),
		fmt.Sprintf("%.2f", volume),
	})
	table.Render()

	fmt.Println(buffer.String())
	if n.paperWallet != nil {
		n.paperWallet.Summary()
	}
}
