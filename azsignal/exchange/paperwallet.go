package exchange

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/position"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const (
	ReasonSignal = "signal"
	ReasonStop   = "stop"
)

var ErrUnknownAction = errors.New("unknown action")

type holding struct {
	quantity  decimal.Decimal
	entry     decimal.Decimal
	stopPrice float64
	openedAt  time.Time
}

type pendingOrder struct {
	side      model.SideType
	stopPrice float64
}

type EquityPoint struct {
	Time  time.Time
	Value float64
}

// Metrics summarises a simulation
type Metrics struct {
	Start       float64
	Final       float64
	Returns     float64
	MaxDrawdown float64
	Sharpe      float64
	Trades      int
}

// PaperWallet simulates long only orders: a decision taken on the close of a candle is
// filled at the open of the next candle of the same pair, and a protective stop is filled
// at the stop price, or at the open when the candle gaps through it.
type PaperWallet struct {
	sync.Mutex
	quote          string
	initial        decimal.Decimal
	cash           decimal.Decimal
	fee            decimal.Decimal
	slippage       decimal.Decimal
	periodsPerYear float64

	holdings  map[string]*holding
	pending   map[string]pendingOrder
	lastClose map[string]float64
	pairs     map[string]struct{}
	trades    []model.Trade
	equity    []EquityPoint
	volume    decimal.Decimal
	maxEquity float64
	drawdown  float64
}

type PaperWalletOption func(*PaperWallet)

// WithPaperAsset sets the initial balance of the quote asset
func WithPaperAsset(quote string, amount float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.quote = quote
		wallet.initial = decimal.NewFromFloat(amount)
		wallet.cash = wallet.initial
	}
}

// WithPaperFee sets the commission charged on the traded value of every fill
func WithPaperFee(fee float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.fee = decimal.NewFromFloat(fee)
	}
}

// WithPaperSlippage moves market fills against the order by the given fraction
func WithPaperSlippage(slippage float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.slippage = decimal.NewFromFloat(slippage)
	}
}

// WithPeriodsPerYear sets the number of candles per year used to annualize the Sharpe ratio
func WithPeriodsPerYear(periods float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.periodsPerYear = periods
	}
}

// WithPairs declares the pairs sharing the cash balance, an entry spends the cash share of
// every pair that is not yet invested
func WithPairs(pairs ...string) PaperWalletOption {
	return func(wallet *PaperWallet) {
		for _, pair := range pairs {
			wallet.pairs[pair] = struct{}{}
		}
	}
}

func NewPaperWallet(options ...PaperWalletOption) *PaperWallet {
	wallet := &PaperWallet{
		quote:          "USD",
		initial:        decimal.NewFromInt(10000),
		cash:           decimal.NewFromInt(10000),
		fee:            decimal.NewFromFloat(0.002),
		periodsPerYear: 252,
		holdings:       make(map[string]*holding),
		pending:        make(map[string]pendingOrder),
		lastClose:      make(map[string]float64),
		pairs:          make(map[string]struct{}),
	}
	for _, option := range options {
		option(wallet)
	}
	wallet.maxEquity = wallet.initial.InexactFloat64()
	return wallet
}

func (p *PaperWallet) Quote() string { return p.quote }

// Submit schedules an order for the next candle of the pair. Entering while invested and
// exiting while flat are ignored, a newer decision replaces a pending one.
func (p *PaperWallet) Submit(pair string, action position.Action, stopPrice float64) error {
	p.Lock()
	defer p.Unlock()

	p.pairs[pair] = struct{}{}
	_, invested := p.holdings[pair]

	switch action {
	case position.Hold:
		return nil
	case position.Enter:
		if invested {
			log.Warnf("[WALLET] %s: enter ignored, already invested", pair)
			return nil
		}
		p.pending[pair] = pendingOrder{side: model.SideTypeBuy, stopPrice: stopPrice}
	case position.Exit:
		if !invested {
			delete(p.pending, pair)
			return nil
		}
		p.pending[pair] = pendingOrder{side: model.SideTypeSell}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return nil
}

// Position returns the held quantity of the pair and the free cash
func (p *PaperWallet) Position(pair string) (asset, quote float64, err error) {
	p.Lock()
	defer p.Unlock()

	if h, ok := p.holdings[pair]; ok {
		asset = h.quantity.InexactFloat64()
	}
	return asset, p.cash.InexactFloat64(), nil
}

// InPosition reports whether the wallet holds the pair
func (p *PaperWallet) InPosition(pair string) bool {
	p.Lock()
	defer p.Unlock()
	_, ok := p.holdings[pair]
	return ok
}

// OnCandle fills the pending order of the pair at the open, then checks the protective stop
// and finally marks the portfolio to the close.
func (p *PaperWallet) OnCandle(candle model.Candle) []model.Trade {
	p.Lock()
	defer p.Unlock()

	p.pairs[candle.Pair] = struct{}{}
	var fills []model.Trade

	if order, ok := p.pending[candle.Pair]; ok {
		delete(p.pending, candle.Pair)
		switch order.side {
		case model.SideTypeBuy:
			if trade, ok := p.buy(candle, order.stopPrice); ok {
				fills = append(fills, trade)
			}
		case model.SideTypeSell:
			if trade, ok := p.sell(candle, decimal.NewFromFloat(candle.Open), true, ReasonSignal); ok {
				fills = append(fills, trade)
			}
		}
	}

	if h, ok := p.holdings[candle.Pair]; ok && h.stopPrice > 0 && candle.Low <= h.stopPrice {
		price := math.Min(candle.Open, h.stopPrice)
		if trade, ok := p.sell(candle, decimal.NewFromFloat(price), false, ReasonStop); ok {
			fills = append(fills, trade)
		}
	}

	p.lastClose[candle.Pair] = candle.Close
	p.mark(candle.Time)

	p.trades = append(p.trades, fills...)
	return fills
}

func (p *PaperWallet) buy(candle model.Candle, stopPrice float64) (model.Trade, bool) {
	flat := lo.CountBy(lo.Keys(p.pairs), func(pair string) bool {
		_, invested := p.holdings[pair]
		return !invested
	})
	budget := p.cash.Div(decimal.NewFromInt(int64(max(flat, 1))))

	one := decimal.NewFromInt(1)
	price := decimal.NewFromFloat(candle.Open).Mul(one.Add(p.slippage))
	if !price.IsPositive() || !budget.IsPositive() {
		log.Warnf("[WALLET] %s: cannot buy at %s with %s %s", candle.Pair, price, budget, p.quote)
		return model.Trade{}, false
	}

	quantity := budget.Div(price.Mul(one.Add(p.fee)))
	value := quantity.Mul(price)
	fee := value.Mul(p.fee)

	p.cash = p.cash.Sub(value).Sub(fee)
	p.volume = p.volume.Add(value)
	p.holdings[candle.Pair] = &holding{
		quantity:  quantity,
		entry:     price,
		stopPrice: stopPrice,
		openedAt:  candle.Time,
	}

	return model.Trade{
		Pair:     candle.Pair,
		Side:     model.SideTypeBuy,
		Time:     candle.Time,
		Price:    price.InexactFloat64(),
		Quantity: quantity.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
		Reason:   ReasonSignal,
	}, true
}

func (p *PaperWallet) sell(candle model.Candle, price decimal.Decimal, slip bool, reason string) (model.Trade, bool) {
	h, ok := p.holdings[candle.Pair]
	if !ok {
		return model.Trade{}, false
	}

	if slip {
		price = price.Mul(decimal.NewFromInt(1).Sub(p.slippage))
	}
	value := h.quantity.Mul(price)
	fee := value.Mul(p.fee)

	p.cash = p.cash.Add(value).Sub(fee)
	p.volume = p.volume.Add(value)
	delete(p.holdings, candle.Pair)

	return model.Trade{
		Pair:     candle.Pair,
		Side:     model.SideTypeSell,
		Time:     candle.Time,
		Price:    price.InexactFloat64(),
		Quantity: h.quantity.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
		Reason:   reason,
	}, true
}

func (p *PaperWallet) value() float64 {
	total := p.cash
	for pair, h := range p.holdings {
		total = total.Add(h.quantity.Mul(decimal.NewFromFloat(p.lastClose[pair])))
	}
	return total.InexactFloat64()
}

// mark records the equity at t, candles of several pairs sharing a timestamp produce one point
func (p *PaperWallet) mark(t time.Time) {
	equity := p.value()
	if n := len(p.equity); n > 0 && p.equity[n-1].Time.Equal(t) {
		p.equity[n-1].Value = equity
	} else {
		p.equity = append(p.equity, EquityPoint{Time: t, Value: equity})
	}

	p.maxEquity = math.Max(p.maxEquity, equity)
	if p.maxEquity > 0 {
		p.drawdown = math.Min(p.drawdown, equity/p.maxEquity-1)
	}
}

func (p *PaperWallet) Trades() []model.Trade {
	p.Lock()
	defer p.Unlock()
	return append([]model.Trade(nil), p.trades...)
}

func (p *PaperWallet) EquityValues() []EquityPoint {
	p.Lock()
	defer p.Unlock()
	return append([]EquityPoint(nil), p.equity...)
}

// Volume is the traded quote value of every fill
func (p *PaperWallet) Volume() float64 {
	p.Lock()
	defer p.Unlock()
	return p.volume.InexactFloat64()
}

// Metrics computes returns, maximum drawdown and the annualized Sharpe ratio of the
// equity curve. Open positions are valued at their last close.
func (p *PaperWallet) Metrics() Metrics {
	p.Lock()
	defer p.Unlock()

	start := p.initial.InexactFloat64()
	final := p.value()

	metrics := Metrics{
		Start:       start,
		Final:       final,
		MaxDrawdown: p.drawdown,
		Trades:      len(p.trades),
	}
	if start > 0 {
		metrics.Returns = final/start - 1
	}
	metrics.Sharpe = sharpe(p.equity, p.periodsPerYear)
	return metrics
}

func sharpe(equity []EquityPoint, periodsPerYear float64) float64 {
	if len(equity) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1].Value > 0 {
			returns = append(returns, equity[i].Value/equity[i-1].Value-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := lo.Sum(returns) / float64(len(returns))
	variance := lo.SumBy(returns, func(r float64) float64 {
		return (r - mean) * (r - mean)
	}) / float64(len(returns)-1)
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}

// Summary prints the portfolio evolution
func (p *PaperWallet) Summary() {
	metrics := p.Metrics()

	fmt.Println("-- FINAL WALLET --")
	fmt.Printf("START PORTFOLIO = %.2f %s\n", metrics.Start, p.quote)
	fmt.Printf("FINAL PORTFOLIO = %.2f %s\n", metrics.Final, p.quote)
	fmt.Printf("GROSS PROFIT    =  %.2f %s (%.2f%%)\n", metrics.Final-metrics.Start, p.quote, metrics.Returns*100)
	fmt.Printf("MAX DRAWDOWN    = %.2f %%\n", metrics.MaxDrawdown*100)
	fmt.Printf("SHARPE RATIO    = %.2f\n", metrics.Sharpe)
	fmt.Printf("VOLUME          = %.2f %s\n", p.Volume(), p.quote)
	fmt.Println("------")
}
