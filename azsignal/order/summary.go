package order

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/model"
)

// Summary aggregates the closed round trips of one pair. Profits are net of the fees of
// both legs, percentages are relative to the entry value.
type Summary struct {
	Pair      string
	WinPct    []float64
	LosePct   []float64
	Wins      []float64
	Losses    []float64
	Volume    float64
	openValue float64
	openFee   float64
	openQty   float64
}

func NewSummary(pair string) *Summary {
	return &Summary{Pair: pair}
}

// Add registers a fill, a sell closes the round trip opened by the previous buys
func (s *Summary) Add(trade model.Trade) {
	value := trade.Price * trade.Quantity
	s.Volume += value

	switch trade.Side {
	case model.SideTypeBuy:
		s.openValue += value
		s.openFee += trade.Fee
		s.openQty += trade.Quantity
	case model.SideTypeSell:
		if s.openQty <= 0 {
			return
		}
		cost := s.openValue * math.Min(trade.Quantity/s.openQty, 1)
		fees := s.openFee*math.Min(trade.Quantity/s.openQty, 1) + trade.Fee
		profit := value - cost - fees

		pct := 0.0
		if cost > 0 {
			pct = profit / cost
		}
		if profit > 0 {
			s.Wins = append(s.Wins, profit)
			s.WinPct = append(s.WinPct, pct)
		} else {
			s.Losses = append(s.Losses, profit)
			s.LosePct = append(s.LosePct, pct)
		}

		s.openValue -= cost
		s.openFee -= fees - trade.Fee
		s.openQty = math.Max(s.openQty-trade.Quantity, 0)
		if s.openQty == 0 {
			s.openValue, s.openFee = 0, 0
		}
	}
}

func (s Summary) Win() []float64 { return s.Wins }

func (s Summary) Lose() []float64 { return s.Losses }

func (s Summary) Trades() int { return len(s.Wins) + len(s.Losses) }

func (s Summary) Profit() float64 {
	return lo.Sum(s.Wins) + lo.Sum(s.Losses)
}

// Payoff is the average win divided by the average loss
func (s Summary) Payoff() float64 {
	if len(s.Wins) == 0 || len(s.Losses) == 0 {
		return 0
	}
	avgWin := lo.Sum(s.Wins) / float64(len(s.Wins))
	avgLose := lo.Sum(s.Losses) / float64(len(s.Losses))
	if avgLose == 0 {
		return 0
	}
	return math.Abs(avgWin / avgLose)
}

// WinRate is the share of winning round trips
func (s Summary) WinRate() float64 {
	if s.Trades() == 0 {
		return 0
	}
	return float64(len(s.Wins)) / float64(s.Trades())
}

// SQN is the system quality number of the percentage returns
func (s Summary) SQN() float64 {
	returns := append(append([]float64{}, s.WinPct...), s.LosePct...)
	total := float64(len(returns))
	if total < 2 {
		return 0
	}

	avg := lo.Sum(returns) / total
	variance := lo.SumBy(returns, func(r float64) float64 {
		return (r - avg) * (r - avg)
	}) / (total - 1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(total) * avg / math.Sqrt(variance)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: trades=%d win=%.1f%% payoff=%.3f sqn=%.1f profit=%.2f",
		s.Pair, s.Trades(), s.WinRate()*100, s.Payoff(), s.SQN(), s.Profit())
}
