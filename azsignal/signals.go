package azsignal

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal/signal"
	"github.com/ezquant/azsignal/azsignal/strategy"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

// SignalWriter records every strategy result as a CSV row, one column per evaluator
type SignalWriter struct {
	mu      sync.Mutex
	writer  *csv.Writer
	columns []signal.ID
	header  bool
	err     error
}

func NewSignalWriter(w io.Writer) *SignalWriter {
	return &SignalWriter{writer: csv.NewWriter(w), columns: signal.IDs}
}

func (s *SignalWriter) OnResult(pair string, result strategy.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}

	if !s.header {
		header := []string{"time", "pair", "close", "buy_score", "sell_score", "action", "stop_price", "state"}
		header = append(header, lo.Map(s.columns, func(id signal.ID, _ int) string {
			return string(id)
		})...)
		s.write(header)
		s.header = true
	}

	values := lo.Associate(result.Signals, func(r signal.Reading) (signal.ID, signal.Value) {
		return r.ID, r.Value
	})
	row := []string{
		strconv.FormatInt(result.Time.Unix(), 10),
		pair,
		strconv.FormatFloat(result.Close, 'f', -1, 64),
		strconv.FormatFloat(result.BuyScore, 'f', -1, 64),
		strconv.FormatFloat(result.SellScore, 'f', -1, 64),
		string(result.Action),
		strconv.FormatFloat(result.StopPrice, 'f', -1, 64),
		string(result.State),
	}
	for _, id := range s.columns {
		// disabled evaluators stay empty
		if v, ok := values[id]; ok {
			row = append(row, strconv.Itoa(int(v)))
		} else {
			row = append(row, "")
		}
	}
	s.write(row)
}

func (s *SignalWriter) write(record []string) {
	if err := s.writer.Write(record); err != nil {
		s.err = err
		log.Errorf("[SIGNALS] write fail: %v", err)
	}
}

// Flush writes buffered rows and returns the first write error
func (s *SignalWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if s.err != nil {
		return s.err
	}
	return s.writer.Error()
}
