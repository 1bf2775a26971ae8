package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

var (
	ErrMissingColumn     = errors.New("missing column")
	ErrInvalidRow        = errors.New("invalid row")
	ErrUnknownPair       = errors.New("unknown pair")
	ErrTimeframeMismatch = errors.New("timeframe mismatch")
)

var timeColumns = []string{"time", "date", "datetime", "timestamp"}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// PairFeed points a pair to a CSV file recorded with the given timeframe
type PairFeed struct {
	Pair      string
	File      string
	Timeframe string
}

// CSVFeed keeps the validated candles of every pair in memory
type CSVFeed struct {
	Feeds   map[string]PairFeed
	candles map[string][]model.Candle
}

// NewCSVFeed loads every file. Files must hold a header row with a time column and
// open, high, low, close and volume columns in any order.
func NewCSVFeed(timeframe string, feeds ...PairFeed) (*CSVFeed, error) {
	csvFeed := &CSVFeed{
		Feeds:   make(map[string]PairFeed),
		candles: make(map[string][]model.Candle),
	}

	for _, feed := range feeds {
		if feed.Timeframe != "" && timeframe != "" {
			same, err := SameTimeframe(feed.Timeframe, timeframe)
			if err != nil {
				return nil, err
			}
			if !same {
				return nil, fmt.Errorf("%w: %s is recorded in %s, strategy uses %s",
					ErrTimeframeMismatch, feed.Pair, feed.Timeframe, timeframe)
			}
		}

		file, err := os.Open(feed.File)
		if err != nil {
			return nil, err
		}

		candles, err := ReadCSV(file, feed.Pair)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", feed.File, err)
		}

		log.Infof("[SETUP] %s: %d candles loaded from %s", feed.Pair, len(candles), feed.File)
		csvFeed.Feeds[feed.Pair] = feed
		csvFeed.candles[feed.Pair] = candles
	}

	return csvFeed, nil
}

// SameTimeframe compares two timeframe strings such as "1d" and "24h"
func SameTimeframe(a, b string) (bool, error) {
	da, err := str2duration.ParseDuration(a)
	if err != nil {
		return false, fmt.Errorf("invalid timeframe %q: %w", a, err)
	}
	db, err := str2duration.ParseDuration(b)
	if err != nil {
		return false, fmt.Errorf("invalid timeframe %q: %w", b, err)
	}
	return da == db, nil
}

// ReadCSV parses candles, dropping rows with missing values. Timestamps must be strictly
// increasing, otherwise the error wraps model.ErrCandleOrder.
func ReadCSV(r io.Reader, pair string) ([]model.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	timeColumn, ok := lo.Find(timeColumns, func(name string) bool {
		_, ok := columns[name]
		return ok
	})
	if !ok {
		return nil, fmt.Errorf("%w: one of %s", ErrMissingColumn, strings.Join(timeColumns, ", "))
	}
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var (
		candles []model.Candle
		dropped int
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w at line %d: %w", ErrInvalidRow, line, err)
		}

		candle := model.Candle{Pair: pair, Complete: true}
		candle.Time, err = ParseTime(record[columns[timeColumn]])
		if err != nil {
			return nil, fmt.Errorf("%w at line %d: %w", ErrInvalidRow, line, err)
		}

		fields := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		missing := false
		for i, name := range []string{"open", "high", "low", "close", "volume"} {
			value, err := parseValue(record[columns[name]])
			if err != nil {
				return nil, fmt.Errorf("%w at line %d, column %s: %w", ErrInvalidRow, line, name, err)
			}
			missing = missing || math.IsNaN(value)
			*fields[i] = value
		}
		if missing || !candle.Valid() {
			dropped++
			continue
		}

		candles = append(candles, candle)
	}

	if dropped > 0 {
		log.Warnf("[SETUP] %s: %d rows with missing values dropped", pair, dropped)
	}

	if err := model.CheckOrder(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func parseValue(value string) (float64, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "nan", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(value, 64)
}

// ParseTime accepts unix seconds or milliseconds, dates and RFC3339 timestamps
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		if unix > 1e12 {
			return time.UnixMilli(unix).UTC(), nil
		}
		return time.Unix(unix, 0).UTC(), nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", value)
}

// WriteCSV writes candles with a unix seconds time column
func WriteCSV(w io.Writer, candles []model.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, candle := range candles {
		err := writer.Write([]string{
			strconv.FormatInt(candle.Time.Unix(), 10),
			strconv.FormatFloat(candle.Open, 'f', -1, 64),
			strconv.FormatFloat(candle.High, 'f', -1, 64),
			strconv.FormatFloat(candle.Low, 'f', -1, 64),
			strconv.FormatFloat(candle.Close, 'f', -1, 64),
			strconv.FormatFloat(candle.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (c *CSVFeed) Pairs() []string {
	pairs := lo.Keys(c.candles)
	sort.Strings(pairs)
	return pairs
}

// Candles returns every candle of the pair in time order
func (c *CSVFeed) Candles(pair string) []model.Candle {
	return c.candles[pair]
}

func (c *CSVFeed) CandlesByPeriod(_ context.Context, pair, _ string, start, end time.Time) ([]model.Candle, error) {
	candles, ok := c.candles[pair]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	return lo.Filter(candles, func(candle model.Candle, _ int) bool {
		return !candle.Time.Before(start) && !candle.Time.After(end)
	}), nil
}

func (c *CSVFeed) CandlesByLimit(_ context.Context, pair, _ string, limit int) ([]model.Candle, error) {
	candles, ok := c.candles[pair]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	if limit <= 0 || limit >= len(candles) {
		return append([]model.Candle(nil), candles...), nil
	}
	return append([]model.Candle(nil), candles[len(candles)-limit:]...), nil
}
