package download

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/ezquant/azsignal/azsignal/exchange"
	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/service"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const batchSize = 500

type Downloader struct {
	exchange service.Feeder
	now      func() time.Time
}

func NewDownloader(exchange service.Feeder) Downloader {
	return Downloader{exchange: exchange, now: time.Now}
}

type Parameters struct {
	Start time.Time
	End   time.Time
}

type Option func(*Parameters)

// WithInterval downloads candles between start and end
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays downloads the last n days
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = parameters.End.AddDate(0, 0, -days)
	}
}

// candlesCount returns the number of candles of the timeframe in the interval
func candlesCount(start, end time.Time, timeframe string) (int, time.Duration, error) {
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}
	if interval <= 0 {
		return 0, 0, fmt.Errorf("invalid timeframe %s", timeframe)
	}
	return int(end.Sub(start) / interval), interval, nil
}

// Download fetches candles in batches and writes them as CSV to output
func (d Downloader) Download(ctx context.Context, pair, timeframe string, output string, options ...Option) error {
	now := d.now()
	parameters := &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}

	for _, option := range options {
		option(parameters)
	}

	parameters.Start = time.Date(parameters.Start.Year(), parameters.Start.Month(), parameters.Start.Day(),
		0, 0, 0, 0, time.UTC)

	if now.Sub(parameters.End) > 0 {
		parameters.End = time.Date(parameters.End.Year(), parameters.End.Month(), parameters.End.Day(),
			0, 0, 0, 0, time.UTC)
	} else {
		parameters.End = now
	}
	if !parameters.Start.Before(parameters.End) {
		return fmt.Errorf("start %s must be before end %s", parameters.Start, parameters.End)
	}

	candlesCount, interval, err := candlesCount(parameters.Start, parameters.End, timeframe)
	if err != nil {
		return err
	}
	candlesCount++

	log.Infof("Downloading %d candles of %s for %s", candlesCount, timeframe, pair)

	candles := make([]model.Candle, 0, candlesCount)
	bar := progressbar.Default(int64(candlesCount))
	for begin := parameters.Start; begin.Before(parameters.End); begin = begin.Add(interval * batchSize) {
		end := begin.Add(interval * batchSize)
		if end.After(parameters.End) {
			end = parameters.End
		}

		batch, err := d.exchange.CandlesByPeriod(ctx, pair, timeframe, begin, end)
		if err != nil {
			return err
		}
		added := 0
		for _, candle := range batch {
			// batches share their boundary candle
			if n := len(candles); n > 0 && !candle.Time.After(candles[n-1].Time) {
				continue
			}
			candles = append(candles, candle)
			added++
		}

		if err := bar.Add(added); err != nil {
			log.Warnf("update progressbar fail: %v", err)
		}
	}
	if err := bar.Finish(); err != nil {
		log.Warnf("finish progressbar fail: %v", err)
	}

	if err := model.CheckOrder(candles); err != nil {
		return err
	}

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := exchange.WriteCSV(file, candles); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	log.Infof("Done! %d candles written to %s", len(candles), output)
	return nil
}
