package exchange

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/position"
)

func TestReadCSV(t *testing.T) {
	t.Run("columns in any order", func(t *testing.T) {
		data := "Date,Close,Open,High,Low,Adj Close,Volume\n" +
			"2024-01-02,10.5,10,11,9.5,10.4,1000\n" +
			"2024-01-03,11,10.5,11.5,10,10.9,1200\n"

		candles, err := ReadCSV(strings.NewReader(data), "SPY")
		require.NoError(t, err)
		require.Len(t, candles, 2)
		assert.Equal(t, model.Candle{
			Pair: "SPY", Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000, Complete: true,
		}, candles[0])
	})

	t.Run("rows with missing values are dropped", func(t *testing.T) {
		data := "time,open,high,low,close,volume\n" +
			"1704153600,10,11,9,10.5,100\n" +
			"1704240000,,11,9,10.5,100\n" +
			"1704326400,10,11,9,NaN,100\n" +
			"1704412800,10,11,9,10.5,100\n"

		candles, err := ReadCSV(strings.NewReader(data), "BTCUSDT")
		require.NoError(t, err)
		require.Len(t, candles, 2)
		assert.Equal(t, time.Unix(1704412800, 0).UTC(), candles[1].Time)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,open,high,low,close\n1,1,1,1,1\n"), "X")
		assert.ErrorIs(t, err, ErrMissingColumn)

		_, err = ReadCSV(strings.NewReader("open,high,low,close,volume\n1,1,1,1,1\n"), "X")
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("malformed number", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,open,high,low,close,volume\n1,abc,1,1,1,1\n"), "X")
		assert.ErrorIs(t, err, ErrInvalidRow)
	})

	t.Run("timestamps out of order", func(t *testing.T) {
		data := "date,open,high,low,close,volume\n" +
			"2024-01-03,1,1,1,1,1\n" +
			"2024-01-02,1,1,1,1,1\n"
		_, err := ReadCSV(strings.NewReader(data), "X")
		assert.ErrorIs(t, err, model.ErrCandleOrder)
	})

	t.Run("duplicated timestamp", func(t *testing.T) {
		data := "date,open,high,low,close,volume\n" +
			"2024-01-02,1,1,1,1,1\n" +
			"2024-01-02,1,1,1,1,1\n"
		_, err := ReadCSV(strings.NewReader(data), "X")
		assert.ErrorIs(t, err, model.ErrCandleOrder)
	})
}

func TestParseTime(t *testing.T) {
	tt := []struct {
		value    string
		expected time.Time
	}{
		{"1704153600", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"1704153600000", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02 15:30:00", time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)},
		{"2024-01-02T15:30:00Z", time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)},
	}
	for _, tc := range tt {
		parsed, err := ParseTime(tc.value)
		require.NoError(t, err, tc.value)
		assert.True(t, tc.expected.Equal(parsed), tc.value)
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestCSVFeed(t *testing.T) {
	candles := []model.Candle{
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 12},
		{Time: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), Open: 1.8, High: 2.2, Low: 1.7, Close: 2, Volume: 9},
	}

	var buffer bytes.Buffer
	require.NoError(t, WriteCSV(&buffer, candles))
	file := filepath.Join(t.TempDir(), "spy-1d.csv")
	require.NoError(t, os.WriteFile(file, buffer.Bytes(), 0o600))

	feed, err := NewCSVFeed("24h", PairFeed{Pair: "SPY", File: file, Timeframe: "1d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, feed.Pairs())
	require.Len(t, feed.Candles("SPY"), 3)
	assert.Equal(t, 1.8, feed.Candles("SPY")[1].Close)

	last, err := feed.CandlesByLimit(context.Background(), "SPY", "1d", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 2.0, last[1].Close)

	period, err := feed.CandlesByPeriod(context.Background(), "SPY", "1d", candles[1].Time, candles[2].Time)
	require.NoError(t, err)
	assert.Len(t, period, 2)

	_, err = feed.CandlesByLimit(context.Background(), "QQQ", "1d", 2)
	assert.ErrorIs(t, err, ErrUnknownPair)

	_, err = NewCSVFeed("1h", PairFeed{Pair: "SPY", File: file, Timeframe: "1d"})
	assert.ErrorIs(t, err, ErrTimeframeMismatch)
}

func candleAt(day int, open, high, low, close float64) model.Candle {
	return model.Candle{
		Pair:     "SPY",
		Time:     time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   1000,
		Complete: true,
	}
}

func TestPaperWallet_FillsAtNextOpen(t *testing.T) {
	wallet := NewPaperWallet(WithPaperAsset("USD", 10000), WithPaperFee(0.002))

	assert.Empty(t, wallet.OnCandle(candleAt(0, 100, 101, 99, 100)))
	require.NoError(t, wallet.Submit("SPY", position.Enter, 0))
	assert.False(t, wallet.InPosition("SPY"))

	fills := wallet.OnCandle(candleAt(1, 102, 105, 101, 104))
	require.Len(t, fills, 1)
	assert.Equal(t, model.SideTypeBuy, fills[0].Side)
	assert.Equal(t, 102.0, fills[0].Price)
	assert.InDelta(t, 10000/(102*1.002), fills[0].Quantity, 1e-6)
	assert.InDelta(t, 10000-10000/1.002, fills[0].Fee, 1e-6)

	asset, quote, err := wallet.Position("SPY")
	require.NoError(t, err)
	assert.InDelta(t, fills[0].Quantity, asset, 1e-9)
	assert.InDelta(t, 0, quote, 1e-6)

	require.NoError(t, wallet.Submit("SPY", position.Exit, 0))
	fills = wallet.OnCandle(candleAt(2, 110, 111, 108, 109))
	require.Len(t, fills, 1)
	assert.Equal(t, model.SideTypeSell, fills[0].Side)
	assert.Equal(t, ReasonSignal, fills[0].Reason)

	quantity := 10000 / (102 * 1.002)
	_, quote, err = wallet.Position("SPY")
	require.NoError(t, err)
	assert.InDelta(t, quantity*110*(1-0.002), quote, 1e-6)

	metrics := wallet.Metrics()
	assert.Equal(t, 2, metrics.Trades)
	assert.InDelta(t, quote/10000-1, metrics.Returns, 1e-9)
	assert.Len(t, wallet.Trades(), 2)
}

func TestPaperWallet_ProtectiveStop(t *testing.T) {
	t.Run("filled at the stop price", func(t *testing.T) {
		wallet := NewPaperWallet(WithPaperAsset("USD", 1000), WithPaperFee(0))
		wallet.OnCandle(candleAt(0, 100, 100, 100, 100))
		require.NoError(t, wallet.Submit("SPY", position.Enter, 95))

		wallet.OnCandle(candleAt(1, 100, 101, 99, 100))
		fills := wallet.OnCandle(candleAt(2, 98, 99, 90, 92))
		require.Len(t, fills, 1)
		assert.Equal(t, ReasonStop, fills[0].Reason)
		assert.Equal(t, 95.0, fills[0].Price)
		assert.False(t, wallet.InPosition("SPY"))

		metrics := wallet.Metrics()
		assert.InDelta(t, 950, metrics.Final, 1e-6)
		assert.InDelta(t, -0.05, metrics.MaxDrawdown, 1e-9)
	})

	t.Run("gap through the stop", func(t *testing.T) {
		wallet := NewPaperWallet(WithPaperAsset("USD", 1000), WithPaperFee(0))
		require.NoError(t, wallet.Submit("SPY", position.Enter, 95))
		wallet.OnCandle(candleAt(1, 100, 101, 99, 100))

		fills := wallet.OnCandle(candleAt(2, 90, 91, 85, 88))
		require.Len(t, fills, 1)
		assert.Equal(t, 90.0, fills[0].Price)
	})

	t.Run("exit after a stop is ignored", func(t *testing.T) {
		wallet := NewPaperWallet(WithPaperAsset("USD", 1000), WithPaperFee(0))
		require.NoError(t, wallet.Submit("SPY", position.Enter, 95))
		wallet.OnCandle(candleAt(1, 100, 101, 90, 100))
		require.False(t, wallet.InPosition("SPY"))

		require.NoError(t, wallet.Submit("SPY", position.Exit, 0))
		assert.Empty(t, wallet.OnCandle(candleAt(2, 100, 101, 99, 100)))
	})
}

func TestPaperWallet_SplitsCashBetweenPairs(t *testing.T) {
	wallet := NewPaperWallet(WithPaperAsset("USD", 1000), WithPaperFee(0), WithPairs("SPY", "QQQ"))
	require.NoError(t, wallet.Submit("SPY", position.Enter, 0))

	fills := wallet.OnCandle(candleAt(1, 100, 100, 100, 100))
	require.Len(t, fills, 1)
	assert.InDelta(t, 5, fills[0].Quantity, 1e-9)

	_, quote, err := wallet.Position("QQQ")
	require.NoError(t, err)
	assert.InDelta(t, 500, quote, 1e-9)
}

func TestPaperWallet_UnknownAction(t *testing.T) {
	wallet := NewPaperWallet()
	assert.ErrorIs(t, wallet.Submit("SPY", position.Action("SHORT"), 0), ErrUnknownAction)
	assert.NoError(t, wallet.Submit("SPY", position.Hold, 0))
}

func TestSharpe(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	flat := []EquityPoint{{start, 100}, {start.AddDate(0, 0, 1), 100}, {start.AddDate(0, 0, 2), 100}}
	assert.Zero(t, sharpe(flat, 252))

	rising := []EquityPoint{
		{start, 100},
		{start.AddDate(0, 0, 1), 101},
		{start.AddDate(0, 0, 2), 103},
		{start.AddDate(0, 0, 3), 104},
	}
	assert.Positive(t, sharpe(rising, 252))
}

func TestAlphaVantage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage!"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"Meta Data": {"2. Symbol": "IBM"},
			"Time Series (Daily)": {
				"2024-01-03": {"1. open": "161", "2. high": "162", "3. low": "160", "4. close": "160.5", "5. volume": "4000"},
				"2024-01-02": {"1. open": "162", "2. high": "163", "3. low": "161", "4. close": "161.5", "5. volume": "5000"}
			}
		}`))
	}))
	defer server.Close()

	client := NewAlphaVantage("demo", server.URL)
	client.backoff = &backoff.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond}

	candles, err := client.CandlesByLimit(context.Background(), "IBM", "1d", 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 160.5, candles[1].Close)
	assert.NoError(t, model.CheckOrder(candles))
}

func TestAlphaVantage_UnsupportedTimeframe(t *testing.T) {
	client := NewAlphaVantage("demo", "http://localhost:0")
	_, err := client.CandlesByLimit(context.Background(), "IBM", "4h", 0)
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestNewBinance(t *testing.T) {
	b, err := NewBinance(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, binanceTestnetURL, b.client.BaseURL)
	assert.Empty(t, b.client.APIKey)

	testnet, err := NewBinance(context.Background(), WithBinanceTestnet(), WithBinanceCredentials("key", "secret"))
	require.NoError(t, err)
	assert.Equal(t, binanceTestnetURL, testnet.client.BaseURL)
	assert.Equal(t, "key", testnet.client.APIKey)
	assert.Equal(t, "secret", testnet.client.SecretKey)

	// other clients keep their endpoint
	b, err = NewBinance(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, binanceTestnetURL, b.client.BaseURL)
}

func TestBinance_CandlesByLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1704067200000,"100","110","90","105","12",1704153599999,"0",1,"0","0","0"],
			[1704153600000,"105","112","101","111","8",1704239999999,"0",1,"0","0","0"],
			[1704240000000,"111","111","111","111","1",1704326399999,"0",1,"0","0","0"]
		]`))
	}))
	defer server.Close()

	b, err := NewBinance(context.Background())
	require.NoError(t, err)
	b.client.SetApiEndpoint(server.URL)

	candles, err := b.CandlesByLimit(context.Background(), "BTCUSDT", "1d", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 12.0, candles[0].Volume)
	assert.Equal(t, "BTCUSDT", candles[1].Pair)
	assert.Equal(t, 111.0, candles[1].Close)
}
