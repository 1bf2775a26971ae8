package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ezquant/azsignal/azsignal"
	"github.com/ezquant/azsignal/azsignal/download"
	"github.com/ezquant/azsignal/azsignal/exchange"
	"github.com/ezquant/azsignal/azsignal/optimizer"
	"github.com/ezquant/azsignal/azsignal/plus/localkv"
	"github.com/ezquant/azsignal/azsignal/plus/models"
	"github.com/ezquant/azsignal/azsignal/service"
	"github.com/ezquant/azsignal/azsignal/strategy"
	"github.com/ezquant/azsignal/azsignal/tools/log"
	"github.com/ezquant/azsignal/examples/backtesting"
)

func main() {
	app := &cli.App{
		Name:     "azsignal",
		HelpName: "azsignal",
		Usage:    "Weighted indicator signals, backtests and parameter sweeps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "eg. debug, info, warn",
				Value: "info",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:     "download",
				HelpName: "download",
				Usage:    "Download historical data",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pair",
						Aliases:  []string{"p"},
						Usage:    "eg. BTCUSDT or AAPL",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "days",
						Aliases:  []string{"d"},
						Usage:    "eg. 100 (default 30 days)",
						Required: false,
					},
					&cli.TimestampFlag{
						Name:     "start",
						Aliases:  []string{"s"},
						Usage:    "eg. 2021-12-01",
						Layout:   "2006-01-02",
						Required: false,
					},
					&cli.TimestampFlag{
						Name:     "end",
						Aliases:  []string{"e"},
						Usage:    "eg. 2020-12-31",
						Layout:   "2006-01-02",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "timeframe",
						Aliases:  []string{"t"},
						Usage:    "eg. 1d",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "eg. ./btc.csv",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "binance or alphavantage",
						Value: "binance",
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "alphavantage API key",
						EnvVars: []string{"ALPHAVANTAGE_API_KEY"},
					},
					&cli.StringFlag{
						Name:    "binance-key",
						Usage:   "binance API key, optional for klines",
						EnvVars: []string{"BINANCE_API_KEY"},
					},
					&cli.StringFlag{
						Name:    "binance-secret",
						Usage:   "binance API secret, optional for klines",
						EnvVars: []string{"BINANCE_API_SECRET"},
					},
					&cli.BoolFlag{
						Name:  "testnet",
						Usage: "download from the binance spot testnet",
					},
				},
				Action: func(c *cli.Context) error {
					var (
						exc service.Feeder
						err error
					)

					switch c.String("source") {
					case "binance":
						options := []exchange.BinanceOption{
							exchange.WithBinanceCredentials(c.String("binance-key"), c.String("binance-secret")),
						}
						if c.Bool("testnet") {
							options = append(options, exchange.WithBinanceTestnet())
						}
						exc, err = exchange.NewBinance(c.Context, options...)
						if err != nil {
							return err
						}
					case "alphavantage":
						if c.String("api-key") == "" {
							return fmt.Errorf("alphavantage requires --api-key")
						}
						exc = exchange.NewAlphaVantage(c.String("api-key"), "")
					default:
						return fmt.Errorf("unknown source %q", c.String("source"))
					}

					var options []download.Option
					if days := c.Int("days"); days > 0 {
						options = append(options, download.WithDays(days))
					}

					start := c.Timestamp("start")
					end := c.Timestamp("end")
					if start != nil && end != nil && !start.IsZero() && !end.IsZero() {
						options = append(options, download.WithInterval(*start, *end))
					} else if start != nil || end != nil {
						return fmt.Errorf("START and END must be informed together")
					}

					return download.NewDownloader(exc).Download(c.Context, c.String("pair"),
						c.String("timeframe"), c.String("output"), options...)
				},
			},
			{
				Name:     "backtest",
				HelpName: "backtest",
				Usage:    "Run a backtest of the configured strategy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "eg. ./user_data/config_weighted.yml",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "database",
						Usage: "sqlite file storing the trades, empty keeps them in memory",
						Value: "./user_data/db/azsignal.db",
					},
					&cli.StringFlag{
						Name:  "signals",
						Usage: "eg. ./signals.csv",
					},
					&cli.BoolFlag{
						Name:  "indicators",
						Usage: "print the last value of every indicator",
					},
				},
				Action: func(c *cli.Context) error {
					config, err := models.Load(c.String("config"))
					if err != nil {
						return err
					}

					metrics, err := backtesting.Run(c.Context, config, backtesting.Options{
						Database:   c.String("database"),
						Signals:    c.String("signals"),
						Indicators: c.Bool("indicators"),
						LogLevel:   log.GetLevel(),
					})
					if err != nil {
						return err
					}

					fmt.Printf("\nSharpe ratio: %.2f\n", metrics.Sharpe)
					fmt.Println("- below 0: worse than holding cash")
					fmt.Println("- 0 to 1: modest risk adjusted returns")
					fmt.Println("- 1 to 2: good risk adjusted returns")
					fmt.Println("- above 2: excellent risk adjusted returns")
					return nil
				},
			},
			{
				Name:     "optimize",
				HelpName: "optimize",
				Usage:    "Sweep the parameter ranges of a config and keep the best Sharpe ratio",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "eg. ./user_data/config_weighted.yml",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "concurrent backtests",
						Value: 4,
					},
					&cli.StringFlag{
						Name:  "kv",
						Usage: "directory keeping finished runs so an interrupted sweep resumes, empty keeps them in memory",
						Value: "./user_data/kv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "optimized config path (default ./user_data/config_<strategy>_optimized.yml)",
					},
				},
				Action: func(c *cli.Context) error {
					config, err := models.Load(c.String("config"))
					if err != nil {
						return err
					}

					settings, err := strategy.FromConfig(config)
					if err != nil {
						return err
					}
					csvFeed, err := azsignal.NewCSVFeed(config, settings.Timeframe)
					if err != nil {
						return err
					}

					kv, err := localkv.NewLocalKV(c.String("kv"))
					if err != nil {
						return err
					}
					defer kv.Close()

					log.Infof("Optimizing the parameters of strategy [%s]...", config.Strategy)
					opt := optimizer.NewOptimizer(config, csvFeed,
						optimizer.WithWorkers(c.Int("workers")),
						optimizer.WithStore(kv),
					)
					best, err := opt.Optimize(c.Context)
					if err != nil {
						return err
					}
					opt.PrintTopResults(5)

					log.Info("----------------------------------------")
					for name, value := range best.Parameters {
						log.Infof("%s: %v", name, value)
					}
					log.Infof("Sharpe: %.2f", best.Sharpe)
					log.Infof("Returns: %.2f%%", best.Returns*100)
					log.Infof("Max drawdown: %.2f%%", best.Drawdown*100)
					log.Info("----------------------------------------")

					output := c.String("output")
					if output == "" {
						output = fmt.Sprintf("./user_data/config_%s_optimized.yml", config.Strategy)
					}
					return optimizer.SaveOptimizedConfig(config, best.Parameters, output)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
