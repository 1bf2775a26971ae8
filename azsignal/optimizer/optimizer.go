// Package optimizer sweeps the parameter grid of a config and ranks every backtest by its
// Sharpe ratio. Each run owns its strategy contexts, wallet and storage, only the candles
// are shared.
package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/ezquant/azsignal/azsignal"
	"github.com/ezquant/azsignal/azsignal/model"
	"github.com/ezquant/azsignal/azsignal/plus/localkv"
	"github.com/ezquant/azsignal/azsignal/plus/models"
	"github.com/ezquant/azsignal/azsignal/service"
	"github.com/ezquant/azsignal/azsignal/storage"
	"github.com/ezquant/azsignal/azsignal/strategy"
	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const (
	resultPrefix = "result:"
	sharpeIndex  = "sharpe"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNoResults        = errors.New("no valid optimization result")
)

type Result struct {
	Parameters map[string]interface{} `json:"parameters"`
	Sharpe     float64                `json:"sharpe"`
	Returns    float64                `json:"returns"`
	Drawdown   float64                `json:"drawdown"`
	Profit     float64                `json:"profit"`
	Trades     int                    `json:"trades"`
}

type Optimizer struct {
	config      *models.Config
	feeder      service.Feeder
	kv          *localkv.LocalKV
	workerCount int

	// prefix and index scope the stored results to one configuration and dataset
	prefix string
	index  string

	mu      sync.Mutex
	results []Result
}

type Option func(*Optimizer)

// WithWorkers sets the number of concurrent backtests
func WithWorkers(n int) Option {
	return func(o *Optimizer) {
		o.workerCount = max(n, 1)
	}
}

// WithStore keeps every result in kv, runs already stored are not repeated
func WithStore(kv *localkv.LocalKV) Option {
	return func(o *Optimizer) {
		o.kv = kv
	}
}

func NewOptimizer(config *models.Config, feeder service.Feeder, options ...Option) *Optimizer {
	optimizer := &Optimizer{
		config:      config,
		feeder:      feeder,
		workerCount: 4,
	}
	for _, option := range options {
		option(optimizer)
	}
	return optimizer
}

// ParameterSets generates the cartesian product of every tunable parameter, parameters
// without a range keep their default value
func (o *Optimizer) ParameterSets() ([]map[string]interface{}, error) {
	tunable := lo.Filter(o.config.Parameters, func(p models.Parameter, _ int) bool {
		return p.Tunable()
	})

	values := make([][]interface{}, len(tunable))
	for i, param := range tunable {
		var err error
		values[i], err = gridValues(param)
		if err != nil {
			return nil, err
		}
		log.Infof("[OPTIMIZER] %s: %v", param.Name, values[i])
	}

	sets := make([]map[string]interface{}, 0)
	var product func(index int, current map[string]interface{})
	product = func(index int, current map[string]interface{}) {
		if index == len(tunable) {
			sets = append(sets, lo.Assign(current))
			return
		}
		for _, value := range values[index] {
			current[tunable[index].Name] = value
			product(index+1, current)
		}
		delete(current, tunable[index].Name)
	}
	product(0, make(map[string]interface{}))

	return sets, nil
}

func gridValues(param models.Parameter) ([]interface{}, error) {
	switch param.Type {
	case "bool":
		return []interface{}{false, true}, nil

	case "int":
		minimum, err1 := models.ToInt(param.Min)
		maximum, err2 := models.ToInt(param.Max)
		step, err3 := models.ToInt(param.Step)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalidParameter, param.Name, err)
		}
		if step <= 0 || minimum > maximum {
			return nil, fmt.Errorf("%w %s: empty range [%d, %d] step %d",
				ErrInvalidParameter, param.Name, minimum, maximum, step)
		}
		return lo.Map(lo.RangeWithSteps(minimum, maximum+1, step), func(v int, _ int) interface{} {
			return v
		}), nil

	case "float":
		minimum, err1 := models.ToFloat(param.Min)
		maximum, err2 := models.ToFloat(param.Max)
		step, err3 := models.ToFloat(param.Step)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalidParameter, param.Name, err)
		}
		if step <= 0 || minimum > maximum {
			return nil, fmt.Errorf("%w %s: empty range [%v, %v] step %v",
				ErrInvalidParameter, param.Name, minimum, maximum, step)
		}
		values := make([]interface{}, 0)
		// half a step of tolerance keeps the maximum despite rounding
		for i := 0; minimum+float64(i)*step <= maximum+step/2; i++ {
			values = append(values, math.Round((minimum+float64(i)*step)*1e6)/1e6)
		}
		return values, nil
	}
	return nil, fmt.Errorf("%w %s: unknown type %q", ErrInvalidParameter, param.Name, param.Type)
}

// key identifies a parameter set independently of map ordering
func key(parameters map[string]interface{}) string {
	names := lo.Keys(parameters)
	sort.Strings(names)
	return strings.Join(lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s=%v", name, parameters[name])
	}), ";")
}

// fingerprint hashes everything a backtest depends on besides the swept values: the
// strategy, the fixed parameters, the paper account and the candles of every pair
func (o *Optimizer) fingerprint(ctx context.Context) (string, error) {
	settings, err := strategy.FromConfig(o.config)
	if err != nil {
		return "", err
	}

	fixed := lo.Filter(o.config.Parameters, func(p models.Parameter, _ int) bool {
		return !p.Tunable()
	})
	sort.SliceStable(fixed, func(i, j int) bool {
		return fixed[i].Name < fixed[j].Name
	})

	data, err := json.Marshal(struct {
		Strategy  string
		Timeframe string
		Fixed     []models.Parameter
		Backtest  models.BacktestConfig
		Pairs     []string
	}{o.config.Strategy, settings.Timeframe, fixed, o.config.BacktestConfig, o.config.Pairs()})
	if err != nil {
		return "", err
	}

	hash := fnv.New64a()
	_, _ = hash.Write(data)
	for _, pair := range o.config.Pairs() {
		candles, err := o.feeder.CandlesByLimit(ctx, pair, settings.Timeframe, 0)
		if err != nil {
			return "", fmt.Errorf("load %s: %w", pair, err)
		}
		for _, c := range candles {
			fmt.Fprintf(hash, "%s;%d;%g;%g;%g;%g;%g\n", c.Pair, c.Time.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
	}
	return strconv.FormatUint(hash.Sum64(), 16), nil
}

// prepare scopes the store to the current configuration and dataset
func (o *Optimizer) prepare(ctx context.Context) error {
	fingerprint, err := o.fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	o.prefix = resultPrefix + fingerprint + ":"
	o.index = sharpeIndex + ":" + fingerprint
	log.Infof("[OPTIMIZER] storing results under %s", o.prefix)
	return o.kv.CreateJSONIndex(o.index, o.prefix+"*", "sharpe")
}

func (o *Optimizer) stored(parameters map[string]interface{}) (Result, bool) {
	if o.kv == nil {
		return Result{}, false
	}
	value, err := o.kv.Get(o.prefix + key(parameters))
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		log.Warnf("[OPTIMIZER] discarding stored result %s: %v", key(parameters), err)
		return Result{}, false
	}
	// numbers come back as float64, keep the generated values
	result.Parameters = parameters
	return result, true
}

func (o *Optimizer) store(result Result) {
	if o.kv == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Warnf("[OPTIMIZER] encode result: %v", err)
		return
	}
	if err := o.kv.Set(o.prefix+key(result.Parameters), string(data)); err != nil {
		log.Warnf("[OPTIMIZER] store result: %v", err)
	}
}

// Optimize runs a backtest for every parameter set and returns the best one
func (o *Optimizer) Optimize(ctx context.Context) (Result, error) {
	sets, err := o.ParameterSets()
	if err != nil {
		return Result{}, err
	}
	total := len(sets)
	log.Infof("[OPTIMIZER] %d parameter sets, %d workers", total, o.workerCount)

	if o.kv != nil {
		if err := o.prepare(ctx); err != nil {
			return Result{}, err
		}
	}

	var (
		wg         sync.WaitGroup
		progress   int
		progressMu sync.Mutex
	)
	semaphore := make(chan struct{}, o.workerCount)

	for _, parameters := range sets {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(parameters map[string]interface{}) {
			defer wg.Done()
			defer func() {
				<-semaphore
				progressMu.Lock()
				progress++
				if progress%max(1, total/20) == 0 {
					log.Infof("[OPTIMIZER] %.1f%% (%d/%d)", float64(progress)/float64(total)*100, progress, total)
				}
				progressMu.Unlock()
			}()

			result, ok := o.stored(parameters)
			if !ok {
				var err error
				result, err = o.backtest(ctx, parameters)
				if err != nil {
					log.Errorf("[OPTIMIZER] backtest %v: %v", parameters, err)
					return
				}
				o.store(result)
			}

			log.Debugf("[OPTIMIZER] sharpe=%.2f returns=%.2f drawdown=%.2f %v",
				result.Sharpe, result.Returns, result.Drawdown, parameters)

			o.mu.Lock()
			o.results = append(o.results, result)
			o.mu.Unlock()
		}(parameters)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	sort.SliceStable(o.results, func(i, j int) bool {
		if o.results[i].Sharpe != o.results[j].Sharpe {
			return o.results[i].Sharpe > o.results[j].Sharpe
		}
		return o.results[i].Returns > o.results[j].Returns
	})

	if len(o.results) == 0 {
		return Result{}, ErrNoResults
	}
	return o.results[0], nil
}

// Results returns every result of the last Optimize call, best first
func (o *Optimizer) Results() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Result(nil), o.results...)
}

// Stored returns up to n results kept in the store for the configuration and dataset of
// the last Optimize call, best Sharpe first
func (o *Optimizer) Stored(n int) ([]Result, error) {
	if o.kv == nil || o.index == "" {
		return nil, nil
	}

	var (
		results []Result
		decode  error
	)
	err := o.kv.Descend(o.index, func(_, value string) bool {
		var result Result
		if decode = json.Unmarshal([]byte(value), &result); decode != nil {
			return false
		}
		results = append(results, result)
		return len(results) < n
	})
	return results, errors.Join(err, decode)
}

func (o *Optimizer) backtest(ctx context.Context, parameters map[string]interface{}) (Result, error) {
	config := o.config.WithDefaults(parameters)
	settings, err := strategy.FromConfig(config)
	if err != nil {
		return Result{}, err
	}

	store, err := storage.FromMemory()
	if err != nil {
		return Result{}, err
	}

	pairs := config.Pairs()
	wallet, err := azsignal.NewPaperWallet(config.BacktestConfig, settings.Timeframe, pairs...)
	if err != nil {
		return Result{}, err
	}

	bot, err := azsignal.NewBot(
		ctx,
		model.Settings{Pairs: pairs},
		o.feeder,
		settings,
		azsignal.WithStorage(store),
		azsignal.WithPaperWallet(wallet),
		azsignal.WithProgress(false),
	)
	if err != nil {
		return Result{}, err
	}
	if err := bot.Run(ctx); err != nil {
		return Result{}, err
	}

	metrics := wallet.Metrics()
	return Result{
		Parameters: parameters,
		Sharpe:     metrics.Sharpe,
		Returns:    metrics.Returns,
		Drawdown:   metrics.MaxDrawdown,
		Profit:     metrics.Final - metrics.Start,
		Trades:     metrics.Trades,
	}, nil
}

// PrintTopResults logs the n best results
func (o *Optimizer) PrintTopResults(n int) {
	results := o.Results()
	log.Warnf("Best parameter sets (top %d of %d):", min(n, len(results)), len(results))
	log.Warnf("----------------------------------------")
	log.Warnf("Rank | Sharpe | Returns | Max Drawdown | Trades | Parameters")
	for i, result := range results[:min(n, len(results))] {
		log.Warnf("#%d | %.2f | %.2f%% | %.2f%% | %d | %v",
			i+1, result.Sharpe, result.Returns*100, result.Drawdown*100, result.Trades, result.Parameters)
	}
	log.Warnf("----------------------------------------")
}

// SaveOptimizedConfig writes a copy of config with the given parameters as defaults
func SaveOptimizedConfig(config *models.Config, parameters map[string]interface{}, path string) error {
	if path == "" {
		path = fmt.Sprintf("user_data/config_%s_optimized.yml", config.Strategy)
	}
	if err := config.WithDefaults(parameters).Save(path); err != nil {
		return fmt.Errorf("save optimized config: %w", err)
	}
	log.Infof("[OPTIMIZER] optimized config saved to %s", path)
	return nil
}
