package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt(t *testing.T) {
	for _, value := range []interface{}{7, int64(7), 7.0} {
		v, err := ToInt(value)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}

	_, err := ToInt(7.5)
	assert.ErrorContains(t, err, "expected an integer")
	_, err = ToInt("7")
	assert.ErrorContains(t, err, "expected an integer")
}

func TestToFloat(t *testing.T) {
	for _, value := range []interface{}{2, int64(2), 2.0} {
		v, err := ToFloat(value)
		require.NoError(t, err)
		assert.Equal(t, 2.0, v)
	}

	_, err := ToFloat(true)
	assert.ErrorContains(t, err, "expected a number")
}

func TestConfig_LoadSave(t *testing.T) {
	config := &Config{
		Strategy: "rsi",
		Parameters: []Parameter{
			{Name: "rsi_period", Type: "int", Default: 12, Min: 7, Max: 14, Step: 1},
			{Name: "rsi_confirm", Type: "bool", Default: false},
			{Name: "stop_fraction", Type: "float", Default: 0.05},
		},
		BacktestConfig: BacktestConfig{Timeframe: "1d", InitialBalance: 10000},
		Data:           []DataFeed{{Pair: "SPY", File: "SPY-1d.csv"}},
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	require.NoError(t, config.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rsi", loaded.Strategy)
	assert.Equal(t, []string{"SPY"}, loaded.Pairs())
	assert.Equal(t, map[string]interface{}{"rsi_period": 12, "rsi_confirm": false, "stop_fraction": 0.05},
		loaded.Defaults())
	assert.True(t, loaded.Parameters[0].Tunable())
	assert.True(t, loaded.Parameters[1].Tunable())
	assert.False(t, loaded.Parameters[2].Tunable())

	updated := loaded.WithDefaults(map[string]interface{}{"rsi_period": 9})
	assert.Equal(t, 9, updated.Parameters[0].Default)
	assert.Equal(t, 12, loaded.Parameters[0].Default)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
