package broker

import (
	"testing"

	"spread_mirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSpreadBullPut(t *testing.T) {
	combo, err := BuildSpread(models.Signal{
		Ticker:      "SPY",
		Strategy:    models.StrategyBullPut,
		Qty:         2,
		LongStrike:  440,
		ShortStrike: 445,
		Expiry:      "20260918",
	})
	require.NoError(t, err)
	require.Len(t, combo.Legs, 2)

	long, short := combo.Legs[0], combo.Legs[1]
	assert.Equal(t, ActionBuy, long.Action)
	assert.Equal(t, 440.0, long.Contract.Strike)
	assert.Equal(t, RightPut, long.Contract.Right)
	assert.Equal(t, ActionSell, short.Action)
	assert.Equal(t, 445.0, short.Contract.Strike)
	assert.Equal(t, "20260918", short.Contract.Expiry)
}

func TestBuildSpreadBearCall(t *testing.T) {
	combo, err := BuildSpread(models.Signal{
		Ticker:      "QQQ",
		Strategy:    models.StrategyBearCall,
		Qty:         1,
		LongStrike:  390,
		ShortStrike: 385,
		Expiry:      "20260918",
	})
	require.NoError(t, err)

	assert.Equal(t, RightCall, combo.Legs[0].Contract.Right)
	assert.Equal(t, ActionBuy, combo.Legs[0].Action)
	assert.Equal(t, ActionSell, combo.Legs[1].Action)
}

func TestBuildSpreadUnknownStrategy(t *testing.T) {
	_, err := BuildSpread(models.Signal{Strategy: "iron_condor"})
	assert.Error(t, err)
}

func TestQuoteMidFallsBackToLast(t *testing.T) {
	assert.Equal(t, 1.25, Quote{Bid: 1.20, Ask: 1.30}.Mid())
	assert.Equal(t, 1.10, Quote{Last: 1.10}.Mid())
}
