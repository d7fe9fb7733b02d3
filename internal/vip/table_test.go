package vip_test

import (
	"testing"

	"settlement_service/internal/vip"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTiers() []vip.Tier {
	return []vip.Tier{
		{Level: 0, Name: "Bronze", Threshold: decimal.Zero, RebatePercents: map[string]decimal.Decimal{"slots": decimal.NewFromFloat(0.005)}, WithdrawalLimit: 1},
		{Level: 1, Name: "Silver", Threshold: decimal.NewFromInt(1000), RebatePercents: map[string]decimal.Decimal{"slots": decimal.NewFromFloat(0.008)}, WithdrawalLimit: 3},
		{Level: 2, Name: "Gold", Threshold: decimal.NewFromInt(5000), RebatePercents: map[string]decimal.Decimal{"slots": decimal.NewFromFloat(0.01), "live": decimal.NewFromFloat(0.006)}},
	}
}

func TestTierForBoundaries(t *testing.T) {
	table, err := vip.NewTable(testTiers())
	require.NoError(t, err)

	assert.Equal(t, 0, table.TierFor(decimal.Zero).Level)
	assert.Equal(t, 0, table.TierFor(decimal.NewFromFloat(999.99)).Level)
	// Exactly at the threshold counts as reached.
	assert.Equal(t, 1, table.TierFor(decimal.NewFromInt(1000)).Level)
	assert.Equal(t, 1, table.TierFor(decimal.NewFromFloat(4999.99)).Level)
	assert.Equal(t, 2, table.TierFor(decimal.NewFromInt(5000)).Level)
	assert.Equal(t, 2, table.TierFor(decimal.NewFromInt(1000000)).Level)
}

func TestNextThreshold(t *testing.T) {
	table, err := vip.NewTable(testTiers())
	require.NoError(t, err)

	next, ok := table.NextThreshold(decimal.NewFromInt(500))
	require.True(t, ok)
	assert.True(t, next.Equal(decimal.NewFromInt(1000)))

	// Sitting exactly on a threshold targets the one above it.
	next, ok = table.NextThreshold(decimal.NewFromInt(1000))
	require.True(t, ok)
	assert.True(t, next.Equal(decimal.NewFromInt(5000)))

	_, ok = table.NextThreshold(decimal.NewFromInt(5000))
	assert.False(t, ok)
}

func TestReloadRejectsNonIncreasingThresholds(t *testing.T) {
	_, err := vip.NewTable([]vip.Tier{
		{Level: 0, Threshold: decimal.NewFromInt(100)},
		{Level: 1, Threshold: decimal.NewFromInt(100)},
	})
	assert.ErrorIs(t, err, vip.ErrInvalidTierTable)
}

func TestRebatePercent(t *testing.T) {
	table, err := vip.NewTable(testTiers())
	require.NoError(t, err)

	assert.True(t, table.RebatePercent(2, "live").Equal(decimal.NewFromFloat(0.006)))
	// Unknown category and unknown level both earn nothing.
	assert.True(t, table.RebatePercent(0, "live").IsZero())
	assert.True(t, table.RebatePercent(9, "slots").IsZero())
}

func TestWithdrawalLimit(t *testing.T) {
	table, err := vip.NewTable(testTiers())
	require.NoError(t, err)

	assert.Equal(t, 1, table.WithdrawalLimit(0))
	assert.Equal(t, 3, table.WithdrawalLimit(1))
	// Gold has no configured limit.
	assert.Equal(t, 0, table.WithdrawalLimit(2))
}
