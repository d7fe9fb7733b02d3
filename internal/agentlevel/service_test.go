package agentlevel_test

import (
	"context"
	"testing"

	"settlement_service/internal/agentlevel"
	"settlement_service/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	level int
	vips  []int
}

func (f *fakeSource) AgentWithDownlines(ctx context.Context, agentID string) (int, []int, error) {
	return f.level, f.vips, nil
}

type fakeStore struct {
	awards []struct {
		level int
		bonus decimal.Decimal
	}
}

func (f *fakeStore) AwardLevelUp(ctx context.Context, agentID string, level int, bonus decimal.Decimal, note string) error {
	f.awards = append(f.awards, struct {
		level int
		bonus decimal.Decimal
	}{level, bonus})
	return nil
}

func levelTable(t *testing.T) *agentlevel.Table {
	t.Helper()
	table, err := agentlevel.NewTable([]agentlevel.Requirement{
		{Level: 1, RequiredVIPLevel: 1, RequiredCount: 3, Bonus: decimal.NewFromInt(100)},
		{Level: 2, RequiredVIPLevel: 2, RequiredCount: 5, Bonus: decimal.NewFromInt(500)},
	})
	require.NoError(t, err)
	return table
}

func TestReevaluateAwardsLevelUp(t *testing.T) {
	source := &fakeSource{level: 0, vips: []int{1, 2, 0, 1}}
	store := &fakeStore{}
	kioskClient := &testutil.FakeKiosk{}
	svc := agentlevel.NewService(source, levelTable(t), store, kioskClient)

	res, err := svc.Reevaluate(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.OldLevel)
	assert.Equal(t, 1, res.NewLevel)
	assert.True(t, res.BonusAwarded.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 3, res.QualifiedDownlineCount)

	require.Len(t, store.awards, 1)
	assert.Equal(t, 1, store.awards[0].level)
	require.Equal(t, 1, kioskClient.CallCount())
	assert.True(t, kioskClient.Calls[0].Equal(decimal.NewFromInt(100)))
}

func TestReevaluateSkipsAlreadyHeldLevel(t *testing.T) {
	source := &fakeSource{level: 1, vips: []int{1, 1, 1}}
	store := &fakeStore{}
	kioskClient := &testutil.FakeKiosk{}
	svc := agentlevel.NewService(source, levelTable(t), store, kioskClient)

	res, err := svc.Reevaluate(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 1, res.NewLevel)
	assert.True(t, res.BonusAwarded.IsZero())
	assert.Empty(t, store.awards)
	assert.Equal(t, 0, kioskClient.CallCount())
}

func TestReevaluateNotEnoughQualifiedDownlines(t *testing.T) {
	source := &fakeSource{level: 0, vips: []int{1, 1, 0}}
	store := &fakeStore{}
	svc := agentlevel.NewService(source, levelTable(t), store, &testutil.FakeKiosk{})

	res, err := svc.Reevaluate(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewLevel)
	assert.Empty(t, store.awards)
}

func TestReevaluateHighestQualifyingLevelWins(t *testing.T) {
	// Five downlines at VIP 2 satisfy both level 1 and level 2; only the
	// level 2 award fires.
	source := &fakeSource{level: 0, vips: []int{2, 2, 2, 2, 2}}
	store := &fakeStore{}
	kioskClient := &testutil.FakeKiosk{}
	svc := agentlevel.NewService(source, levelTable(t), store, kioskClient)

	res, err := svc.Reevaluate(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.BonusAwarded.Equal(decimal.NewFromInt(500)))
	require.Len(t, store.awards, 1)
	assert.Equal(t, 2, store.awards[0].level)
	assert.Equal(t, 1, kioskClient.CallCount())
}

func TestReevaluateKioskFailureAbortsAward(t *testing.T) {
	source := &fakeSource{level: 0, vips: []int{1, 1, 1}}
	store := &fakeStore{}
	svc := agentlevel.NewService(source, levelTable(t), store, &testutil.FakeKiosk{Fail: true})

	_, err := svc.Reevaluate(context.Background(), "a1")
	require.Error(t, err)
	assert.Empty(t, store.awards)
}
