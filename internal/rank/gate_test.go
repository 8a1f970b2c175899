package rank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-arena/internal/config"
)

type staticTiers map[string]string

func (s staticTiers) Tier(ctx context.Context, playerID string) (string, error) {
	return s[playerID], nil
}

func testRankConfig() *config.RankConfig {
	return &config.RankConfig{
		Tiers: []string{"Bronze", "Silver", "Gold", "GC1", "GC2", "GC3", "SSL"},
		Adjacency: map[string][]string{
			"GC1": {"GC2"},
			"GC2": {"GC1", "GC3"},
			"GC3": {"GC2", "SSL"},
			"SSL": {"GC3"},
		},
	}
}

func TestAllowsExactTier(t *testing.T) {
	gate := NewGate(testRankConfig(), staticTiers{"alice": "Gold"})

	ok, err := gate.Allows(context.Background(), "Gold", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Allows(context.Background(), "Silver", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowsAdjacentTopTiers(t *testing.T) {
	gate := NewGate(testRankConfig(), staticTiers{"bob": "GC3"})

	for _, required := range []string{"GC2", "GC3", "SSL"} {
		ok, err := gate.Allows(context.Background(), required, "bob")
		require.NoError(t, err)
		assert.True(t, ok, "GC3 should be allowed into a %s match", required)
	}

	ok, err := gate.Allows(context.Background(), "GC1", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "adjacency is one step only")
}

func TestAllowsRejectsUnranked(t *testing.T) {
	gate := NewGate(testRankConfig(), staticTiers{})

	ok, err := gate.Allows(context.Background(), "Gold", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
