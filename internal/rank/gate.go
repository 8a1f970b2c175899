package rank

import (
	"context"

	"github.com/scrim-arena/internal/config"
)

// Source answers what rank tier a player currently holds on the platform.
// An empty tier means the player holds no ranked tier.
type Source interface {
	Tier(ctx context.Context, playerID string) (string, error)
}

// Gate applies the match rank requirement: a joining player must hold the
// creator's tier exactly, or one of the tiers in its adjacency band.
type Gate struct {
	cfg    *config.RankConfig
	source Source
}

// NewGate creates a rank gate over a tier source.
func NewGate(cfg *config.RankConfig, source Source) *Gate {
	return &Gate{cfg: cfg, source: source}
}

// Allows reports whether a player may join a match requiring requiredTier.
func (g *Gate) Allows(ctx context.Context, requiredTier, playerID string) (bool, error) {
	tier, err := g.source.Tier(ctx, playerID)
	if err != nil {
		return false, err
	}
	if tier == "" {
		return false, nil
	}
	return g.cfg.Allowed(requiredTier, tier), nil
}

// TierOf returns the player's current tier.
func (g *Gate) TierOf(ctx context.Context, playerID string) (string, error) {
	return g.source.Tier(ctx, playerID)
}
