package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/scrim-arena/internal/domain"
)

// reconcileDepth is how far down the standings the drift-repair sweep looks
// for players who visibly hold the designation but should not.
const reconcileDepth = 25

// Store persists standings and the incumbent leader baseline.
type Store interface {
	GetWinners(ctx context.Context, mode domain.Mode) ([]domain.LeaderboardEntry, error)
	GetLeaderRoles(ctx context.Context, mode domain.Mode) ([]string, error)
	SetLeaderRoles(ctx context.Context, mode domain.Mode, players []string) error
}

// Platform grants and revokes the visible leader designation on the chat
// platform. A player who left the community is unresolvable and skipped.
type Platform interface {
	Holders(ctx context.Context, mode domain.Mode) ([]string, error)
	Grant(ctx context.Context, mode domain.Mode, playerID string) error
	Revoke(ctx context.Context, mode domain.Mode, playerID string) error
	Resolvable(ctx context.Context, playerID string) (bool, error)
}

// Locker serializes recomputation per mode across concurrent settlements.
type Locker interface {
	AcquireModeLock(ctx context.Context, mode domain.Mode, ttl time.Duration) (bool, error)
	ReleaseModeLock(ctx context.Context, mode domain.Mode) error
}

// Allocator decides which players hold the scarce per-mode leader
// designation after each settled match.
type Allocator struct {
	store    Store
	platform Platform
	locker   Locker
	logger   *slog.Logger

	lockTTL     time.Duration
	lockRetry   time.Duration
	lockTimeout time.Duration
}

// NewAllocator creates a leader role allocator.
func NewAllocator(store Store, platform Platform, locker Locker, logger *slog.Logger) *Allocator {
	return &Allocator{
		store:       store,
		platform:    platform,
		locker:      locker,
		logger:      logger,
		lockTTL:     30 * time.Second,
		lockRetry:   200 * time.Millisecond,
		lockTimeout: 10 * time.Second,
	}
}

// Recompute reevaluates the leader set for a mode under the per-mode lock.
func (a *Allocator) Recompute(ctx context.Context, mode domain.Mode) error {
	if err := a.acquire(ctx, mode); err != nil {
		return err
	}
	defer func() {
		if err := a.locker.ReleaseModeLock(context.WithoutCancel(ctx), mode); err != nil {
			a.logger.Warn("failed to release mode lock", "mode", mode.String(), "error", err)
		}
	}()

	return a.recompute(ctx, mode)
}

func (a *Allocator) acquire(ctx context.Context, mode domain.Mode) error {
	deadline := time.Now().Add(a.lockTimeout)
	for {
		ok, err := a.locker.AcquireModeLock(ctx, mode, a.lockTTL)
		if err != nil {
			return fmt.Errorf("acquiring mode lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mode %s allocator lock held too long", mode)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.lockRetry):
		}
	}
}

func (a *Allocator) recompute(ctx context.Context, mode domain.Mode) error {
	winners, err := a.store.GetWinners(ctx, mode)
	if err != nil {
		return fmt.Errorf("loading winners: %w", err)
	}

	if len(winners) == 0 {
		return a.clearAll(ctx, mode)
	}

	incumbents, err := a.store.GetLeaderRoles(ctx, mode)
	if err != nil {
		return fmt.Errorf("loading incumbents: %w", err)
	}

	leaders := Select(winners, incumbents, mode.MaxLeaders())

	holders, err := a.platform.Holders(ctx, mode)
	if err != nil {
		a.logger.Warn("failed to list designation holders, skipping drift repair",
			"mode", mode.String(), "error", err)
		holders = nil
	}

	removals := removalSet(winners, incumbents, holders, leaders)
	holderSet := toSet(holders)

	for _, playerID := range removals {
		a.revoke(ctx, mode, playerID)
	}
	for _, playerID := range leaders {
		if holderSet[playerID] {
			continue
		}
		a.grant(ctx, mode, playerID)
	}

	if err := a.store.SetLeaderRoles(ctx, mode, leaders); err != nil {
		return fmt.Errorf("persisting leader set: %w", err)
	}

	a.logger.Info("leader roles recomputed",
		"mode", mode.String(),
		"leaders", leaders,
		"removed", removals,
	)
	return nil
}

// Select picks the new leader set. Winners must already be ranked by
// (wins desc, score desc). Only players tied for the maximum win count are
// eligible; when the tie overflows the slot count, incumbents who are still
// candidates keep their role in existing relative order and remaining slots
// go to the highest-scoring newcomers.
func Select(winners []domain.LeaderboardEntry, incumbents []string, maxLeaders int) []string {
	if len(winners) == 0 || maxLeaders <= 0 {
		return nil
	}

	maxWins := winners[0].Wins
	var candidates []domain.LeaderboardEntry
	for _, w := range winners {
		if w.Wins != maxWins {
			break
		}
		candidates = append(candidates, w)
	}

	if len(candidates) <= maxLeaders {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.PlayerID
		}
		return ids
	}

	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c.PlayerID] = true
	}

	selected := make([]string, 0, maxLeaders)
	selectedSet := make(map[string]bool, maxLeaders)
	for _, id := range incumbents {
		if len(selected) >= maxLeaders {
			break
		}
		if candidateSet[id] && !selectedSet[id] {
			selected = append(selected, id)
			selectedSet[id] = true
		}
	}

	// Candidates share the max win count, so ranking within them is by
	// score; keep the order stable for equal scores.
	byScore := make([]domain.LeaderboardEntry, len(candidates))
	copy(byScore, candidates)
	sort.SliceStable(byScore, func(i, j int) bool {
		return byScore[i].Score() > byScore[j].Score()
	})
	for _, c := range byScore {
		if len(selected) >= maxLeaders {
			break
		}
		if !selectedSet[c.PlayerID] {
			selected = append(selected, c.PlayerID)
			selectedSet[c.PlayerID] = true
		}
	}
	return selected
}

// removalSet is the union of persisted incumbents displaced by the new set
// and top-ranked players who visibly hold the designation without being in
// the new set (drift between persisted and platform state).
func removalSet(winners []domain.LeaderboardEntry, incumbents, holders, leaders []string) []string {
	leaderSet := toSet(leaders)

	topRanked := make(map[string]bool, reconcileDepth)
	for i, w := range winners {
		if i >= reconcileDepth {
			break
		}
		topRanked[w.PlayerID] = true
	}

	var removals []string
	seen := make(map[string]bool)
	for _, id := range incumbents {
		if !leaderSet[id] && !seen[id] {
			removals = append(removals, id)
			seen[id] = true
		}
	}
	for _, id := range holders {
		if topRanked[id] && !leaderSet[id] && !seen[id] {
			removals = append(removals, id)
			seen[id] = true
		}
	}
	return removals
}

func (a *Allocator) clearAll(ctx context.Context, mode domain.Mode) error {
	holders, err := a.platform.Holders(ctx, mode)
	if err != nil {
		a.logger.Warn("failed to list designation holders", "mode", mode.String(), "error", err)
	}
	for _, playerID := range holders {
		a.revoke(ctx, mode, playerID)
	}
	if err := a.store.SetLeaderRoles(ctx, mode, nil); err != nil {
		return fmt.Errorf("clearing leader set: %w", err)
	}
	a.logger.Info("leader roles cleared", "mode", mode.String())
	return nil
}

func (a *Allocator) grant(ctx context.Context, mode domain.Mode, playerID string) {
	if !a.resolvable(ctx, playerID) {
		return
	}
	if err := a.platform.Grant(ctx, mode, playerID); err != nil {
		a.logger.Warn("failed to grant leader designation",
			"mode", mode.String(), "player_id", playerID, "error", err)
	}
}

func (a *Allocator) revoke(ctx context.Context, mode domain.Mode, playerID string) {
	if !a.resolvable(ctx, playerID) {
		return
	}
	if err := a.platform.Revoke(ctx, mode, playerID); err != nil {
		a.logger.Warn("failed to revoke leader designation",
			"mode", mode.String(), "player_id", playerID, "error", err)
	}
}

func (a *Allocator) resolvable(ctx context.Context, playerID string) bool {
	ok, err := a.platform.Resolvable(ctx, playerID)
	if err != nil {
		a.logger.Warn("failed to resolve player", "player_id", playerID, "error", err)
		return false
	}
	return ok
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
