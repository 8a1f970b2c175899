package achievements

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrim-arena/internal/domain"
)

// Store is the persistence the engine needs: the player's lifetime counters,
// bounded match history, and the unlock ledger.
type Store interface {
	GetEntries(ctx context.Context, playerID string) ([]domain.LeaderboardEntry, error)
	GetHistory(ctx context.Context, playerID string, limit int) ([]domain.HistoryEntry, error)
	GetUnlockedAchievements(ctx context.Context, playerID string) (map[string]bool, error)
	UnlockAchievement(ctx context.Context, playerID, achievementID string, at time.Time) (bool, error)
}

// Engine evaluates the catalog against a player's history after each match
// and unlocks newly satisfied achievements exactly once.
type Engine struct {
	store        Store
	catalog      []Definition
	historyLimit int
	logger       *slog.Logger
}

// NewEngine creates an achievement engine over the static catalog.
func NewEngine(store Store, historyLimit int, logger *slog.Logger) *Engine {
	return &Engine{
		store:        store,
		catalog:      Catalog,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Evaluate runs every not-yet-unlocked predicate for the player against
// their history plus the just-completed match and returns the definitions
// unlocked by this call. Unlocking is idempotent: an achievement already
// held is skipped and never re-announced, and a concurrent duplicate insert
// collapses into a no-op at the store.
func (e *Engine) Evaluate(ctx context.Context, playerID string, current domain.HistoryEntry) ([]Definition, error) {
	unlocked, err := e.store.GetUnlockedAchievements(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading unlocked achievements: %w", err)
	}

	input, err := e.buildInput(ctx, playerID, current)
	if err != nil {
		return nil, err
	}

	var newly []Definition
	for _, def := range e.catalog {
		if unlocked[def.ID] {
			continue
		}
		if !def.Predicate(input) {
			continue
		}
		inserted, err := e.store.UnlockAchievement(ctx, playerID, def.ID, current.Timestamp)
		if err != nil {
			e.logger.Warn("failed to persist achievement unlock",
				"player_id", playerID,
				"achievement_id", def.ID,
				"error", err,
			)
			continue
		}
		if inserted {
			newly = append(newly, def)
		}
	}
	return newly, nil
}

func (e *Engine) buildInput(ctx context.Context, playerID string, current domain.HistoryEntry) (Input, error) {
	entries, err := e.store.GetEntries(ctx, playerID)
	if err != nil {
		return Input{}, fmt.Errorf("loading leaderboard entries: %w", err)
	}

	totals := Totals{ModeWins: make(map[domain.Mode]int, 3)}
	for _, entry := range entries {
		totals.Wins += entry.Wins
		totals.Losses += entry.Losses
		totals.ModeWins[entry.Mode] = entry.Wins
	}
	totals.Games = totals.Wins + totals.Losses

	history, err := e.store.GetHistory(ctx, playerID, e.historyLimit)
	if err != nil {
		return Input{}, fmt.Errorf("loading match history: %w", err)
	}

	// The just-completed match must sit at index 0 even if the persistence
	// step that records it failed earlier in settlement.
	if len(history) == 0 || history[0].MatchID != current.MatchID {
		history = append([]domain.HistoryEntry{current}, history...)
	}

	return Input{History: history, Current: current, Totals: totals}, nil
}
