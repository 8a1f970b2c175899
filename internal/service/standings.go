package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scrim-arena/internal/achievements"
	"github.com/scrim-arena/internal/domain"
)

// Mirror is the ranked-reads side of the Redis standings mirror.
type Mirror interface {
	GetTopN(ctx context.Context, mode domain.Mode, n int) ([]string, error)
	GetRank(ctx context.Context, mode domain.Mode, playerID string) (int64, error)
	GetCount(ctx context.Context, mode domain.Mode) (int64, error)
}

// Store is the source-of-truth side of standings reads.
type Store interface {
	GetStandings(ctx context.Context, mode domain.Mode, limit, offset int) ([]domain.Standing, error)
	GetEntries(ctx context.Context, playerID string) ([]domain.LeaderboardEntry, error)
	GetHistory(ctx context.Context, playerID string, limit int) ([]domain.HistoryEntry, error)
	GetUnlockedAchievements(ctx context.Context, playerID string) (map[string]bool, error)
}

// StandingsService serves leaderboard and player-profile reads. Ranked id
// lookups go through the Redis mirror when possible; full counter rows come
// from PostgreSQL, the source of truth.
type StandingsService struct {
	redis    Mirror
	postgres Store
	logger   *slog.Logger
}

// NewStandingsService creates a standings read service.
func NewStandingsService(redisService Mirror, postgresRepo Store, logger *slog.Logger) *StandingsService {
	return &StandingsService{
		redis:    redisService,
		postgres: postgresRepo,
		logger:   logger,
	}
}

// GetStandings returns the ranked standings for a mode.
func (s *StandingsService) GetStandings(ctx context.Context, mode domain.Mode, limit, offset int) ([]domain.Standing, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	standings, err := s.postgres.GetStandings(ctx, mode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting standings: %w", err)
	}
	return standings, nil
}

// GetTopPlayers returns the top n player ids for a mode from the Redis
// mirror, falling back to PostgreSQL when the mirror is unavailable.
func (s *StandingsService) GetTopPlayers(ctx context.Context, mode domain.Mode, n int) ([]string, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}
	if n <= 0 || n > 100 {
		n = 10
	}

	players, err := s.redis.GetTopN(ctx, mode, n)
	if err == nil {
		return players, nil
	}
	s.logger.Warn("redis standings read failed, falling back to postgres", "error", err)

	standings, err := s.postgres.GetStandings(ctx, mode, n, 0)
	if err != nil {
		return nil, fmt.Errorf("getting top players: %w", err)
	}
	ids := make([]string, len(standings))
	for i, st := range standings {
		ids[i] = st.PlayerID
	}
	return ids, nil
}

// PlayerProfile bundles a player's counters, recent history and unlocks.
type PlayerProfile struct {
	PlayerID     string                `json:"player_id"`
	Entries      []RankedEntry         `json:"entries"`
	History      []domain.HistoryEntry `json:"history"`
	Achievements []AchievementStatus   `json:"achievements"`
}

// RankedEntry is a per-mode counter row with the player's live position in
// the standings mirror. Rank is one-based; 0 means not yet mirrored.
type RankedEntry struct {
	domain.LeaderboardEntry
	Rank    int64 `json:"rank"`
	Players int64 `json:"players"`
}

// AchievementStatus is one catalog entry with the player's unlock state.
type AchievementStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
}

// GetPlayerProfile returns a player's full profile.
func (s *StandingsService) GetPlayerProfile(ctx context.Context, playerID string, historyLimit int) (*PlayerProfile, error) {
	entries, err := s.postgres.GetEntries(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting entries: %w", err)
	}
	history, err := s.postgres.GetHistory(ctx, playerID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	unlocked, err := s.postgres.GetUnlockedAchievements(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting unlocks: %w", err)
	}

	ranked := make([]RankedEntry, 0, len(entries))
	for _, entry := range entries {
		ranked = append(ranked, RankedEntry{
			LeaderboardEntry: entry,
			Rank:             s.liveRank(ctx, entry.Mode, playerID),
			Players:          s.livePlayerCount(ctx, entry.Mode),
		})
	}

	statuses := make([]AchievementStatus, 0, len(achievements.Catalog))
	for _, def := range achievements.Catalog {
		statuses = append(statuses, AchievementStatus{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Unlocked:    unlocked[def.ID],
		})
	}

	return &PlayerProfile{
		PlayerID:     playerID,
		Entries:      ranked,
		History:      history,
		Achievements: statuses,
	}, nil
}

// liveRank returns the player's one-based mirror rank, 0 when absent or when
// the mirror is unavailable.
func (s *StandingsService) liveRank(ctx context.Context, mode domain.Mode, playerID string) int64 {
	rank, err := s.redis.GetRank(ctx, mode, playerID)
	if err != nil {
		s.logger.Warn("redis rank read failed", "mode", mode.String(), "error", err)
		return 0
	}
	if rank < 0 {
		return 0
	}
	return rank + 1
}

// livePlayerCount returns the number of mirrored players in a mode, 0 when
// the mirror is unavailable.
func (s *StandingsService) livePlayerCount(ctx context.Context, mode domain.Mode) int64 {
	count, err := s.redis.GetCount(ctx, mode)
	if err != nil {
		s.logger.Warn("redis count read failed", "mode", mode.String(), "error", err)
		return 0
	}
	return count
}
