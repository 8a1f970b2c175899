package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
)

// StandingsService mirrors per-mode leaderboard standings into Redis sorted
// sets for cheap ranked reads, and provides the per-mode allocator lock.
// Postgres remains the source of truth; the sync worker repairs drift.
type StandingsService struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStandingsService creates a new Redis standings service
func NewStandingsService(cfg *config.RedisConfig, logger *slog.Logger) (*StandingsService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &StandingsService{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *StandingsService) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *StandingsService) Client() *redis.Client {
	return s.client
}

// standingsKey returns the Redis key for a mode's sorted set
func (s *StandingsService) standingsKey(mode domain.Mode) string {
	return fmt.Sprintf("standings:%s", mode)
}

// lockKey returns the Redis key for a mode's allocator lock
func (s *StandingsService) lockKey(mode domain.Mode) string {
	return fmt.Sprintf("roles:lock:%s", mode)
}

// rankScore packs (wins, wins*3-losses) into a single sortable float so that
// the sorted set orders by wins first and score second, matching the
// database ranking.
func rankScore(entry domain.LeaderboardEntry) float64 {
	return float64(entry.Wins)*1_000_000 + float64(entry.Score()+500_000)
}

// SetEntry mirrors one player's standing for a mode.
func (s *StandingsService) SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error {
	err := s.client.ZAdd(ctx, s.standingsKey(entry.Mode), redis.Z{
		Score:  rankScore(entry),
		Member: entry.PlayerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting standing: %w", err)
	}
	return nil
}

// BatchSetEntries mirrors many standings for a mode in one round trip.
func (s *StandingsService) BatchSetEntries(ctx context.Context, mode domain.Mode, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: rankScore(e), Member: e.PlayerID})
	}
	if err := s.client.ZAdd(ctx, s.standingsKey(mode), members...).Err(); err != nil {
		return fmt.Errorf("batch setting standings: %w", err)
	}
	return nil
}

// GetTopN returns the top n ranked player ids for a mode.
func (s *StandingsService) GetTopN(ctx context.Context, mode domain.Mode, n int) ([]string, error) {
	members, err := s.client.ZRevRange(ctx, s.standingsKey(mode), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top standings: %w", err)
	}
	return members, nil
}

// GetRank returns a player's zero-based rank in a mode, or -1 if absent.
func (s *StandingsService) GetRank(ctx context.Context, mode domain.Mode, playerID string) (int64, error) {
	rank, err := s.client.ZRevRank(ctx, s.standingsKey(mode), playerID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("getting rank: %w", err)
	}
	return rank, nil
}

// GetCount returns the number of mirrored players in a mode.
func (s *StandingsService) GetCount(ctx context.Context, mode domain.Mode) (int64, error) {
	count, err := s.client.ZCard(ctx, s.standingsKey(mode)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting standings count: %w", err)
	}
	return count, nil
}

// AcquireModeLock takes the per-mode allocator lease. Leader recomputation
// for a mode must run under this lock so two matches settling in the same
// mode cannot interleave grant/removal decisions.
func (s *StandingsService) AcquireModeLock(ctx context.Context, mode domain.Mode, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(mode), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring mode lock: %w", err)
	}
	return ok, nil
}

// ReleaseModeLock releases the per-mode allocator lease.
func (s *StandingsService) ReleaseModeLock(ctx context.Context, mode domain.Mode) error {
	if err := s.client.Del(ctx, s.lockKey(mode)).Err(); err != nil {
		return fmt.Errorf("releasing mode lock: %w", err)
	}
	return nil
}
