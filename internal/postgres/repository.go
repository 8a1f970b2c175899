package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context, bonusCap int) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leaderboard (
			player_id VARCHAR(64) NOT NULL,
			mode SMALLINT NOT NULL,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			goals_scored INT NOT NULL DEFAULT 0,
			goals_conceded INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (player_id, mode)
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			mode SMALLINT NOT NULL,
			stake BIGINT NOT NULL,
			winner VARCHAR(10) NOT NULL,
			blue_wins INT NOT NULL,
			orange_wins INT NOT NULL,
			games JSONB NOT NULL,
			best_of VARCHAR(20) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS match_participants (
			id BIGSERIAL PRIMARY KEY,
			match_id UUID NOT NULL REFERENCES matches(id),
			player_id VARCHAR(64) NOT NULL,
			team VARCHAR(10) NOT NULL,
			result VARCHAR(10) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_unlocks (
			player_id VARCHAR(64) NOT NULL,
			achievement_id VARCHAR(64) NOT NULL,
			unlocked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (player_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS bonus_budget (
			id SMALLINT PRIMARY KEY,
			used INT NOT NULL DEFAULT 0,
			cap INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leader_roles (
			mode SMALLINT NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			PRIMARY KEY (mode, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_player ON match_participants(player_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_match ON match_participants(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_mode ON leaderboard(mode, wins DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	// Seed the single budget row; the cap is configuration-owned.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bonus_budget (id, used, cap) VALUES (1, 0, $1)
		ON CONFLICT (id) DO UPDATE SET cap = $1
	`, bonusCap)
	if err != nil {
		return fmt.Errorf("seeding bonus budget: %w", err)
	}

	r.logger.Info("database migrations completed")
	return nil
}

// ApplyResult increments a player's per-mode counters for one settled match
// and returns the updated entry. Counters are never decremented.
func (r *Repository) ApplyResult(ctx context.Context, playerID string, mode domain.Mode, win bool, goalsScored, goalsConceded int) (*domain.LeaderboardEntry, error) {
	wins, losses := 0, 1
	if win {
		wins, losses = 1, 0
	}
	query := `
		INSERT INTO leaderboard (player_id, mode, wins, losses, goals_scored, goals_conceded, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, mode) DO UPDATE SET
			wins = leaderboard.wins + $3,
			losses = leaderboard.losses + $4,
			goals_scored = leaderboard.goals_scored + $5,
			goals_conceded = leaderboard.goals_conceded + $6,
			updated_at = $7
		RETURNING wins, losses, goals_scored, goals_conceded
	`
	entry := &domain.LeaderboardEntry{PlayerID: playerID, Mode: mode}
	err := r.pool.QueryRow(ctx, query, playerID, int(mode), wins, losses, goalsScored, goalsConceded, time.Now()).Scan(
		&entry.Wins, &entry.Losses, &entry.GoalsScored, &entry.GoalsConceded,
	)
	if err != nil {
		return nil, fmt.Errorf("applying result: %w", err)
	}
	return entry, nil
}

// GetEntry retrieves a player's leaderboard entry for a mode. A player with
// no recorded results gets a zero-valued entry.
func (r *Repository) GetEntry(ctx context.Context, playerID string, mode domain.Mode) (*domain.LeaderboardEntry, error) {
	query := `
		SELECT wins, losses, goals_scored, goals_conceded
		FROM leaderboard
		WHERE player_id = $1 AND mode = $2
	`
	entry := &domain.LeaderboardEntry{PlayerID: playerID, Mode: mode}
	err := r.pool.QueryRow(ctx, query, playerID, mode).Scan(
		&entry.Wins, &entry.Losses, &entry.GoalsScored, &entry.GoalsConceded,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return entry, nil
		}
		return nil, fmt.Errorf("getting leaderboard entry: %w", err)
	}
	return entry, nil
}

// GetEntries retrieves a player's entries across all modes.
func (r *Repository) GetEntries(ctx context.Context, playerID string) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT mode, wins, losses, goals_scored, goals_conceded
		FROM leaderboard
		WHERE player_id = $1
		ORDER BY mode
	`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		entry := domain.LeaderboardEntry{PlayerID: playerID}
		if err := rows.Scan(&entry.Mode, &entry.Wins, &entry.Losses, &entry.GoalsScored, &entry.GoalsConceded); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetWinners returns every player with at least one win in the mode, ranked
// by wins desc then score desc, where score = wins*3 - losses.
func (r *Repository) GetWinners(ctx context.Context, mode domain.Mode) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT player_id, wins, losses, goals_scored, goals_conceded
		FROM leaderboard
		WHERE mode = $1 AND wins > 0
		ORDER BY wins DESC, (wins * 3 - losses) DESC, player_id
	`
	rows, err := r.pool.Query(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("getting winners: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		entry := domain.LeaderboardEntry{Mode: mode}
		if err := rows.Scan(&entry.PlayerID, &entry.Wins, &entry.Losses, &entry.GoalsScored, &entry.GoalsConceded); err != nil {
			return nil, fmt.Errorf("scanning winner: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetStandings returns the ranked standings for a mode with pagination.
func (r *Repository) GetStandings(ctx context.Context, mode domain.Mode, limit, offset int) ([]domain.Standing, error) {
	query := `
		SELECT player_id, wins, losses, goals_scored, goals_conceded,
			   ROW_NUMBER() OVER (ORDER BY wins DESC, (wins * 3 - losses) DESC, player_id) AS rank
		FROM leaderboard
		WHERE mode = $1
		ORDER BY wins DESC, (wins * 3 - losses) DESC, player_id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, mode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting standings: %w", err)
	}
	defer rows.Close()

	var standings []domain.Standing
	for rows.Next() {
		var s domain.Standing
		if err := rows.Scan(&s.PlayerID, &s.Wins, &s.Losses, &s.GoalsScored, &s.GoalsConceded, &s.Rank); err != nil {
			return nil, fmt.Errorf("scanning standing: %w", err)
		}
		s.Score = s.Wins*3 - s.Losses
		standings = append(standings, s)
	}
	return standings, nil
}

// RecordMatch appends a settled match and its participant rows. The records
// are immutable once written.
func (r *Repository) RecordMatch(ctx context.Context, record domain.MatchRecord, participants []domain.Participant) error {
	gamesJSON, err := json.Marshal(record.Games)
	if err != nil {
		return fmt.Errorf("marshaling games: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (id, created_at, mode, stake, winner, blue_wins, orange_wins, games, best_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.MatchID, record.CreatedAt, int(record.Mode), record.Stake,
		string(record.Winner), record.BlueWins, record.OrangeWins, gamesJSON, string(record.BestOf))
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(`
			INSERT INTO match_participants (match_id, player_id, team, result)
			VALUES ($1, $2, $3, $4)
		`, p.MatchID, p.PlayerID, string(p.Side), string(p.Result))
	}
	br := tx.SendBatch(ctx, batch)
	for range participants {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting participant: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing participant batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing match record: %w", err)
	}
	return nil
}

// GetHistory returns a player's settled matches, newest first.
func (r *Repository) GetHistory(ctx context.Context, playerID string, limit int) ([]domain.HistoryEntry, error) {
	query := `
		SELECT m.id, m.created_at, m.mode, p.result
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		WHERE p.player_id = $1
		ORDER BY m.created_at DESC, p.id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting match history: %w", err)
	}
	defer rows.Close()

	var history []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var result string
		if err := rows.Scan(&h.MatchID, &h.Timestamp, &h.Mode, &result); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		h.Result = domain.MatchResult(result)
		history = append(history, h)
	}
	return history, nil
}

// UnlockAchievement inserts an unlock row. A second insert for the same
// (player, achievement) pair is a no-op; the return value reports whether
// the row was newly inserted.
func (r *Repository) UnlockAchievement(ctx context.Context, playerID, achievementID string, at time.Time) (bool, error) {
	query := `
		INSERT INTO achievement_unlocks (player_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, achievement_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, playerID, achievementID, at)
	if err != nil {
		return false, fmt.Errorf("unlocking achievement: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetUnlockedAchievements returns the set of achievement ids a player holds.
func (r *Repository) GetUnlockedAchievements(ctx context.Context, playerID string) (map[string]bool, error) {
	query := `SELECT achievement_id FROM achievement_unlocks WHERE player_id = $1`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting unlocked achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning unlock: %w", err)
		}
		unlocked[id] = true
	}
	return unlocked, nil
}

// GrantBonusBudget atomically consumes n units of the global bonus budget.
// The check and increment are a single conditional update so concurrent
// settlements can never push usage past the cap. Returns false when the
// budget cannot cover n.
func (r *Repository) GrantBonusBudget(ctx context.Context, n int) (bool, error) {
	query := `UPDATE bonus_budget SET used = used + $1 WHERE id = 1 AND used + $1 <= cap`
	tag, err := r.pool.Exec(ctx, query, n)
	if err != nil {
		return false, fmt.Errorf("granting bonus budget: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetBonusBudget returns the used and cap values of the global budget.
func (r *Repository) GetBonusBudget(ctx context.Context) (used, cap int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT used, cap FROM bonus_budget WHERE id = 1`).Scan(&used, &cap)
	if err != nil {
		return 0, 0, fmt.Errorf("getting bonus budget: %w", err)
	}
	return used, cap, nil
}

// GetLeaderRoles returns the persisted incumbent leader set for a mode in
// stored order.
func (r *Repository) GetLeaderRoles(ctx context.Context, mode domain.Mode) ([]string, error) {
	query := `SELECT player_id FROM leader_roles WHERE mode = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("getting leader roles: %w", err)
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning leader role: %w", err)
		}
		players = append(players, id)
	}
	return players, nil
}

// SetLeaderRoles replaces the persisted leader set for a mode.
func (r *Repository) SetLeaderRoles(ctx context.Context, mode domain.Mode, players []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM leader_roles WHERE mode = $1`, mode); err != nil {
		return fmt.Errorf("clearing leader roles: %w", err)
	}
	for i, p := range players {
		if _, err := tx.Exec(ctx, `
			INSERT INTO leader_roles (mode, player_id, position) VALUES ($1, $2, $3)
		`, mode, p, i); err != nil {
			return fmt.Errorf("inserting leader role: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing leader roles: %w", err)
	}
	return nil
}

// GetAllEntries retrieves every leaderboard entry for a mode (for sync).
func (r *Repository) GetAllEntries(ctx context.Context, mode domain.Mode) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT player_id, wins, losses, goals_scored, goals_conceded
		FROM leaderboard
		WHERE mode = $1
	`
	rows, err := r.pool.Query(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("getting all entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		entry := domain.LeaderboardEntry{Mode: mode}
		if err := rows.Scan(&entry.PlayerID, &entry.Wins, &entry.Losses, &entry.GoalsScored, &entry.GoalsConceded); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
