package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult is a participant's result in a settled match.
type MatchResult string

const (
	ResultWin  MatchResult = "WIN"
	ResultLoss MatchResult = "LOSS"
)

// LeaderboardEntry holds a player's lifetime counters for one mode.
// Counters only ever increase.
type LeaderboardEntry struct {
	PlayerID      string `json:"player_id"`
	Mode          Mode   `json:"mode"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	GoalsScored   int    `json:"goals_scored"`
	GoalsConceded int    `json:"goals_conceded"`
}

// Score is the standing score used for leader ranking: wins*3 - losses.
func (e LeaderboardEntry) Score() int {
	return e.Wins*3 - e.Losses
}

// Standing is a ranked leaderboard row served to clients.
type Standing struct {
	Rank          int64  `json:"rank"`
	PlayerID      string `json:"player_id"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Score         int    `json:"score"`
	GoalsScored   int    `json:"goals_scored"`
	GoalsConceded int    `json:"goals_conceded"`
}

// MatchRecord is the immutable historical record of a settled match.
type MatchRecord struct {
	MatchID    uuid.UUID   `json:"match_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Mode       Mode        `json:"mode"`
	Stake      int64       `json:"stake"`
	Winner     Side        `json:"winner"`
	BlueWins   int         `json:"blue_wins"`
	OrangeWins int         `json:"orange_wins"`
	Games      []GameScore `json:"games"`
	BestOf     BestOf      `json:"best_of"`
}

// Participant is one player's row in a settled match, append-only.
type Participant struct {
	MatchID  uuid.UUID   `json:"match_id"`
	PlayerID string      `json:"player_id"`
	Side     Side        `json:"side"`
	Result   MatchResult `json:"result"`
}

// HistoryEntry is one match from a player's perspective. History slices are
// ordered newest first.
type HistoryEntry struct {
	MatchID   uuid.UUID   `json:"match_id"`
	Timestamp time.Time   `json:"timestamp"`
	Mode      Mode        `json:"mode"`
	Result    MatchResult `json:"result"`
}

// AchievementUnlock records a single unlock. Unique per (player, achievement).
type AchievementUnlock struct {
	PlayerID      string    `json:"player_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}
