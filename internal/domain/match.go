package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the team size of a match: 1 for 1v1, 2 for 2v2, 3 for 3v3.
type Mode int

const (
	Mode1v1 Mode = 1
	Mode2v2 Mode = 2
	Mode3v3 Mode = 3
)

// Modes lists every supported mode in ascending team-size order.
var Modes = []Mode{Mode1v1, Mode2v2, Mode3v3}

// Valid reports whether m is a supported team size.
func (m Mode) Valid() bool {
	return m == Mode1v1 || m == Mode2v2 || m == Mode3v3
}

func (m Mode) String() string {
	switch m {
	case Mode1v1:
		return "1v1"
	case Mode2v2:
		return "2v2"
	case Mode3v3:
		return "3v3"
	}
	return "unknown"
}

// MaxLeaders is the number of leader designations available in a mode.
func (m Mode) MaxLeaders() int {
	return int(m)
}

// Side identifies one of the two teams in a match.
type Side string

const (
	SideBlue   Side = "blue"
	SideOrange Side = "orange"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideBlue {
		return SideOrange
	}
	return SideBlue
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBlue || s == SideOrange
}

// BestOf is the series format of a match.
type BestOf string

const (
	BestOfOne   BestOf = "one_game"
	BestOfThree BestOf = "best_of_3"
)

// MaxGames returns the maximum number of games in the series.
func (b BestOf) MaxGames() int {
	if b == BestOfThree {
		return 3
	}
	return 1
}

// MatchState is the lifecycle state of a match session.
type MatchState string

const (
	StateForming   MatchState = "forming"
	StateFull      MatchState = "full"
	StateSettling  MatchState = "settling"
	StateSettled   MatchState = "settled"
	StateCancelled MatchState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s MatchState) Terminal() bool {
	return s == StateSettled || s == StateCancelled
}

// Match is one wagered match. Rosters are ordered; index 0 is the captain.
type Match struct {
	ID        uuid.UUID  `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Mode      Mode       `json:"mode"`
	Stake     int64      `json:"stake"`
	BestOf    BestOf     `json:"best_of"`
	Blue      []string   `json:"blue"`
	Orange    []string   `json:"orange"`
	State     MatchState `json:"state"`

	// RequiredTier is the creator's rank tier at creation time; joins are
	// gated against it.
	RequiredTier string `json:"required_tier"`
}

// Captain returns the captain of the given side, or "" for an empty roster.
func (m *Match) Captain(side Side) string {
	roster := m.Roster(side)
	if len(roster) == 0 {
		return ""
	}
	return roster[0]
}

// Roster returns the ordered roster of a side.
func (m *Match) Roster(side Side) []string {
	if side == SideBlue {
		return m.Blue
	}
	return m.Orange
}

// Players returns both rosters concatenated, blue first.
func (m *Match) Players() []string {
	out := make([]string, 0, len(m.Blue)+len(m.Orange))
	out = append(out, m.Blue...)
	out = append(out, m.Orange...)
	return out
}

// SideOf returns the side a player is on, or "" if they are not in the match.
func (m *Match) SideOf(playerID string) Side {
	for _, p := range m.Blue {
		if p == playerID {
			return SideBlue
		}
	}
	for _, p := range m.Orange {
		if p == playerID {
			return SideOrange
		}
	}
	return ""
}

// GameScore is the goal count of a single game, blue vs orange.
type GameScore struct {
	Blue   int `json:"blue"`
	Orange int `json:"orange"`
}

// Winner returns the side with strictly more goals, or "" for a draw.
func (g GameScore) Winner() Side {
	switch {
	case g.Blue > g.Orange:
		return SideBlue
	case g.Orange > g.Blue:
		return SideOrange
	}
	return ""
}

// ScoreReport is one captain's submitted series result.
type ScoreReport struct {
	Side        Side        `json:"side"`
	SubmittedBy string      `json:"submitted_by"`
	Games       []GameScore `json:"games"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Equal reports exact value equality of the full ordered game sequence.
func (r ScoreReport) Equal(other ScoreReport) bool {
	if len(r.Games) != len(other.Games) {
		return false
	}
	for i := range r.Games {
		if r.Games[i] != other.Games[i] {
			return false
		}
	}
	return true
}

// GamesWon tallies games won per side. Drawn games count for neither.
func GamesWon(games []GameScore) (blue, orange int) {
	for _, g := range games {
		switch g.Winner() {
		case SideBlue:
			blue++
		case SideOrange:
			orange++
		}
	}
	return blue, orange
}

// SeriesGoals sums goals across the whole series, blue vs orange.
func SeriesGoals(games []GameScore) (blue, orange int) {
	for _, g := range games {
		blue += g.Blue
		orange += g.Orange
	}
	return blue, orange
}

// Outcome is an agreed match result handed to settlement.
type Outcome struct {
	Match    *Match      `json:"match"`
	Winner   Side        `json:"winner"`
	Games    []GameScore `json:"games"`
	AgreedAt time.Time   `json:"agreed_at"`
}
