package achievements

import (
	"time"

	"github.com/scrim-arena/internal/domain"
)

// Totals are lifetime counters taken from the leaderboard, which is reliable
// beyond the bounded history window.
type Totals struct {
	Games    int
	Wins     int
	Losses   int
	ModeWins map[domain.Mode]int
}

// Input is the immutable evaluation input for every predicate: the player's
// match history newest first (the current match at index 0) plus the current
// match itself and lifetime totals.
type Input struct {
	History []domain.HistoryEntry
	Current domain.HistoryEntry
	Totals  Totals
}

// Definition is one catalog entry. Predicates are pure functions of the
// input with no ordering dependency between them.
type Definition struct {
	ID          string
	Name        string
	Description string
	Predicate   func(Input) bool
}

// Catalog is the fixed achievement catalog, loaded at startup.
var Catalog = []Definition{
	{
		ID: "first_blood", Name: "🩸 First Blood",
		Description: "Win your first match.",
		Predicate:   func(in Input) bool { return in.Totals.Wins >= 1 },
	},
	{
		ID: "rookie", Name: "🐣 Rookie",
		Description: "Play your first match.",
		Predicate:   func(in Input) bool { return in.Totals.Games >= 1 },
	},
	{
		ID: "humble", Name: "📉 Humble Lesson",
		Description: "Lose your first match.",
		Predicate: func(in Input) bool {
			return in.Totals.Games == 1 && in.Current.Result == domain.ResultLoss
		},
	},
	{
		ID: "warmup", Name: "🤸 Warmup",
		Description: "Play 5 matches in any mode.",
		Predicate:   func(in Input) bool { return in.Totals.Games >= 5 },
	},
	{
		ID: "regular", Name: "🏠 Regular",
		Description: "Play 50 matches in total.",
		Predicate:   func(in Input) bool { return in.Totals.Games >= 50 },
	},
	{
		ID: "veteran", Name: "🎖️ Veteran",
		Description: "Play 100 matches in total.",
		Predicate:   func(in Input) bool { return in.Totals.Games >= 100 },
	},
	{
		ID: "legend", Name: "👑 Legend",
		Description: "Play 500 matches in total.",
		Predicate:   func(in Input) bool { return in.Totals.Games >= 500 },
	},
	{
		ID: "heating_up", Name: "🔥 Heating Up",
		Description: "Win 3 matches in a row.",
		Predicate:   winStreakAtLeast(3),
	},
	{
		ID: "on_fire", Name: "🔥🔥 On Fire",
		Description: "Win 5 matches in a row.",
		Predicate:   winStreakAtLeast(5),
	},
	{
		ID: "unstoppable", Name: "🚀 Unstoppable",
		Description: "Win 10 matches in a row.",
		Predicate:   winStreakAtLeast(10),
	},
	{
		ID: "breakthrough", Name: "🛡️ Breakthrough",
		Description: "Win a match after losing at least 3 in a row.",
		Predicate:   brokeLossStreak(3),
	},
	{
		ID: "lone_wolf", Name: "🐺 Lone Wolf",
		Description: "Win 10 matches in 1v1.",
		Predicate:   modeWinsAtLeast(domain.Mode1v1, 10),
	},
	{
		ID: "king_1v1", Name: "🤴 King of 1v1",
		Description: "Win 50 matches in 1v1.",
		Predicate:   modeWinsAtLeast(domain.Mode1v1, 50),
	},
	{
		ID: "perfect_duo", Name: "🤝 Perfect Duo",
		Description: "Win 10 matches in 2v2.",
		Predicate:   modeWinsAtLeast(domain.Mode2v2, 10),
	},
	{
		ID: "team_player", Name: "🦾 Team Player",
		Description: "Win 10 matches in 3v3.",
		Predicate:   modeWinsAtLeast(domain.Mode3v3, 10),
	},
	{
		ID: "versatile", Name: "🤹 Versatile",
		Description: "Win at least one match in every mode on the same day.",
		Predicate:   wonAllModesToday,
	},
	{
		ID: "no_life", Name: "🧟 No-Life",
		Description: "Play 10 matches in a single day.",
		Predicate:   playedTodayAtLeast(10),
	},
	{
		ID: "night_owl", Name: "🦉 Night Owl",
		Description: "Play a match between 2:00 and 5:00 in the morning.",
		Predicate: func(in Input) bool {
			h := in.Current.Timestamp.Hour()
			return h >= 2 && h < 5
		},
	},
	{
		ID: "weekend_warrior", Name: "📅 Weekend Warrior",
		Description: "Play at least 5 matches on a Saturday or Sunday.",
		Predicate:   weekendWarrior(5),
	},
}

// CatalogByID indexes the catalog for display lookups.
var CatalogByID = func() map[string]Definition {
	m := make(map[string]Definition, len(Catalog))
	for _, d := range Catalog {
		m[d.ID] = d
	}
	return m
}()

// winStreak counts consecutive wins from the most recent match backward
// until the first non-win.
func winStreak(history []domain.HistoryEntry) int {
	streak := 0
	for _, h := range history {
		if h.Result != domain.ResultWin {
			break
		}
		streak++
	}
	return streak
}

func winStreakAtLeast(n int) func(Input) bool {
	return func(in Input) bool {
		return in.Current.Result == domain.ResultWin && winStreak(in.History) >= n
	}
}

// brokeLossStreak: the current match is a win and the matches immediately
// before it were at least n straight losses.
func brokeLossStreak(n int) func(Input) bool {
	return func(in Input) bool {
		if in.Current.Result != domain.ResultWin || len(in.History) < 2 {
			return false
		}
		losses := 0
		for _, h := range in.History[1:] {
			if h.Result != domain.ResultLoss {
				break
			}
			losses++
		}
		return losses >= n
	}
}

func modeWinsAtLeast(mode domain.Mode, n int) func(Input) bool {
	return func(in Input) bool {
		return in.Totals.ModeWins[mode] >= n
	}
}

func sameDay(a, b domain.HistoryEntry) bool {
	ay, am, ad := a.Timestamp.Date()
	by, bm, bd := b.Timestamp.Date()
	return ay == by && am == bm && ad == bd
}

func wonAllModesToday(in Input) bool {
	won := make(map[domain.Mode]bool, 3)
	for _, h := range in.History {
		if h.Result == domain.ResultWin && sameDay(h, in.Current) {
			won[h.Mode] = true
		}
	}
	return won[domain.Mode1v1] && won[domain.Mode2v2] && won[domain.Mode3v3]
}

func playedTodayAtLeast(n int) func(Input) bool {
	return func(in Input) bool {
		count := 0
		for _, h := range in.History {
			if sameDay(h, in.Current) {
				count++
			}
		}
		return count >= n
	}
}

// weekendWarrior: the current match landed on a Saturday or Sunday and at
// least n of the player's matches in the same ISO week did too.
func weekendWarrior(n int) func(Input) bool {
	return func(in Input) bool {
		wd := in.Current.Timestamp.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			return false
		}
		year, week := in.Current.Timestamp.ISOWeek()
		count := 0
		for _, h := range in.History {
			hy, hw := h.Timestamp.ISOWeek()
			if hy != year || hw != week {
				continue
			}
			if d := h.Timestamp.Weekday(); d == time.Saturday || d == time.Sunday {
				count++
			}
		}
		return count >= n
	}
}
