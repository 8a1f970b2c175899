package settlement

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/scrim-arena/internal/achievements"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
	"github.com/scrim-arena/internal/ledger"
)

// Store is the persistence settlement drives.
type Store interface {
	GrantBonusBudget(ctx context.Context, n int) (bool, error)
	RecordMatch(ctx context.Context, record domain.MatchRecord, participants []domain.Participant) error
	ApplyResult(ctx context.Context, playerID string, mode domain.Mode, win bool, goalsScored, goalsConceded int) (*domain.LeaderboardEntry, error)
}

// Mirror receives fresh standings so ranked reads see a settled match
// without waiting for the next sync cycle.
type Mirror interface {
	SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error
}

// RoleAllocator recomputes the leader designation for a mode.
type RoleAllocator interface {
	Recompute(ctx context.Context, mode domain.Mode) error
}

// Notifier receives user-facing settlement events.
type Notifier interface {
	MatchSettled(match *domain.Match, winner domain.Side, payout, bonus int64)
	AchievementUnlocked(playerID string, def achievements.Definition)
	CloseMatchSurface(match *domain.Match)
}

// Engine settles one agreed match: bonus lottery, payouts, persistence,
// leaderboard updates, achievement evaluation, role recomputation and
// session closure. Each step is independent and best-effort; a failure is
// logged and the remaining steps still run. Consensus guarantees Settle is
// invoked at most once per match.
type Engine struct {
	store        Store
	mirror       Mirror
	escrow       ledger.Escrow
	achievements *achievements.Engine
	allocator    RoleAllocator
	notifier     Notifier
	cfg          *config.MatchConfig
	logger       *slog.Logger

	// draw decides the bonus lottery; replaceable in tests.
	draw func() bool
	// sleep implements the closure grace delay; replaceable in tests.
	sleep func(time.Duration)
}

// NewEngine creates a settlement engine.
func NewEngine(
	store Store,
	mirror Mirror,
	escrow ledger.Escrow,
	achievementEngine *achievements.Engine,
	allocator RoleAllocator,
	notifier Notifier,
	cfg *config.MatchConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:        store,
		mirror:       mirror,
		escrow:       escrow,
		achievements: achievementEngine,
		allocator:    allocator,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		draw:         func() bool { return rand.Float64() < cfg.BonusProbability },
		sleep:        time.Sleep,
	}
}

// Settle runs the full settlement pipeline for an agreed outcome.
func (e *Engine) Settle(ctx context.Context, outcome domain.Outcome) {
	match := outcome.Match
	logger := e.logger.With("match_id", match.ID, "mode", match.Mode.String())

	winners := match.Roster(outcome.Winner)
	losers := match.Roster(outcome.Winner.Opponent())

	// Step 1: bonus lottery. The draw happens first; the budget is consumed
	// through a single conditional increment so concurrent settlements can
	// never push usage past the cap.
	bonus := e.bonusLottery(ctx, match.Stake, len(winners), logger)

	// Step 2: payouts.
	payout := match.Stake*2 + bonus
	for _, playerID := range winners {
		if err := e.escrow.Credit(ctx, playerID, payout); err != nil {
			logger.Error("failed to credit winner", "player_id", playerID, "amount", payout, "error", err)
		}
	}

	// Step 3: persistence.
	blueWins, orangeWins := domain.GamesWon(outcome.Games)
	record := domain.MatchRecord{
		MatchID:    match.ID,
		CreatedAt:  outcome.AgreedAt,
		Mode:       match.Mode,
		Stake:      match.Stake,
		Winner:     outcome.Winner,
		BlueWins:   blueWins,
		OrangeWins: orangeWins,
		Games:      outcome.Games,
		BestOf:     match.BestOf,
	}
	participants := make([]domain.Participant, 0, len(match.Players()))
	for _, playerID := range winners {
		participants = append(participants, domain.Participant{
			MatchID: match.ID, PlayerID: playerID,
			Side: outcome.Winner, Result: domain.ResultWin,
		})
	}
	for _, playerID := range losers {
		participants = append(participants, domain.Participant{
			MatchID: match.ID, PlayerID: playerID,
			Side: outcome.Winner.Opponent(), Result: domain.ResultLoss,
		})
	}
	if err := e.store.RecordMatch(ctx, record, participants); err != nil {
		logger.Error("failed to record match", "error", err)
	}

	blueGoals, orangeGoals := domain.SeriesGoals(outcome.Games)
	winnerGoals, loserGoals := blueGoals, orangeGoals
	if outcome.Winner == domain.SideOrange {
		winnerGoals, loserGoals = orangeGoals, blueGoals
	}
	for _, playerID := range winners {
		e.applyResult(ctx, playerID, match.Mode, true, winnerGoals, loserGoals, logger)
	}
	for _, playerID := range losers {
		e.applyResult(ctx, playerID, match.Mode, false, loserGoals, winnerGoals, logger)
	}

	e.notifier.MatchSettled(match, outcome.Winner, payout, bonus)

	// Step 4: achievements.
	for _, p := range participants {
		current := domain.HistoryEntry{
			MatchID:   match.ID,
			Timestamp: outcome.AgreedAt,
			Mode:      match.Mode,
			Result:    p.Result,
		}
		unlocked, err := e.achievements.Evaluate(ctx, p.PlayerID, current)
		if err != nil {
			logger.Error("achievement evaluation failed", "player_id", p.PlayerID, "error", err)
			continue
		}
		for _, def := range unlocked {
			e.notifier.AchievementUnlocked(p.PlayerID, def)
		}
	}

	// Step 5: leader roles.
	if err := e.allocator.Recompute(ctx, match.Mode); err != nil {
		logger.Error("leader role recomputation failed", "error", err)
	}

	// Step 6: closure after a short grace delay.
	e.sleep(e.cfg.CloseGraceDelay)
	e.notifier.CloseMatchSurface(match)

	logger.Info("match settled",
		"winner", string(outcome.Winner),
		"payout", payout,
		"bonus", bonus,
	)
}

// applyResult updates a player's counters and pushes the fresh entry to the
// standings mirror. The mirror write is best-effort; the sync worker repairs
// any miss.
func (e *Engine) applyResult(ctx context.Context, playerID string, mode domain.Mode, win bool, scored, conceded int, logger *slog.Logger) {
	entry, err := e.store.ApplyResult(ctx, playerID, mode, win, scored, conceded)
	if err != nil {
		logger.Error("failed to update leaderboard", "player_id", playerID, "error", err)
		return
	}
	if err := e.mirror.SetEntry(ctx, *entry); err != nil {
		logger.Warn("failed to mirror standing", "player_id", playerID, "error", err)
	}
}

// bonusLottery returns the bonus per winner, 0 when not awarded. The grant
// consumes one budget unit per winning player.
func (e *Engine) bonusLottery(ctx context.Context, stake int64, winnersCount int, logger *slog.Logger) int64 {
	if !e.draw() {
		return 0
	}
	granted, err := e.store.GrantBonusBudget(ctx, winnersCount)
	if err != nil {
		logger.Error("bonus budget grant failed", "error", err)
		return 0
	}
	if !granted {
		logger.Info("bonus budget exhausted, no bonus awarded")
		return 0
	}
	bonus := stake / 2
	logger.Info("bonus lottery won", "bonus", bonus, "winners", winnersCount)
	return bonus
}
