package settlement

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-arena/internal/achievements"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
)

type fakeStore struct {
	mu          sync.Mutex
	budgetUsed  int
	budgetCap   int
	records     []domain.MatchRecord
	results     map[string]int      // playerID -> applied result count
	goals       map[string][2]int   // playerID -> {scored, conceded}
	histories   map[string][]domain.HistoryEntry
	unlocked    map[string]map[string]bool
	entries     map[string][]domain.LeaderboardEntry
	recordErr   error
	grantCalled int
}

func newFakeStore(budgetCap int) *fakeStore {
	return &fakeStore{
		budgetCap: budgetCap,
		results:   make(map[string]int),
		goals:     make(map[string][2]int),
		histories: make(map[string][]domain.HistoryEntry),
		unlocked:  make(map[string]map[string]bool),
		entries:   make(map[string][]domain.LeaderboardEntry),
	}
}

func (f *fakeStore) GrantBonusBudget(ctx context.Context, n int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalled++
	if f.budgetUsed+n > f.budgetCap {
		return false, nil
	}
	f.budgetUsed += n
	return true, nil
}

func (f *fakeStore) RecordMatch(ctx context.Context, record domain.MatchRecord, participants []domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, record)
	for _, p := range participants {
		f.histories[p.PlayerID] = append([]domain.HistoryEntry{{
			MatchID:   p.MatchID,
			Timestamp: record.CreatedAt,
			Mode:      record.Mode,
			Result:    p.Result,
		}}, f.histories[p.PlayerID]...)
	}
	return nil
}

func (f *fakeStore) ApplyResult(ctx context.Context, playerID string, mode domain.Mode, win bool, goalsScored, goalsConceded int) (*domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[playerID]++
	f.goals[playerID] = [2]int{goalsScored, goalsConceded}
	entry := &domain.LeaderboardEntry{
		PlayerID:      playerID,
		Mode:          mode,
		GoalsScored:   goalsScored,
		GoalsConceded: goalsConceded,
	}
	if win {
		entry.Wins = 1
	} else {
		entry.Losses = 1
	}
	return entry, nil
}

func (f *fakeStore) GetEntries(ctx context.Context, playerID string) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[playerID], nil
}

func (f *fakeStore) GetHistory(ctx context.Context, playerID string, limit int) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[playerID], nil
}

func (f *fakeStore) GetUnlockedAchievements(ctx context.Context, playerID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool)
	for k, v := range f.unlocked[playerID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UnlockAchievement(ctx context.Context, playerID, achievementID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlocked[playerID] == nil {
		f.unlocked[playerID] = make(map[string]bool)
	}
	if f.unlocked[playerID][achievementID] {
		return false, nil
	}
	f.unlocked[playerID][achievementID] = true
	return true, nil
}

type fakeMirror struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
}

func (f *fakeMirror) SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeEscrow struct {
	mu      sync.Mutex
	credits map[string]int64
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{credits: make(map[string]int64)}
}

func (f *fakeEscrow) Debit(ctx context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[playerID] -= amount
	return nil
}

func (f *fakeEscrow) Credit(ctx context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[playerID] += amount
	return nil
}

func (f *fakeEscrow) GetBalance(ctx context.Context, playerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[playerID], nil
}

type fakeAllocator struct {
	mu    sync.Mutex
	modes []domain.Mode
}

func (f *fakeAllocator) Recompute(ctx context.Context, mode domain.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	settled  int
	unlocked []string
	closed   int
	payout   int64
	bonus    int64
}

func (f *fakeNotifier) MatchSettled(match *domain.Match, winner domain.Side, payout, bonus int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
	f.payout = payout
	f.bonus = bonus
}

func (f *fakeNotifier) AchievementUnlocked(playerID string, def achievements.Definition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked = append(f.unlocked, playerID+"/"+def.ID)
}

func (f *fakeNotifier) CloseMatchSurface(match *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMatchConfig() *config.MatchConfig {
	return &config.MatchConfig{
		MinStake:         1,
		MaxStake:         1_000_000,
		SessionTimeout:   30 * time.Minute,
		CloseGraceDelay:  time.Millisecond,
		BonusCap:         50,
		BonusProbability: 0.10,
		HistoryLimit:     50,
	}
}

func newTestEngine(store *fakeStore, escrow *fakeEscrow, allocator *fakeAllocator, notifier *fakeNotifier, win bool) *Engine {
	e := NewEngine(
		store,
		&fakeMirror{},
		escrow,
		achievements.NewEngine(store, 50, testLogger()),
		allocator,
		notifier,
		testMatchConfig(),
		testLogger(),
	)
	e.draw = func() bool { return win }
	e.sleep = func(time.Duration) {}
	return e
}

func twoPlayerOutcome(stake int64) domain.Outcome {
	match := &domain.Match{
		ID:     uuid.New(),
		Mode:   domain.Mode1v1,
		Stake:  stake,
		BestOf: domain.BestOfOne,
		Blue:   []string{"alice"},
		Orange: []string{"bob"},
		State:  domain.StateSettled,
	}
	return domain.Outcome{
		Match:    match,
		Winner:   domain.SideBlue,
		Games:    []domain.GameScore{{Blue: 3, Orange: 1}},
		AgreedAt: time.Date(2025, time.March, 12, 15, 0, 0, 0, time.UTC),
	}
}

func TestSettlePaysDoubleStakeWithoutBonus(t *testing.T) {
	store := newFakeStore(50)
	escrow := newFakeEscrow()
	allocator := &fakeAllocator{}
	notifier := &fakeNotifier{}

	e := newTestEngine(store, escrow, allocator, notifier, false)
	e.Settle(context.Background(), twoPlayerOutcome(200))

	assert.Equal(t, int64(400), escrow.credits["alice"])
	assert.Zero(t, escrow.credits["bob"])
	assert.Zero(t, store.grantCalled, "losing the draw must not touch the budget")
	assert.Equal(t, int64(400), notifier.payout)
	assert.Zero(t, notifier.bonus)

	assert.Equal(t, [2]int{3, 1}, store.goals["alice"], "winner records goals for and against")
	assert.Equal(t, [2]int{1, 3}, store.goals["bob"], "loser records the mirrored goals")
}

func TestSettleBonusIsHalfStake(t *testing.T) {
	store := newFakeStore(50)
	escrow := newFakeEscrow()
	notifier := &fakeNotifier{}

	e := newTestEngine(store, escrow, &fakeAllocator{}, notifier, true)
	e.Settle(context.Background(), twoPlayerOutcome(201))

	// floor(201/2) = 100 on top of 402
	assert.Equal(t, int64(502), escrow.credits["alice"])
	assert.Equal(t, int64(100), notifier.bonus)
	assert.Equal(t, 1, store.budgetUsed)
}

func TestSettleBonusBudgetConsumedPerWinner(t *testing.T) {
	store := newFakeStore(50)
	escrow := newFakeEscrow()

	match := &domain.Match{
		ID:     uuid.New(),
		Mode:   domain.Mode3v3,
		Stake:  100,
		BestOf: domain.BestOfOne,
		Blue:   []string{"a1", "a2", "a3"},
		Orange: []string{"b1", "b2", "b3"},
	}
	outcome := domain.Outcome{
		Match:    match,
		Winner:   domain.SideOrange,
		Games:    []domain.GameScore{{Blue: 1, Orange: 4}},
		AgreedAt: time.Now(),
	}

	e := newTestEngine(store, escrow, &fakeAllocator{}, &fakeNotifier{}, true)
	e.Settle(context.Background(), outcome)

	assert.Equal(t, 3, store.budgetUsed)
	for _, p := range []string{"b1", "b2", "b3"} {
		assert.Equal(t, int64(250), escrow.credits[p])
	}
	for _, p := range []string{"a1", "a2", "a3"} {
		assert.Zero(t, escrow.credits[p])
	}
}

func TestSettleBonusCapNeverExceeded(t *testing.T) {
	store := newFakeStore(5)
	escrow := newFakeEscrow()

	// Every settlement wins the draw; only the first grant fits the budget.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := newTestEngine(store, escrow, &fakeAllocator{}, &fakeNotifier{}, true)
			match := &domain.Match{
				ID:     uuid.New(),
				Mode:   domain.Mode3v3,
				Stake:  100,
				BestOf: domain.BestOfOne,
				Blue:   []string{uuid.NewString(), uuid.NewString(), uuid.NewString()},
				Orange: []string{uuid.NewString(), uuid.NewString(), uuid.NewString()},
			}
			e.Settle(context.Background(), domain.Outcome{
				Match:    match,
				Winner:   domain.SideBlue,
				Games:    []domain.GameScore{{Blue: 2, Orange: 0}},
				AgreedAt: time.Now(),
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, store.budgetUsed, 5)
	assert.Equal(t, 3, store.budgetUsed, "only one 3-winner grant fits a budget of 5")
}

func TestSettleRecordsMatchAndResults(t *testing.T) {
	store := newFakeStore(50)
	allocator := &fakeAllocator{}
	notifier := &fakeNotifier{}

	e := newTestEngine(store, newFakeEscrow(), allocator, notifier, false)
	mirror := &fakeMirror{}
	e.mirror = mirror
	e.Settle(context.Background(), twoPlayerOutcome(100))

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, domain.SideBlue, record.Winner)
	assert.Equal(t, 1, record.BlueWins)
	assert.Equal(t, 0, record.OrangeWins)

	assert.Equal(t, 1, store.results["alice"])
	assert.Equal(t, 1, store.results["bob"])

	// Series goal aggregates land on both sides of the ledger.
	assert.Equal(t, [2]int{3, 1}, store.goals["alice"])
	assert.Equal(t, [2]int{1, 3}, store.goals["bob"])

	// Fresh counters are pushed straight to the standings mirror.
	require.Len(t, mirror.entries, 2)
	assert.Equal(t, "alice", mirror.entries[0].PlayerID)
	assert.Equal(t, 1, mirror.entries[0].Wins)
	assert.Equal(t, "bob", mirror.entries[1].PlayerID)
	assert.Equal(t, 1, mirror.entries[1].Losses)

	assert.Equal(t, []domain.Mode{domain.Mode1v1}, allocator.modes)
	assert.Equal(t, 1, notifier.settled)
	assert.Equal(t, 1, notifier.closed)
}

func TestSettleContinuesPastPersistenceFailure(t *testing.T) {
	store := newFakeStore(50)
	store.recordErr = context.DeadlineExceeded
	allocator := &fakeAllocator{}
	notifier := &fakeNotifier{}
	escrow := newFakeEscrow()

	e := newTestEngine(store, escrow, allocator, notifier, false)
	e.Settle(context.Background(), twoPlayerOutcome(100))

	// The record failed but payouts, leaderboard updates and closure ran.
	assert.Empty(t, store.records)
	assert.Equal(t, int64(200), escrow.credits["alice"])
	assert.Equal(t, 1, store.results["alice"])
	assert.Len(t, allocator.modes, 1)
	assert.Equal(t, 1, notifier.closed)
}

func TestSettleAnnouncesAchievements(t *testing.T) {
	store := newFakeStore(50)
	store.entries["alice"] = []domain.LeaderboardEntry{
		{PlayerID: "alice", Mode: domain.Mode1v1, Wins: 1},
	}
	store.entries["bob"] = []domain.LeaderboardEntry{
		{PlayerID: "bob", Mode: domain.Mode1v1, Losses: 1},
	}
	notifier := &fakeNotifier{}

	e := newTestEngine(store, newFakeEscrow(), &fakeAllocator{}, notifier, false)
	e.Settle(context.Background(), twoPlayerOutcome(100))

	assert.Contains(t, notifier.unlocked, "alice/first_blood")
	assert.Contains(t, notifier.unlocked, "bob/humble")
}
