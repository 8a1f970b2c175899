package session

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

	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/consensus"
	"github.com/scrim-arena/internal/domain"
	"github.com/scrim-arena/internal/rank"
)

type fakeEscrow struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   map[string]int
	credits  map[string]int
}

func newFakeEscrow(balance int64, players ...string) *fakeEscrow {
	f := &fakeEscrow{
		balances: make(map[string]int64),
		debits:   make(map[string]int),
		credits:  make(map[string]int),
	}
	for _, p := range players {
		f.balances[p] = balance
	}
	return f
}

func (f *fakeEscrow) GetBalance(ctx context.Context, playerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playerID], nil
}

func (f *fakeEscrow) Debit(ctx context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[playerID] -= amount
	f.debits[playerID]++
	return nil
}

func (f *fakeEscrow) Credit(ctx context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[playerID] += amount
	f.credits[playerID]++
	return nil
}

func (f *fakeEscrow) balance(playerID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playerID]
}

func (f *fakeEscrow) creditCount(playerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[playerID]
}

type fakeTiers struct {
	tiers map[string]string
}

func (f *fakeTiers) Tier(ctx context.Context, playerID string) (string, error) {
	return f.tiers[playerID], nil
}

type fakeSettler struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
	done     chan domain.Outcome
}

func newFakeSettler() *fakeSettler {
	return &fakeSettler{done: make(chan domain.Outcome, 1)}
}

func (f *fakeSettler) Settle(ctx context.Context, outcome domain.Outcome) {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, outcome)
	f.mu.Unlock()
	f.done <- outcome
}

func (f *fakeSettler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outcomes)
}

type fakeNotifier struct {
	mu     sync.Mutex
	states []domain.MatchState
}

func (f *fakeNotifier) MatchStateChanged(match *domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, match.State)
}

func (f *fakeNotifier) ReportResult(match *domain.Match, result *consensus.Result) {}

func (f *fakeNotifier) sawState(state domain.MatchState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.states {
		if s == state {
			return true
		}
	}
	return false
}

type fixture struct {
	manager  *Manager
	escrow   *fakeEscrow
	tiers    *fakeTiers
	settler  *fakeSettler
	notifier *fakeNotifier
	cfg      *config.MatchConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.MatchConfig{
		MinStake:       1,
		MaxStake:       10_000,
		SessionTimeout: time.Hour,
		HistoryLimit:   50,
	}
	rankCfg := &config.RankConfig{
		Tiers: []string{"Bronze", "Silver", "Gold", "GC1", "GC2"},
		Adjacency: map[string][]string{
			"GC1": {"GC2"},
			"GC2": {"GC1"},
		},
	}
	escrow := newFakeEscrow(1000, "alice", "bob", "carol", "dave")
	tiers := &fakeTiers{tiers: map[string]string{
		"alice": "Gold", "bob": "Gold", "carol": "Gold", "dave": "Gold",
	}}
	settler := newFakeSettler()
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		manager:  NewManager(escrow, rank.NewGate(rankCfg, tiers), settler, notifier, cfg, logger),
		escrow:   escrow,
		tiers:    tiers,
		settler:  settler,
		notifier: notifier,
		cfg:      cfg,
	}
}

func TestCreateDebitsCreatorStake(t *testing.T) {
	f := newFixture(t)

	match, err := f.manager.Create(context.Background(), "alice", domain.Mode1v1, 200, domain.BestOfOne)
	require.NoError(t, err)

	assert.Equal(t, domain.StateForming, match.State)
	assert.Equal(t, []string{"alice"}, match.Blue)
	assert.Equal(t, "Gold", match.RequiredTier)
	assert.Equal(t, int64(800), f.escrow.balance("alice"))
	assert.Equal(t, 1, f.manager.Count())
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "alice", domain.Mode(7), 100, domain.BestOfOne)
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	_, err = f.manager.Create(ctx, "alice", domain.Mode1v1, 0, domain.BestOfOne)
	assert.ErrorIs(t, err, domain.ErrInvalidStake)

	_, err = f.manager.Create(ctx, "alice", domain.Mode1v1, 20_000, domain.BestOfOne)
	assert.ErrorIs(t, err, domain.ErrInvalidStake)

	// No tier role at all
	_, err = f.manager.Create(ctx, "stranger", domain.Mode1v1, 100, domain.BestOfOne)
	assert.ErrorIs(t, err, domain.ErrRankMismatch)

	// Nothing was debited by rejected creates
	assert.Equal(t, int64(1000), f.escrow.balance("alice"))
	assert.Zero(t, f.manager.Count())
}

func TestCreateRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.escrow.balances["alice"] = 50

	_, err := f.manager.Create(context.Background(), "alice", domain.Mode1v1, 100, domain.BestOfOne)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestJoinValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 100, domain.BestOfOne)
	require.NoError(t, err)

	// Creator cannot join again
	err = f.manager.Join(ctx, match.ID, "alice", domain.SideOrange)
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	// Blue is full in 1v1
	err = f.manager.Join(ctx, match.ID, "bob", domain.SideBlue)
	assert.ErrorIs(t, err, domain.ErrSideFull)

	// Wrong tier
	f.tiers.tiers["bob"] = "GC1"
	err = f.manager.Join(ctx, match.ID, "bob", domain.SideOrange)
	assert.ErrorIs(t, err, domain.ErrRankMismatch)

	// Broke
	f.tiers.tiers["bob"] = "Gold"
	f.escrow.balances["bob"] = 10
	err = f.manager.Join(ctx, match.ID, "bob", domain.SideOrange)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// None of the rejections took any money
	assert.Equal(t, int64(10), f.escrow.balance("bob"))

	// Unknown match
	err = f.manager.Join(ctx, uuid.New(), "bob", domain.SideOrange)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestJoinAdjacentTierAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tiers.tiers["alice"] = "GC1"
	f.tiers.tiers["bob"] = "GC2"

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 100, domain.BestOfOne)
	require.NoError(t, err)

	err = f.manager.Join(ctx, match.ID, "bob", domain.SideOrange)
	assert.NoError(t, err)
}

func TestFullRosterStartsSettling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 100, domain.BestOfOne)
	require.NoError(t, err)
	require.NoError(t, f.manager.Join(ctx, match.ID, "bob", domain.SideOrange))

	got, err := f.manager.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettling, got.State)
	assert.True(t, f.notifier.sawState(domain.StateFull))

	// No more joins or leaves once play has begun
	err = f.manager.Join(ctx, match.ID, "carol", domain.SideOrange)
	assert.ErrorIs(t, err, domain.ErrMatchNotJoinable)
	err = f.manager.Leave(ctx, match.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrMatchNotJoinable)
}

func TestLeaveRefundsAndCancelsWhenEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode2v2, 100, domain.BestOfOne)
	require.NoError(t, err)
	require.NoError(t, f.manager.Join(ctx, match.ID, "bob", domain.SideOrange))

	require.NoError(t, f.manager.Leave(ctx, match.ID, "bob"))
	assert.Equal(t, int64(1000), f.escrow.balance("bob"))

	err = f.manager.Leave(ctx, match.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	require.NoError(t, f.manager.Leave(ctx, match.ID, "alice"))
	got, err := f.manager.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, got.State)
	assert.Equal(t, int64(1000), f.escrow.balance("alice"))
}

func TestTimeoutRefundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.cfg.SessionTimeout = 20 * time.Millisecond
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode2v2, 250, domain.BestOfOne)
	require.NoError(t, err)
	require.NoError(t, f.manager.Join(ctx, match.ID, "bob", domain.SideBlue))

	require.Eventually(t, func() bool {
		got, err := f.manager.Get(match.ID)
		return err == nil && got.State == domain.StateCancelled
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1000), f.escrow.balance("alice"))
	assert.Equal(t, int64(1000), f.escrow.balance("bob"))
	assert.Equal(t, 1, f.escrow.creditCount("alice"))
	assert.Equal(t, 1, f.escrow.creditCount("bob"))

	// No settlement, no record of any kind
	assert.Zero(t, f.settler.count())
}

func TestImmediateTimeoutStillRefundsCreator(t *testing.T) {
	f := newFixture(t)
	// Fires before Create even returns; the creator's escrow must already be
	// tracked by then.
	f.cfg.SessionTimeout = time.Nanosecond
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 300, domain.BestOfOne)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.manager.Get(match.ID)
		return err == nil && got.State == domain.StateCancelled
	}, time.Second, time.Millisecond)

	assert.Equal(t, int64(1000), f.escrow.balance("alice"))
	assert.Equal(t, 1, f.escrow.creditCount("alice"))
}

func TestAgreedReportHandsOffToSettlementOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 200, domain.BestOfOne)
	require.NoError(t, err)
	require.NoError(t, f.manager.Join(ctx, match.ID, "bob", domain.SideOrange))

	result, err := f.manager.SubmitReport(ctx, match.ID, "alice", "3:1")
	require.NoError(t, err)
	assert.Equal(t, consensus.StatusPending, result.Status)

	result, err = f.manager.SubmitReport(ctx, match.ID, "bob", "3:1")
	require.NoError(t, err)
	assert.Equal(t, consensus.StatusAgreed, result.Status)

	select {
	case outcome := <-f.settler.done:
		assert.Equal(t, domain.SideBlue, outcome.Winner)
		assert.Equal(t, int64(200), outcome.Match.Stake)
		assert.Equal(t, []domain.GameScore{{Blue: 3, Orange: 1}}, outcome.Games)
	case <-time.After(time.Second):
		t.Fatal("settlement was never invoked")
	}

	got, err := f.manager.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, got.State)

	// Further reports bounce off the settled session
	_, err = f.manager.SubmitReport(ctx, match.ID, "alice", "3:1")
	assert.ErrorIs(t, err, domain.ErrReportClosed)
	assert.Equal(t, 1, f.settler.count())
}

func TestConflictingReportsDoNotSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 100, domain.BestOfOne)
	require.NoError(t, err)
	require.NoError(t, f.manager.Join(ctx, match.ID, "bob", domain.SideOrange))

	_, err = f.manager.SubmitReport(ctx, match.ID, "alice", "3:1")
	require.NoError(t, err)
	result, err := f.manager.SubmitReport(ctx, match.ID, "bob", "0:5")
	require.NoError(t, err)
	assert.Equal(t, consensus.StatusConflict, result.Status)

	got, err := f.manager.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettling, got.State)
	assert.Zero(t, f.settler.count())
}

func TestReportRejectedWhileForming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	match, err := f.manager.Create(ctx, "alice", domain.Mode1v1, 100, domain.BestOfOne)
	require.NoError(t, err)

	_, err = f.manager.SubmitReport(ctx, match.ID, "alice", "3:1")
	assert.ErrorIs(t, err, domain.ErrReportClosed)
}
