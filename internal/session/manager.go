package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/consensus"
	"github.com/scrim-arena/internal/domain"
	"github.com/scrim-arena/internal/ledger"
	"github.com/scrim-arena/internal/rank"
)

// reapDelay keeps terminal sessions readable for a while before they are
// dropped from the live map.
const reapDelay = 10 * time.Minute

// Manager owns all live match sessions and routes platform events to them.
// Sessions run concurrently and independently; each serializes its own
// events.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	escrow   ledger.Escrow
	gate     *rank.Gate
	settler  Settler
	notifier Notifier
	cfg      *config.MatchConfig
	logger   *slog.Logger
}

// NewManager creates a session manager.
func NewManager(
	escrow ledger.Escrow,
	gate *rank.Gate,
	settler Settler,
	notifier Notifier,
	cfg *config.MatchConfig,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		escrow:   escrow,
		gate:     gate,
		settler:  settler,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Create opens a new match session. The creator becomes the blue captain,
// their current tier becomes the rank requirement, and their stake is
// debited immediately.
func (m *Manager) Create(ctx context.Context, creatorID string, mode domain.Mode, stake int64, bestOf domain.BestOf) (domain.Match, error) {
	if !mode.Valid() {
		return domain.Match{}, domain.ErrInvalidMode
	}
	if stake < m.cfg.MinStake || stake > m.cfg.MaxStake {
		return domain.Match{}, fmt.Errorf("%w: stake must be between %d and %d",
			domain.ErrInvalidStake, m.cfg.MinStake, m.cfg.MaxStake)
	}
	if bestOf != domain.BestOfOne && bestOf != domain.BestOfThree {
		return domain.Match{}, fmt.Errorf("%w: unknown series format", domain.ErrInvalidRequest)
	}

	tier, err := m.gate.TierOf(ctx, creatorID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("looking up creator rank: %w", err)
	}
	if tier == "" {
		return domain.Match{}, domain.ErrRankMismatch
	}

	balance, err := m.escrow.GetBalance(ctx, creatorID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("checking balance: %w", err)
	}
	if balance < stake {
		return domain.Match{}, domain.ErrInsufficientBalance
	}
	if err := m.escrow.Debit(ctx, creatorID, stake); err != nil {
		return domain.Match{}, fmt.Errorf("collecting stake: %w", err)
	}

	match := &domain.Match{
		ID:           uuid.New(),
		CreatedAt:    time.Now(),
		Mode:         mode,
		Stake:        stake,
		BestOf:       bestOf,
		Blue:         []string{creatorID},
		Orange:       nil,
		State:        domain.StateForming,
		RequiredTier: tier,
	}

	s := newSession(match, m.escrow, m.gate, m.settler, m.notifier, m.cfg, m.logger, m.scheduleReap)

	m.mu.Lock()
	m.sessions[match.ID] = s
	m.mu.Unlock()

	m.logger.Info("match created",
		"match_id", match.ID,
		"mode", mode.String(),
		"stake", stake,
		"creator", creatorID,
		"required_tier", tier,
	)
	snapshot := s.Match()
	m.notifier.MatchStateChanged(&snapshot)
	return snapshot, nil
}

// Get returns a snapshot of a match.
func (m *Manager) Get(id uuid.UUID) (domain.Match, error) {
	s, err := m.session(id)
	if err != nil {
		return domain.Match{}, err
	}
	return s.Match(), nil
}

// Join routes a join intent to its session.
func (m *Manager) Join(ctx context.Context, id uuid.UUID, playerID string, side domain.Side) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.Join(ctx, playerID, side)
}

// Leave routes a leave intent to its session.
func (m *Manager) Leave(ctx context.Context, id uuid.UUID, playerID string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.Leave(ctx, playerID)
}

// SubmitReport routes a captain's score report to its session.
func (m *Manager) SubmitReport(ctx context.Context, id uuid.UUID, playerID, raw string) (*consensus.Result, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return s.SubmitReport(ctx, playerID, raw)
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) session(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return s, nil
}

func (m *Manager) scheduleReap(id uuid.UUID) {
	time.AfterFunc(reapDelay, func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	})
}
