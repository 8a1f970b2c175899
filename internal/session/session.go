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

// Settler receives the agreed outcome exactly once.
type Settler interface {
	Settle(ctx context.Context, outcome domain.Outcome)
}

// Notifier receives user-facing session events.
type Notifier interface {
	MatchStateChanged(match *domain.Match)
	ReportResult(match *domain.Match, result *consensus.Result)
}

// Session owns one match's lifecycle: team assembly, stake collection,
// timeout and cancellation, and the handoff to settlement. All events for a
// session are serialized by its mutex, so joins, leaves and reports apply in
// arrival order.
type Session struct {
	mu       sync.Mutex
	match    *domain.Match
	protocol *consensus.Protocol

	escrow   ledger.Escrow
	gate     *rank.Gate
	settler  Settler
	notifier Notifier
	cfg      *config.MatchConfig
	logger   *slog.Logger

	// paid tracks players whose stake is currently escrowed; a refund
	// removes the player so it can only happen once.
	paid  map[string]bool
	timer *time.Timer

	onTerminal func(id uuid.UUID)
}

func newSession(
	match *domain.Match,
	escrow ledger.Escrow,
	gate *rank.Gate,
	settler Settler,
	notifier Notifier,
	cfg *config.MatchConfig,
	logger *slog.Logger,
	onTerminal func(id uuid.UUID),
) *Session {
	s := &Session{
		match:      match,
		protocol:   consensus.NewProtocol(match),
		escrow:     escrow,
		gate:       gate,
		settler:    settler,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With("match_id", match.ID, "mode", match.Mode.String()),
		paid:       make(map[string]bool),
		onTerminal: onTerminal,
	}
	// Everyone rostered at construction has already escrowed their stake.
	// Seeded before the timer is armed so a timeout always refunds them.
	for _, playerID := range match.Players() {
		s.paid[playerID] = true
	}
	s.timer = time.AfterFunc(cfg.SessionTimeout, s.timeout)
	return s
}

// Match returns a snapshot of the match.
func (s *Session) Match() domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// snapshot copies the match under the caller's lock.
func (s *Session) snapshot() domain.Match {
	m := *s.match
	m.Blue = append([]string(nil), s.match.Blue...)
	m.Orange = append([]string(nil), s.match.Orange...)
	return m
}

// Join adds a player to a side. The stake is debited immediately; a rejected
// join mutates nothing.
func (s *Session) Join(ctx context.Context, playerID string, side domain.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.match.State != domain.StateForming {
		return domain.ErrMatchNotJoinable
	}
	if !side.Valid() {
		return fmt.Errorf("%w: unknown side", domain.ErrInvalidRequest)
	}
	if s.match.SideOf(playerID) != "" {
		return domain.ErrAlreadyJoined
	}
	if len(s.match.Roster(side)) >= int(s.match.Mode) {
		return domain.ErrSideFull
	}

	allowed, err := s.gate.Allows(ctx, s.match.RequiredTier, playerID)
	if err != nil {
		s.logger.Warn("rank lookup failed", "player_id", playerID, "error", err)
		return fmt.Errorf("checking rank: %w", err)
	}
	if !allowed {
		return domain.ErrRankMismatch
	}

	balance, err := s.escrow.GetBalance(ctx, playerID)
	if err != nil {
		s.logger.Warn("balance lookup failed", "player_id", playerID, "error", err)
		return fmt.Errorf("checking balance: %w", err)
	}
	if balance < s.match.Stake {
		return domain.ErrInsufficientBalance
	}

	if err := s.escrow.Debit(ctx, playerID, s.match.Stake); err != nil {
		s.logger.Error("stake debit failed", "player_id", playerID, "error", err)
		return fmt.Errorf("collecting stake: %w", err)
	}
	s.paid[playerID] = true

	if side == domain.SideBlue {
		s.match.Blue = append(s.match.Blue, playerID)
	} else {
		s.match.Orange = append(s.match.Orange, playerID)
	}
	s.logger.Info("player joined", "player_id", playerID, "side", string(side))
	s.notifyLocked()

	if len(s.match.Blue) == int(s.match.Mode) && len(s.match.Orange) == int(s.match.Mode) {
		s.startLocked()
	}
	return nil
}

// startLocked moves Forming -> Full -> Settling once both rosters are
// complete, stopping the inactivity timer. Once Settling, the match always
// resolves through consensus.
func (s *Session) startLocked() {
	s.timer.Stop()
	s.match.State = domain.StateFull
	s.notifyLocked()
	s.match.State = domain.StateSettling
	s.logger.Info("match full, awaiting result reports")
	s.notifyLocked()
}

// Leave removes a player from a Forming session and refunds their stake.
func (s *Session) Leave(ctx context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.match.State != domain.StateForming {
		return domain.ErrMatchNotJoinable
	}
	side := s.match.SideOf(playerID)
	if side == "" {
		return domain.ErrNotParticipant
	}

	s.refundLocked(ctx, playerID)
	s.match.Blue = remove(s.match.Blue, playerID)
	s.match.Orange = remove(s.match.Orange, playerID)
	s.logger.Info("player left", "player_id", playerID)
	s.notifyLocked()

	if len(s.match.Players()) == 0 {
		s.cancelLocked(ctx, "all players left")
	}
	return nil
}

// SubmitReport routes a captain's raw score text through consensus and, on
// agreement, hands off to settlement exactly once.
func (s *Session) SubmitReport(ctx context.Context, playerID, raw string) (*consensus.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.match.State != domain.StateSettling {
		return nil, domain.ErrReportClosed
	}

	result, err := s.protocol.Submit(playerID, raw, time.Now())
	if err != nil {
		return nil, err
	}

	if result.Status == consensus.StatusAgreed {
		s.match.State = domain.StateSettled
		outcome := *result.Outcome
		snapshot := s.snapshot()
		outcome.Match = &snapshot
		go s.settler.Settle(context.WithoutCancel(ctx), outcome)
		s.terminalLocked()
	}

	s.notifier.ReportResult(s.match, result)
	if result.Status == consensus.StatusAgreed {
		s.notifyLocked()
	}
	return result, nil
}

// timeout fires when the roster does not fill within the session window.
func (s *Session) timeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.match.State != domain.StateForming {
		return
	}
	s.logger.Info("session timed out")
	s.cancelLocked(context.Background(), "timeout")
}

// cancelLocked cancels a Forming session and refunds every escrowed stake
// exactly once.
func (s *Session) cancelLocked(ctx context.Context, reason string) {
	s.timer.Stop()
	for playerID := range s.paid {
		s.refundLocked(ctx, playerID)
	}
	s.match.State = domain.StateCancelled
	s.logger.Info("session cancelled", "reason", reason)
	s.notifyLocked()
	s.terminalLocked()
}

// refundLocked returns a player's stake. Deleting from paid first makes the
// refund single-shot even if a later path revisits the player.
func (s *Session) refundLocked(ctx context.Context, playerID string) {
	if !s.paid[playerID] {
		return
	}
	delete(s.paid, playerID)
	if err := s.escrow.Credit(ctx, playerID, s.match.Stake); err != nil {
		s.logger.Error("stake refund failed", "player_id", playerID, "error", err)
	}
}

func (s *Session) notifyLocked() {
	snapshot := s.snapshot()
	s.notifier.MatchStateChanged(&snapshot)
}

func (s *Session) terminalLocked() {
	if s.onTerminal != nil {
		s.onTerminal(s.match.ID)
	}
}

func remove(roster []string, playerID string) []string {
	out := roster[:0]
	for _, p := range roster {
		if p != playerID {
			out = append(out, p)
		}
	}
	return out
}
