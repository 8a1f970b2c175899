package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/scrim-arena/internal/domain"
)

// Status is the outcome of one report submission.
type Status string

const (
	// StatusPending means the other side has not reported yet.
	StatusPending Status = "pending"
	// StatusAgreed means both reports matched and settlement may proceed.
	StatusAgreed Status = "agreed"
	// StatusConflict means the reports disagreed; both were cleared and the
	// next submission from either captain restarts from a clean slate.
	StatusConflict Status = "conflict"
	// StatusTie means both reports matched but no side won strictly more
	// games; both were cleared and the captains must resubmit.
	StatusTie Status = "tie"
)

// Result describes what a submission led to.
type Result struct {
	Status  Status
	Outcome *domain.Outcome
	// Blue and Orange carry both submitted reports for human arbitration
	// when Status is StatusConflict.
	Blue   *domain.ScoreReport
	Orange *domain.ScoreReport
}

// Protocol reconciles the two captains' score reports for one match into a
// single agreed outcome or a conflict. All submissions for a match are
// serialized by the protocol's own mutex.
type Protocol struct {
	mu    sync.Mutex
	match *domain.Match
	live  map[domain.Side]*domain.ScoreReport
	done  bool
}

// NewProtocol creates the consensus instance for a match.
func NewProtocol(match *domain.Match) *Protocol {
	return &Protocol{
		match: match,
		live:  make(map[domain.Side]*domain.ScoreReport),
	}
}

// Submit records one captain's report and reconciles if both sides have
// reported. Only the captain (roster index 0) of either side may submit.
// After an agreement the protocol is inert and further reports are rejected.
func (p *Protocol) Submit(playerID, raw string, now time.Time) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return nil, domain.ErrReportClosed
	}

	side := p.sideOfCaptain(playerID)
	if side == "" {
		if p.match.SideOf(playerID) == "" {
			return nil, domain.ErrNotParticipant
		}
		return nil, domain.ErrNotCaptain
	}

	// Parse before touching state: malformed input never consumes or clears
	// the other side's existing report.
	games, err := ParseReport(raw, p.match.BestOf)
	if err != nil {
		return nil, err
	}

	p.live[side] = &domain.ScoreReport{
		Side:        side,
		SubmittedBy: playerID,
		Games:       games,
		SubmittedAt: now,
	}

	blue, orange := p.live[domain.SideBlue], p.live[domain.SideOrange]
	if blue == nil || orange == nil {
		return &Result{Status: StatusPending}, nil
	}

	if !blue.Equal(*orange) {
		// Disagreement is a protocol outcome, not an error: surface both
		// reports and restart from a clean slate.
		result := &Result{Status: StatusConflict, Blue: blue, Orange: orange}
		p.clear()
		return result, nil
	}

	blueWins, orangeWins := domain.GamesWon(blue.Games)
	if blueWins == orangeWins {
		// Should not occur under a valid best-of format, but drawn games can
		// produce it; resubmission is required rather than silently picking
		// a winner.
		p.clear()
		return &Result{Status: StatusTie}, nil
	}

	winner := domain.SideBlue
	if orangeWins > blueWins {
		winner = domain.SideOrange
	}

	p.done = true
	return &Result{
		Status: StatusAgreed,
		Outcome: &domain.Outcome{
			Match:    p.match,
			Winner:   winner,
			Games:    blue.Games,
			AgreedAt: now,
		},
	}, nil
}

// LiveReport returns a copy of a side's current unconfirmed report, or nil.
func (p *Protocol) LiveReport(side domain.Side) *domain.ScoreReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.live[side]; r != nil {
		cp := *r
		return &cp
	}
	return nil
}

// Done reports whether the protocol has reached agreement.
func (p *Protocol) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Protocol) clear() {
	p.live = make(map[domain.Side]*domain.ScoreReport)
}

func (p *Protocol) sideOfCaptain(playerID string) domain.Side {
	for _, side := range []domain.Side{domain.SideBlue, domain.SideOrange} {
		if p.match.Captain(side) == playerID {
			return side
		}
	}
	return ""
}

// ConflictMessage renders both reports side by side for arbitration.
func ConflictMessage(blue, orange *domain.ScoreReport) string {
	return fmt.Sprintf("reports disagree: blue says %v, orange says %v", blue.Games, orange.Games)
}
