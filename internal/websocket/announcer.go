package websocket

import (
	"time"

	"github.com/scrim-arena/internal/achievements"
	"github.com/scrim-arena/internal/consensus"
	"github.com/scrim-arena/internal/domain"
)

// Announcer adapts the hub to the notifier boundaries of the session and
// settlement packages: it is the event stream the chat surface consumes for
// embed refreshes and unlock announcements.
type Announcer struct {
	hub *Hub
}

// NewAnnouncer creates an announcer over the hub.
func NewAnnouncer(hub *Hub) *Announcer {
	return &Announcer{hub: hub}
}

// MatchStateChanged broadcasts a match snapshot after any lifecycle change.
func (a *Announcer) MatchStateChanged(match *domain.Match) {
	a.hub.Broadcast(&Message{
		Type:      MessageTypeMatchState,
		MatchID:   match.ID.String(),
		Data:      MatchStateUpdate{Match: match},
		Timestamp: time.Now(),
	})
}

// ReportResult broadcasts a consensus outcome: pending, agreement, conflict
// (with both reports side by side for arbitration) or tie.
func (a *Announcer) ReportResult(match *domain.Match, result *consensus.Result) {
	a.hub.Broadcast(&Message{
		Type:      MessageTypeReportResult,
		MatchID:   match.ID.String(),
		Data:      result,
		Timestamp: time.Now(),
	})
}

// MatchSettled broadcasts the final payout of a settled match.
func (a *Announcer) MatchSettled(match *domain.Match, winner domain.Side, payout, bonus int64) {
	a.hub.Broadcast(&Message{
		Type:    MessageTypeMatchState,
		MatchID: match.ID.String(),
		Data: map[string]interface{}{
			"match":  match,
			"winner": winner,
			"payout": payout,
			"bonus":  bonus,
		},
		Timestamp: time.Now(),
	})
}

// AchievementUnlocked announces a new unlock to every connected client.
func (a *Announcer) AchievementUnlocked(playerID string, def achievements.Definition) {
	a.hub.Broadcast(&Message{
		Type: MessageTypeAchievementUnlocked,
		Data: AchievementAnnouncement{
			PlayerID:    playerID,
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
		},
		Timestamp: time.Now(),
	})
}

// CloseMatchSurface tells the chat surface to lock the match's discussion
// thread.
func (a *Announcer) CloseMatchSurface(match *domain.Match) {
	a.hub.Broadcast(&Message{
		Type:      MessageTypeMatchState,
		MatchID:   match.ID.String(),
		Data:      map[string]interface{}{"match": match, "closed": true},
		Timestamp: time.Now(),
	})
}
