package domain

import "errors"

// Domain errors
var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotJoinable    = errors.New("match is no longer accepting players")
	ErrAlreadyJoined       = errors.New("player is already in this match")
	ErrSideFull            = errors.New("that side is already full")
	ErrRankMismatch        = errors.New("player rank does not meet the match requirement")
	ErrInsufficientBalance = errors.New("balance is below the stake")
	ErrNotParticipant      = errors.New("player is not in this match")
	ErrNotCaptain          = errors.New("only the team captain may submit a result")
	ErrReportFormat        = errors.New("score report format is invalid")
	ErrReportClosed        = errors.New("match is not accepting score reports")
	ErrInvalidStake        = errors.New("invalid stake amount")
	ErrInvalidMode         = errors.New("invalid match mode")
	ErrInvalidRequest      = errors.New("invalid request")
)

// IsUserError reports whether an error should be surfaced to the acting user
// as correctable input rather than logged as a system failure.
func IsUserError(err error) bool {
	for _, e := range []error{
		ErrMatchNotJoinable, ErrAlreadyJoined, ErrSideFull, ErrRankMismatch,
		ErrInsufficientBalance, ErrNotParticipant, ErrNotCaptain,
		ErrReportFormat, ErrReportClosed, ErrInvalidStake, ErrInvalidMode,
		ErrInvalidRequest,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
