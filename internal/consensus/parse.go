package consensus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scrim-arena/internal/domain"
)

var (
	allowedChars = regexp.MustCompile(`^[0-9:\-\s,;]+$`)
	numberToken  = regexp.MustCompile(`\d+`)
)

// ParseReport turns a captain's raw submission into an ordered game-score
// sequence. Pairs may be written with ":", "-" or a space between the two
// numbers ("3:1", "3-1 2:0", "3 1, 2 0"). A parse failure never mutates
// protocol state; the returned error wraps domain.ErrReportFormat with
// enough detail for the captain to correct and resubmit.
func ParseReport(raw string, bestOf domain.BestOf) ([]domain.GameScore, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty report", domain.ErrReportFormat)
	}
	if !allowedChars.MatchString(trimmed) {
		return nil, fmt.Errorf("%w: only digits and ':', '-', spaces are allowed", domain.ErrReportFormat)
	}

	tokens := numberToken.FindAllString(trimmed, -1)
	if len(tokens) == 0 || len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: expected pairs of goal counts like 3:1", domain.ErrReportFormat)
	}

	games := make([]domain.GameScore, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		blue, err := strconv.Atoi(tokens[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid goal count", domain.ErrReportFormat, tokens[i])
		}
		orange, err := strconv.Atoi(tokens[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid goal count", domain.ErrReportFormat, tokens[i+1])
		}
		games = append(games, domain.GameScore{Blue: blue, Orange: orange})
	}

	if err := validateSeries(games, bestOf); err != nil {
		return nil, err
	}
	return games, nil
}

// validateSeries checks the game count against the series format. A missing
// third game in a best-of-3 is valid only when one side already has two
// game wins.
func validateSeries(games []domain.GameScore, bestOf domain.BestOf) error {
	switch bestOf {
	case domain.BestOfThree:
		switch len(games) {
		case 3:
			return nil
		case 2:
			blue, orange := domain.GamesWon(games)
			if blue >= 2 || orange >= 2 {
				return nil
			}
			return fmt.Errorf("%w: best-of-3 needs a third game unless one side won the first two", domain.ErrReportFormat)
		default:
			return fmt.Errorf("%w: best-of-3 takes two or three game scores, got %d", domain.ErrReportFormat, len(games))
		}
	default:
		if len(games) != 1 {
			return fmt.Errorf("%w: single-game match takes exactly one score pair, got %d", domain.ErrReportFormat, len(games))
		}
		return nil
	}
}
