package consensus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-arena/internal/domain"
)

func TestParseReportSingleGame(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []domain.GameScore
	}{
		{"colon separator", "3:1", []domain.GameScore{{Blue: 3, Orange: 1}}},
		{"dash separator", "3-1", []domain.GameScore{{Blue: 3, Orange: 1}}},
		{"space separator", "3 1", []domain.GameScore{{Blue: 3, Orange: 1}}},
		{"surrounding whitespace", "  3:1  ", []domain.GameScore{{Blue: 3, Orange: 1}}},
		{"zero goals", "0:0", []domain.GameScore{{Blue: 0, Orange: 0}}},
		{"double digits", "10:12", []domain.GameScore{{Blue: 10, Orange: 12}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			games, err := ParseReport(tt.raw, domain.BestOfOne)
			require.NoError(t, err)
			assert.Equal(t, tt.want, games)
		})
	}
}

func TestParseReportBestOfThree(t *testing.T) {
	games, err := ParseReport("3:1, 2:4, 5:2", domain.BestOfThree)
	require.NoError(t, err)
	assert.Equal(t, []domain.GameScore{
		{Blue: 3, Orange: 1},
		{Blue: 2, Orange: 4},
		{Blue: 5, Orange: 2},
	}, games)

	// Mixed separators are tolerated
	games, err = ParseReport("3-1 2:0 1-0", domain.BestOfThree)
	require.NoError(t, err)
	assert.Len(t, games, 3)
}

func TestParseReportSweepNeedsNoThirdGame(t *testing.T) {
	games, err := ParseReport("3:1, 2:0", domain.BestOfThree)
	require.NoError(t, err)
	assert.Len(t, games, 2)
}

func TestParseReportSplitSeriesNeedsThirdGame(t *testing.T) {
	_, err := ParseReport("3:1, 0:2", domain.BestOfThree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrReportFormat))
}

func TestParseReportRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		best domain.BestOf
	}{
		{"empty", "", domain.BestOfOne},
		{"whitespace only", "   ", domain.BestOfOne},
		{"letters", "three one", domain.BestOfOne},
		{"odd token count", "3:1 2", domain.BestOfOne},
		{"too many games for single", "3:1, 2:0", domain.BestOfOne},
		{"one game for best-of-3", "3:1", domain.BestOfThree},
		{"four games for best-of-3", "1:0 1:0 0:1 0:1", domain.BestOfThree},
		{"negative marker abuse", "-:-", domain.BestOfOne},
		{"punctuation", "3;1!", domain.BestOfOne},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(tt.raw, tt.best)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrReportFormat), "should wrap report format error")
		})
	}
}
