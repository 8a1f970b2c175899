package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-arena/internal/achievements"
	"github.com/scrim-arena/internal/domain"
)

type fakeMirror struct {
	topN   []string
	ranks  map[string]int64 // playerID -> zero-based rank
	counts map[domain.Mode]int64
	err    error
}

func (f *fakeMirror) GetTopN(ctx context.Context, mode domain.Mode, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.topN) {
		n = len(f.topN)
	}
	return f.topN[:n], nil
}

func (f *fakeMirror) GetRank(ctx context.Context, mode domain.Mode, playerID string) (int64, error) {
	if f.err != nil {
		return -1, f.err
	}
	rank, ok := f.ranks[playerID]
	if !ok {
		return -1, nil
	}
	return rank, nil
}

func (f *fakeMirror) GetCount(ctx context.Context, mode domain.Mode) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[mode], nil
}

type fakeStore struct {
	standings  []domain.Standing
	entries    map[string][]domain.LeaderboardEntry
	history    map[string][]domain.HistoryEntry
	unlocked   map[string]map[string]bool
	lastLimit  int
	lastOffset int
}

func (f *fakeStore) GetStandings(ctx context.Context, mode domain.Mode, limit, offset int) ([]domain.Standing, error) {
	f.lastLimit = limit
	f.lastOffset = offset
	return f.standings, nil
}

func (f *fakeStore) GetEntries(ctx context.Context, playerID string) ([]domain.LeaderboardEntry, error) {
	return f.entries[playerID], nil
}

func (f *fakeStore) GetHistory(ctx context.Context, playerID string, limit int) ([]domain.HistoryEntry, error) {
	return f.history[playerID], nil
}

func (f *fakeStore) GetUnlockedAchievements(ctx context.Context, playerID string) (map[string]bool, error) {
	return f.unlocked[playerID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetStandingsClampsPaging(t *testing.T) {
	store := &fakeStore{}
	svc := NewStandingsService(&fakeMirror{}, store, testLogger())

	_, err := svc.GetStandings(context.Background(), domain.Mode1v1, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 25, store.lastLimit)
	assert.Zero(t, store.lastOffset)

	_, err = svc.GetStandings(context.Background(), domain.Mode1v1, 500, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, store.lastLimit)
	assert.Equal(t, 10, store.lastOffset)
}

func TestGetStandingsRejectsInvalidMode(t *testing.T) {
	svc := NewStandingsService(&fakeMirror{}, &fakeStore{}, testLogger())

	_, err := svc.GetStandings(context.Background(), domain.Mode(9), 10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestGetTopPlayersPrefersMirror(t *testing.T) {
	mirror := &fakeMirror{topN: []string{"alice", "bob", "carol"}}
	store := &fakeStore{standings: []domain.Standing{{PlayerID: "stale"}}}
	svc := NewStandingsService(mirror, store, testLogger())

	players, err := svc.GetTopPlayers(context.Background(), domain.Mode1v1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, players)
}

func TestGetTopPlayersFallsBackToPostgres(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("connection refused")}
	store := &fakeStore{standings: []domain.Standing{
		{Rank: 1, PlayerID: "alice"},
		{Rank: 2, PlayerID: "bob"},
	}}
	svc := NewStandingsService(mirror, store, testLogger())

	players, err := svc.GetTopPlayers(context.Background(), domain.Mode1v1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, players)
}

func TestGetPlayerProfileAttachesLiveRanks(t *testing.T) {
	mirror := &fakeMirror{
		ranks:  map[string]int64{"alice": 0},
		counts: map[domain.Mode]int64{domain.Mode1v1: 42, domain.Mode2v2: 7},
	}
	store := &fakeStore{
		entries: map[string][]domain.LeaderboardEntry{
			"alice": {
				{PlayerID: "alice", Mode: domain.Mode1v1, Wins: 10, Losses: 2},
				{PlayerID: "alice", Mode: domain.Mode2v2, Wins: 1, Losses: 1},
			},
		},
		unlocked: map[string]map[string]bool{
			"alice": {"first_blood": true},
		},
	}
	svc := NewStandingsService(mirror, store, testLogger())

	profile, err := svc.GetPlayerProfile(context.Background(), "alice", 25)
	require.NoError(t, err)

	require.Len(t, profile.Entries, 2)
	assert.Equal(t, int64(1), profile.Entries[0].Rank, "zero-based mirror rank surfaces one-based")
	assert.Equal(t, int64(42), profile.Entries[0].Players)
	assert.Equal(t, int64(7), profile.Entries[1].Players)

	assert.Len(t, profile.Achievements, len(achievements.Catalog))
	unlocked := 0
	for _, status := range profile.Achievements {
		if status.Unlocked {
			unlocked++
			assert.Equal(t, "first_blood", status.ID)
		}
	}
	assert.Equal(t, 1, unlocked)
}

func TestGetPlayerProfileUnmirroredPlayerHasNoRank(t *testing.T) {
	mirror := &fakeMirror{counts: map[domain.Mode]int64{domain.Mode2v2: 5}}
	store := &fakeStore{
		entries: map[string][]domain.LeaderboardEntry{
			"bob": {{PlayerID: "bob", Mode: domain.Mode2v2, Wins: 1}},
		},
	}
	svc := NewStandingsService(mirror, store, testLogger())

	profile, err := svc.GetPlayerProfile(context.Background(), "bob", 25)
	require.NoError(t, err)
	require.Len(t, profile.Entries, 1)
	assert.Zero(t, profile.Entries[0].Rank)
	assert.Equal(t, int64(5), profile.Entries[0].Players)
}

func TestGetPlayerProfileSurvivesMirrorOutage(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("connection refused")}
	store := &fakeStore{
		entries: map[string][]domain.LeaderboardEntry{
			"bob": {{PlayerID: "bob", Mode: domain.Mode1v1, Wins: 3}},
		},
	}
	svc := NewStandingsService(mirror, store, testLogger())

	profile, err := svc.GetPlayerProfile(context.Background(), "bob", 25)
	require.NoError(t, err)
	require.Len(t, profile.Entries, 1)
	assert.Zero(t, profile.Entries[0].Rank)
	assert.Zero(t, profile.Entries[0].Players)
}
