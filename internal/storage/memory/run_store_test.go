package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

func TestRunStoreRecordAndGet(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	rec := profile.RunRecord{
		ID:            "run-1",
		StartedAt:     time.Unix(1700000000, 0).UTC(),
		Outcome:       profile.OutcomeAborted,
		FailedSources: []profile.SourceFailure{{Source: profile.SourceJoke, Kind: profile.FailureStatus}},
	}
	require.NoError(t, store.RecordRun(ctx, rec))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got.FailedSources[0].Source = profile.SourcePet
	again, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, profile.SourceJoke, again.FailedSources[0].Source)
}

func TestRunStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore().GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, profile.ErrRunNotFound)
}

func TestRunStoreRequiresID(t *testing.T) {
	t.Parallel()

	require.Error(t, NewRunStore().RecordRun(context.Background(), profile.RunRecord{}))
}

func TestRunStoreListMostRecentFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordRun(ctx, profile.RunRecord{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
