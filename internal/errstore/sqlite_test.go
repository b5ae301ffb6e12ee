package errstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndGet(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	msgs := []string{
		"Your file 'Prices' does not appear to be a valid CSV. Please check your file and try again.",
		"filename 'prices.csv' is already taken in this dataset",
	}
	require.NoError(t, store.RecordError(ctx, "job-1", msgs))
	require.NoError(t, store.RecordError(ctx, "job-2", []string{"other"}))

	records, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "job-1", records[0].JobID)
	require.Equal(t, msgs, records[0].Messages)
	require.False(t, records[0].CreatedAt.IsZero())
}

func TestGetUnknownJobIsEmpty(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Get(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, records)
}
