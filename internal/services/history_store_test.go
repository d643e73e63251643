package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/tripwise/pkg/models"
)

func historyRecords(userID string, n int) []models.HistoryRecord {
	requestID := uuid.New()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	records := make([]models.HistoryRecord, n)
	for i := range records {
		records[i] = models.HistoryRecord{
			ID:          uuid.New(),
			RequestID:   requestID,
			Timestamp:   now,
			UserID:      userID,
			ItemID:      "item-" + string(rune('a'+i)),
			Destination: "Somewhere",
			Score:       1 - float64(i)*0.1,
			Rank:        i + 1,
		}
	}
	return records
}

func TestPostgresHistoryStore_Append(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewPostgresHistoryStore(mockDB, newTestLogger())
	records := historyRecords("u1", 2)

	t.Run("multi-row insert", func(t *testing.T) {
		args := make([]interface{}, 0, 16)
		for _, r := range records {
			args = append(args, r.ID, r.RequestID, r.UserID, r.ItemID, r.Destination, r.Score, r.Rank, r.Timestamp)
		}
		mockDB.ExpectExec("INSERT INTO recommendation_history").
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))

		require.NoError(t, store.Append(context.Background(), records))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, store.Append(context.Background(), nil))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		mockDB.ExpectExec("INSERT INTO recommendation_history").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "u1", pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		err := store.Append(context.Background(), records[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert recommendation history")
		assert.Contains(t, err.Error(), "disk full")
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	assert.Equal(t, "postgres", store.Name())
}

func TestPostgresHistoryStore_ListHistory(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	store := NewPostgresHistoryStore(mockDB, newTestLogger())
	want := historyRecords("u1", 2)

	rows := pgxmock.NewRows([]string{"id", "request_id", "user_id", "item_id", "destination", "score", "rank", "created_at"})
	for _, r := range want {
		rows.AddRow(r.ID, r.RequestID, r.UserID, r.ItemID, r.Destination, r.Score, r.Rank, r.Timestamp)
	}
	mockDB.ExpectQuery("SELECT id, request_id, user_id, item_id").
		WithArgs("u1", 20).
		WillReturnRows(rows)

	got, err := store.ListHistory(context.Background(), "u1", 20)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresHistoryStore_ListHistoryEmpty(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT id, request_id").
		WithArgs("nobody", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "request_id", "user_id", "item_id", "destination", "score", "rank", "created_at"}))

	got, err := NewPostgresHistoryStore(mockDB, newTestLogger()).ListHistory(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLogHistorySink_Append(t *testing.T) {
	sink := NewLogHistorySink(newTestLogger())
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Append(context.Background(), historyRecords("u1", 3)))
}
