package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/pkg/models"
)

// PostgresHistoryStore appends history to recommendation_history and
// serves it back for the history endpoint.
type PostgresHistoryStore struct {
	db     DatabaseConn
	logger *logrus.Logger
}

func NewPostgresHistoryStore(db DatabaseConn, logger *logrus.Logger) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db, logger: logger}
}

func (s *PostgresHistoryStore) Name() string { return "postgres" }

// Append writes all records in a single multi-row insert.
func (s *PostgresHistoryStore) Append(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 8
	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*cols)
	for i, r := range records {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, r.ID, r.RequestID, r.UserID, r.ItemID, r.Destination, r.Score, r.Rank, r.Timestamp)
	}

	query := `INSERT INTO recommendation_history
		(id, request_id, user_id, item_id, destination, score, rank, created_at)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert recommendation history: %w", err)
	}
	return nil
}

// ListHistory returns the user's most recent records, newest first.
func (s *PostgresHistoryStore) ListHistory(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	query := `
		SELECT id, request_id, user_id, item_id, destination, score, rank, created_at
		FROM recommendation_history
		WHERE user_id = $1
		ORDER BY created_at DESC, rank ASC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var r models.HistoryRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.UserID, &r.ItemID, &r.Destination, &r.Score, &r.Rank, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return records, nil
}

// LogHistorySink writes history records to the structured log only.
type LogHistorySink struct {
	logger *logrus.Logger
}

func NewLogHistorySink(logger *logrus.Logger) *LogHistorySink {
	return &LogHistorySink{logger: logger}
}

func (s *LogHistorySink) Name() string { return "log" }

func (s *LogHistorySink) Append(_ context.Context, records []models.HistoryRecord) error {
	for _, r := range records {
		s.logger.WithFields(logrus.Fields{
			"history_id":  r.ID,
			"request_id":  r.RequestID,
			"user_id":     r.UserID,
			"item_id":     r.ItemID,
			"destination": r.Destination,
			"score":       r.Score,
			"rank":        r.Rank,
			"timestamp":   r.Timestamp,
		}).Info("Recommendation emitted")
	}
	return nil
}
