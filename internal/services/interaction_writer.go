package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/pkg/models"
)

// InteractionWriter appends explicit ratings to the interactions table.
// New rows become visible to scoring on the next snapshot reload.
type InteractionWriter struct {
	db       DatabaseExecutor
	snapshot SnapshotProvider
	logger   *logrus.Logger
}

func NewInteractionWriter(db DatabaseExecutor, snapshot SnapshotProvider, logger *logrus.Logger) *InteractionWriter {
	return &InteractionWriter{db: db, snapshot: snapshot, logger: logger}
}

// RecordRating stores a rating. Items missing from the current catalog are
// rejected with UnknownEntityError.
func (w *InteractionWriter) RecordRating(ctx context.Context, req *models.RatingRequest) (*models.Interaction, error) {
	userID := strings.TrimSpace(req.UserID)
	itemID := strings.TrimSpace(req.ItemID)

	if data := w.snapshot.Current(); data != nil {
		if _, ok := data.Item(itemID); !ok {
			return nil, &UnknownEntityError{Kind: "item", ID: itemID}
		}
	}

	_, err := w.db.Exec(ctx,
		`INSERT INTO interactions (user_id, item_id, strength, created_at) VALUES ($1, $2, $3, $4)`,
		userID, itemID, req.Rating, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store rating: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": itemID,
		"rating":  req.Rating,
	}).Info("Rating recorded")

	return &models.Interaction{UserID: userID, ItemID: itemID, Strength: req.Rating}, nil
}
