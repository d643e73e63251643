package models

import (
	"time"

	"github.com/google/uuid"
)

// Constraints are the optional hard filters of a recommendation request.
// A nil field means the filter is not applied.
type Constraints struct {
	Budget            *float64 `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Weather           *string  `json:"weather,omitempty" validate:"omitempty,max=64"`
	Activities        *string  `json:"activities,omitempty" validate:"omitempty,max=512"`
	AccommodationType *string  `json:"accommodation_type,omitempty" validate:"omitempty,max=64"`
	Destination       *string  `json:"destination,omitempty" validate:"omitempty,max=128"`
}

type RecommendationRequest struct {
	UserID          string             `json:"user_id" validate:"required,max=128"`
	TopN            int                `json:"top_n" validate:"omitempty,min=1,max=100"`
	ReferenceItemID *string            `json:"reference_item_id,omitempty" validate:"omitempty,max=256"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	Explain         bool               `json:"explain"`
	Constraints
}

// SignalScore is the per-signal contribution to a fused score.
type SignalScore struct {
	Raw        *float64 `json:"raw,omitempty"`
	Normalized float64  `json:"normalized"`
	Weight     float64  `json:"weight"`
}

type Recommendation struct {
	ItemID            string                 `json:"item_id"`
	Score             float64                `json:"score"`
	Rank              int                    `json:"rank"`
	Destination       string                 `json:"destination,omitempty"`
	AccommodationType string                 `json:"accommodation_type,omitempty"`
	Price             *float64               `json:"price,omitempty"`
	Weather           string                 `json:"weather,omitempty"`
	Activities        string                 `json:"activities,omitempty"`
	Signals           map[string]SignalScore `json:"signals,omitempty"`
}

// Degradation reports a recoverable condition hit while serving a request.
type Degradation struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

type RecommendationResponse struct {
	RequestID       uuid.UUID        `json:"request_id"`
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Reason          string           `json:"reason,omitempty"`
	State           string           `json:"state,omitempty"`
	SignalsUsed     []string         `json:"signals_used,omitempty"`
	Degraded        []Degradation    `json:"degraded,omitempty"`
	SnapshotVersion int64            `json:"snapshot_version"`
	CacheHit        bool             `json:"cache_hit"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// HistoryRecord is one emitted recommendation, appended to the history log.
type HistoryRecord struct {
	ID          uuid.UUID `json:"id"`
	RequestID   uuid.UUID `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	Destination string    `json:"destination,omitempty"`
	Score       float64   `json:"score"`
	Rank        int       `json:"rank"`
}
