package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/pkg/models"
)

// Signal names used for adapters, weights and metrics labels.
const (
	SignalCF      = config.SignalCF
	SignalContent = config.SignalContent
	SignalCluster = config.SignalCluster
)

// CandidateSet is the ordered list of item ids eligible for one request.
type CandidateSet []string

// ScoreVector maps item id to raw score. NaN marks a missing score.
type ScoreVector map[string]float64

// Weights maps signal name to its fusion weight.
type Weights map[string]float64

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ContentMode selects how the similarity adapter builds its reference.
type ContentMode string

const (
	ContentModeItem    ContentMode = "item"
	ContentModeQuery   ContentMode = "query"
	ContentModeProfile ContentMode = "profile"
)

// SignalRequest carries everything an adapter needs for one request.
type SignalRequest struct {
	UserID          string
	Candidates      CandidateSet
	ReferenceItemID string
	QueryText       string
	ContentMode     ContentMode
	Profile         *models.UserProfile
	History         []models.Interaction
	Data            *ReferenceData
}

// SignalAdapter turns one relevance signal into raw scores for the candidates.
type SignalAdapter interface {
	Name() string
	Score(ctx context.Context, req *SignalRequest) (ScoreVector, error)
}

// PopularityLookup counts interactions per candidate among the members of a
// demographic cluster, excluding the requesting user.
type PopularityLookup interface {
	ClusterPopularity(ctx context.Context, cluster int, excludeUserID string, candidates []string) (map[string]float64, error)
}

// ReferenceLoader reads the catalog, interactions and demographic profiles.
type ReferenceLoader interface {
	LoadCatalog(ctx context.Context) (*Catalog, error)
	LoadInteractions(ctx context.Context) ([]models.Interaction, error)
	LoadProfiles(ctx context.Context) ([]models.UserProfile, error)
}

// SnapshotProvider exposes the current reference data snapshot.
type SnapshotProvider interface {
	Current() *ReferenceData
}

// HistorySink persists emitted recommendations.
type HistorySink interface {
	Name() string
	Append(ctx context.Context, records []models.HistoryRecord) error
}

// HistoryReader lists previously emitted recommendations, newest first.
type HistoryReader interface {
	ListHistory(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error)
}

// HistoryRecorderInterface enqueues history records without blocking the caller.
type HistoryRecorderInterface interface {
	Record(requestID uuid.UUID, userID string, recs []models.Recommendation) bool
}

// RecommendationOrchestratorInterface defines the interface for recommendation orchestration
type RecommendationOrchestratorInterface interface {
	GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error)
}

// DatabaseQuerier interface for database reads
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DatabaseExecutor interface for database writes
type DatabaseExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// DatabaseConn is satisfied by *pgxpool.Pool and pgxmock pools.
type DatabaseConn interface {
	DatabaseQuerier
	DatabaseExecutor
}

// RatingRecorderInterface appends explicit ratings.
type RatingRecorderInterface interface {
	RecordRating(ctx context.Context, req *models.RatingRequest) (*models.Interaction, error)
}

// ReferenceReloader rebuilds the reference snapshot on demand.
type ReferenceReloader interface {
	Reload(ctx context.Context) (*ReferenceData, error)
}

// HealthCheckerInterface reports dependency health.
type HealthCheckerInterface interface {
	CheckHealth(ctx context.Context) *HealthStatus
}
