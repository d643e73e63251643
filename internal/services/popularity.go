package services

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/pkg/models"
)

// MemoryPopularity counts interactions per item within each cluster,
// computed once per snapshot.
type MemoryPopularity struct {
	counts    map[int]map[string]float64
	userItems map[string]map[string]float64
	labels    map[string]int
}

func NewMemoryPopularity(interactions map[string][]models.Interaction, labels map[string]int) *MemoryPopularity {
	p := &MemoryPopularity{
		counts:    make(map[int]map[string]float64),
		userItems: make(map[string]map[string]float64),
		labels:    labels,
	}

	for userID, history := range interactions {
		label, ok := labels[userID]
		if !ok {
			continue
		}
		if p.counts[label] == nil {
			p.counts[label] = make(map[string]float64)
		}
		own := make(map[string]float64, len(history))
		for _, in := range history {
			p.counts[label][in.ItemID]++
			own[in.ItemID]++
		}
		p.userItems[userID] = own
	}

	return p
}

// ClusterPopularity counts interactions by other members of the cluster.
// Candidates nobody in the cluster touched score 0.
func (p *MemoryPopularity) ClusterPopularity(_ context.Context, cluster int, excludeUserID string, candidates []string) (map[string]float64, error) {
	counts := p.counts[cluster]
	var own map[string]float64
	if label, ok := p.labels[excludeUserID]; ok && label == cluster {
		own = p.userItems[excludeUserID]
	}

	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		scores[id] = counts[id] - own[id]
	}
	return scores, nil
}

// Neo4jPopularityLookup reads segment popularity from the interaction graph:
// (:User)-[:IN_SEGMENT]->(:Segment) and (:User)-[:INTERACTED]->(:Item).
type Neo4jPopularityLookup struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jPopularityLookup(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jPopularityLookup {
	return &Neo4jPopularityLookup{driver: driver, logger: logger}
}

func (l *Neo4jPopularityLookup) ClusterPopularity(ctx context.Context, cluster int, excludeUserID string, candidates []string) (map[string]float64, error) {
	if l.driver == nil {
		return nil, &DataUnavailableError{Signal: SignalCluster, Resource: "neo4j"}
	}

	session := l.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (s:Segment {id: $cluster})<-[:IN_SEGMENT]-(u:User)-[r:INTERACTED]->(i:Item)
		WHERE u.user_id <> $userId AND i.item_id IN $candidates
		RETURN i.item_id AS item_id, count(r) AS interactions`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"cluster":    cluster,
		"userId":     excludeUserID,
		"candidates": candidates,
	})
	if err != nil {
		return nil, fmt.Errorf("segment popularity query failed: %w", err)
	}

	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		scores[id] = 0
	}
	for result.Next(ctx) {
		record := result.Record()
		itemID, ok := record.Values[0].(string)
		if !ok {
			continue
		}
		count, ok := record.Values[1].(int64)
		if !ok {
			continue
		}
		scores[itemID] = float64(count)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read segment popularity: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"cluster":    cluster,
		"candidates": len(candidates),
	}).Debug("Segment popularity loaded from graph")

	return scores, nil
}
