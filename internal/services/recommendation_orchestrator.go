package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/pkg/models"
)

// Degradation kinds reported besides DegradationMissingColumn.
const (
	DegradationModelUnavailable = "model_unavailable"
	DegradationSignalFailed     = "signal_failed"
)

// signalResult is the outcome of one adapter run.
type signalResult struct {
	Signal  string
	Scores  ScoreVector
	Latency time.Duration
	Err     error
}

// RecommendationOrchestrator runs filter, policy, adapters and fusion for
// one request against the current reference snapshot.
type RecommendationOrchestrator struct {
	snapshots SnapshotProvider
	filter    *FilterStage
	policy    *ColdStartPolicy
	fusion    *FusionEngine
	adapters  map[string]SignalAdapter
	recorder  HistoryRecorderInterface
	redis     *redis.Client
	config    config.RecommendationConfig
	metrics   *MetricsCollector
	logger    *logrus.Logger
}

// NewRecommendationOrchestrator wires the pipeline. A nil redis client
// disables response caching and a nil recorder disables history.
func NewRecommendationOrchestrator(
	snapshots SnapshotProvider,
	adapters []SignalAdapter,
	recorder HistoryRecorderInterface,
	redis *redis.Client,
	cfg config.RecommendationConfig,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	byName := make(map[string]SignalAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	return &RecommendationOrchestrator{
		snapshots: snapshots,
		filter:    NewFilterStage(),
		policy:    NewColdStartPolicy(),
		fusion:    NewFusionEngine(),
		adapters:  byName,
		recorder:  recorder,
		redis:     redis,
		config:    cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// GenerateRecommendations returns a ranked list for the request. Empty
// results carry a reason instead of an error; only invalid weights and a
// missing reference snapshot are returned as errors.
func (o *RecommendationOrchestrator) GenerateRecommendations(
	ctx context.Context,
	req *models.RecommendationRequest,
) (*models.RecommendationResponse, error) {
	startTime := time.Now()
	requestID := uuid.New()

	weights := Weights(o.config.Weights).Clone()
	if len(req.Weights) > 0 {
		weights = Weights(req.Weights).Clone()
	}
	if err := config.ValidateWeights(weights); err != nil {
		return nil, &ConfigurationError{Field: "weights", Err: err}
	}
	topN := o.resolveTopN(req.TopN)

	data := o.snapshots.Current()
	if data == nil {
		return nil, &DataUnavailableError{Signal: "reference", Resource: "reference data"}
	}

	cacheKey := o.buildCacheKey(data.Version, req, weights, topN)
	if cached := o.getCachedRecommendations(ctx, cacheKey); cached != nil {
		cached.RequestID = requestID
		cached.CacheHit = true
		o.recordHistory(requestID, req.UserID, cached.Recommendations)
		o.metrics.RecordRequest(cached.State, time.Since(startTime))
		o.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    req.UserID,
		}).Debug("Recommendation cache hit")
		return cached, nil
	}

	resp := &models.RecommendationResponse{
		RequestID:       requestID,
		UserID:          req.UserID,
		Recommendations: []models.Recommendation{},
		SnapshotVersion: data.Version,
	}

	reference := ""
	if req.ReferenceItemID != nil {
		reference = strings.TrimSpace(*req.ReferenceItemID)
	}
	history := data.UserHistory(req.UserID)
	profile, hasProfile := data.Profile(req.UserID)
	queryText := BuildQueryText(req.Constraints)

	candidates, degraded := o.filter.Apply(data.Catalog, history, req.Constraints, reference)
	for _, d := range degraded {
		o.addDegradation(resp, req.UserID, d)
	}

	hasQuery := strings.TrimSpace(queryText) != ""
	if index := data.Models.Similarity; index != nil {
		hasQuery = index.HasQueryTerms(queryText)
	}
	plan := o.policy.Plan(PlanInput{
		HistoryCount: len(history),
		HasProfile:   hasProfile,
		HasReference: reference != "",
		HasQuery:     hasQuery,
		Weights:      weights,
		Available: map[string]bool{
			SignalCF:      data.Models.Predictor != nil && o.adapters[SignalCF] != nil,
			SignalContent: data.Models.Similarity != nil && o.adapters[SignalContent] != nil,
			SignalCluster: o.adapters[SignalCluster] != nil,
		},
	})
	resp.State = string(plan.State)

	for _, s := range sortedKeys(plan.Skipped) {
		if plan.Skipped[s] == "model unavailable" {
			o.addDegradation(resp, req.UserID, models.Degradation{
				Kind:   DegradationModelUnavailable,
				Target: s,
				Detail: plan.Skipped[s],
			})
		}
	}

	switch err := requireCandidates(candidates); {
	case errors.Is(err, ErrEmptyCandidateSet):
		o.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    req.UserID,
		}).Debug("Filters left no candidates")
		resp.Reason = ReasonNoMatches
		return o.finish(ctx, resp, cacheKey, startTime), nil
	case plan.Reason != "":
		resp.Reason = plan.Reason
		return o.finish(ctx, resp, cacheKey, startTime), nil
	}

	signalReq := &SignalRequest{
		UserID:          req.UserID,
		Candidates:      candidates,
		ReferenceItemID: reference,
		QueryText:       queryText,
		ContentMode:     plan.ContentMode,
		History:         history,
		Data:            data,
	}
	if hasProfile {
		signalReq.Profile = &profile
	}

	results := o.executeSignalsParallel(ctx, plan.Active, signalReq)

	vectors := make(map[string]ScoreVector, len(results))
	var succeeded []string
	for _, s := range plan.Active {
		result := results[s]
		if result.Err != nil {
			o.metrics.RecordSignalFailure(s, failureReason(result.Err))
			o.addDegradation(resp, req.UserID, models.Degradation{
				Kind:   DegradationSignalFailed,
				Target: s,
				Detail: result.Err.Error(),
			})
			continue
		}
		vectors[s] = result.Scores
		succeeded = append(succeeded, s)
	}

	if len(succeeded) == 0 {
		resp.Reason = ReasonAllSignalsUnavailable
		return o.finish(ctx, resp, cacheKey, startTime), nil
	}

	fusionWeights := plan.Weights
	if len(succeeded) < len(plan.Active) {
		fusionWeights = Redistribute(plan.Weights, succeeded)
	}

	recs, err := o.fusion.Fuse(candidates, vectors, fusionWeights, topN, req.Explain)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		o.decorate(data, &recs[i])
	}

	resp.Recommendations = recs
	resp.SignalsUsed = succeeded

	o.recordHistory(requestID, req.UserID, recs)
	return o.finish(ctx, resp, cacheKey, startTime), nil
}

func requireCandidates(candidates CandidateSet) error {
	if len(candidates) == 0 {
		return ErrEmptyCandidateSet
	}
	return nil
}

// executeSignalsParallel runs the active adapters concurrently under the
// signal timeout. A slow adapter only fails its own signal: once the
// deadline passes, any signal that has not reported is recorded as timed
// out and its late result is dropped into the buffered channel unread.
func (o *RecommendationOrchestrator) executeSignalsParallel(
	ctx context.Context,
	active []string,
	req *SignalRequest,
) map[string]*signalResult {
	timeout := o.config.SignalTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	signalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan *signalResult, len(active))
	startTime := time.Now()

	for _, signal := range active {
		go func(name string) {
			result := &signalResult{Signal: name}

			adapter, ok := o.adapters[name]
			if !ok {
				result.Err = fmt.Errorf("no adapter registered for signal %s", name)
			} else {
				result.Scores, result.Err = adapter.Score(signalCtx, req)
				if result.Err == nil && signalCtx.Err() != nil {
					result.Scores, result.Err = nil, signalCtx.Err()
				}
			}
			result.Latency = time.Since(startTime)
			o.metrics.RecordSignalLatency(name, result.Latency)

			resultCh <- result
		}(signal)
	}

	results := make(map[string]*signalResult, len(active))
collect:
	for len(results) < len(active) {
		select {
		case result := <-resultCh:
			results[result.Signal] = result
			o.logSignalResult(req, result)
		case <-signalCtx.Done():
			break collect
		}
	}

	for _, name := range active {
		if _, ok := results[name]; ok {
			continue
		}
		err := signalCtx.Err()
		if err == nil {
			err = context.DeadlineExceeded
		}
		result := &signalResult{Signal: name, Err: err, Latency: time.Since(startTime)}
		results[name] = result
		o.logSignalResult(req, result)
	}

	return results
}

func (o *RecommendationOrchestrator) logSignalResult(req *SignalRequest, result *signalResult) {
	if result.Err != nil {
		o.logger.WithError(result.Err).WithFields(logrus.Fields{
			"signal":  result.Signal,
			"user_id": req.UserID,
			"latency": result.Latency,
		}).Warn("Signal adapter failed")
		return
	}
	o.logger.WithFields(logrus.Fields{
		"signal":     result.Signal,
		"user_id":    req.UserID,
		"candidates": len(req.Candidates),
		"latency":    result.Latency,
	}).Debug("Signal adapter completed")
}

func (o *RecommendationOrchestrator) finish(
	ctx context.Context,
	resp *models.RecommendationResponse,
	cacheKey string,
	startTime time.Time,
) *models.RecommendationResponse {
	resp.GeneratedAt = time.Now().UTC()

	if err := o.cacheRecommendations(ctx, cacheKey, resp); err != nil {
		o.logger.WithError(err).Warn("Failed to cache recommendations")
	}

	latency := time.Since(startTime)
	o.metrics.RecordRequest(resp.State, latency)

	fields := logrus.Fields{
		"request_id": resp.RequestID,
		"user_id":    resp.UserID,
		"state":      resp.State,
		"count":      len(resp.Recommendations),
		"signals":    resp.SignalsUsed,
		"degraded":   len(resp.Degraded),
		"latency":    latency,
	}
	if resp.Reason != "" {
		fields["reason"] = resp.Reason
	}
	o.logger.WithFields(fields).Info("Recommendations generated")

	return resp
}

func (o *RecommendationOrchestrator) addDegradation(resp *models.RecommendationResponse, userID string, d models.Degradation) {
	resp.Degraded = append(resp.Degraded, d)
	o.metrics.RecordDegradation(d.Kind)
	o.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"kind":    d.Kind,
		"target":  d.Target,
		"detail":  d.Detail,
	}).Warn("Recommendation degraded")
}

func (o *RecommendationOrchestrator) decorate(data *ReferenceData, rec *models.Recommendation) {
	item, ok := data.Item(rec.ItemID)
	if !ok {
		return
	}
	rec.Destination = item.Destination
	rec.AccommodationType = item.AccommodationType
	rec.Price = item.Price
	rec.Weather = item.Weather
	rec.Activities = item.Activities
}

func (o *RecommendationOrchestrator) recordHistory(requestID uuid.UUID, userID string, recs []models.Recommendation) {
	if o.recorder == nil || len(recs) == 0 {
		return
	}
	if !o.recorder.Record(requestID, userID, recs) {
		o.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    userID,
		}).Debug("Recommendation history not recorded")
	}
}

func (o *RecommendationOrchestrator) resolveTopN(requested int) int {
	topN := requested
	if topN <= 0 {
		topN = o.config.DefaultTopN
	}
	if topN <= 0 {
		topN = 10
	}
	if o.config.MaxTopN > 0 && topN > o.config.MaxTopN {
		topN = o.config.MaxTopN
	}
	return topN
}

// Cache operations

func (o *RecommendationOrchestrator) cachingEnabled() bool {
	return o.redis != nil && o.config.Caching.Enabled
}

func (o *RecommendationOrchestrator) getCachedRecommendations(ctx context.Context, key string) *models.RecommendationResponse {
	if !o.cachingEnabled() {
		return nil
	}

	cached, err := o.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			o.logger.WithError(err).Warn("Failed to read recommendation cache")
		}
		o.metrics.RecordCacheResult("recommendations", false)
		return nil
	}

	var resp models.RecommendationResponse
	if err := json.Unmarshal([]byte(cached), &resp); err != nil {
		o.logger.WithError(err).Warn("Discarding unreadable cached recommendations")
		o.metrics.RecordCacheResult("recommendations", false)
		return nil
	}

	o.metrics.RecordCacheResult("recommendations", true)
	return &resp
}

func (o *RecommendationOrchestrator) cacheRecommendations(ctx context.Context, key string, resp *models.RecommendationResponse) error {
	if !o.cachingEnabled() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	ttl := o.config.Caching.RecommendationsTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return o.redis.Set(ctx, key, data, ttl).Err()
}

// buildCacheKey hashes every input that changes the result. The snapshot
// version is part of the key so a reload invalidates old entries.
func (o *RecommendationOrchestrator) buildCacheKey(version int64, req *models.RecommendationRequest, weights Weights, topN int) string {
	params := struct {
		TopN      int                `json:"top_n"`
		Reference *string            `json:"reference_item_id"`
		Weights   map[string]float64 `json:"weights"`
		Explain   bool               `json:"explain"`
		models.Constraints
	}{
		TopN:        topN,
		Reference:   req.ReferenceItemID,
		Weights:     weights,
		Explain:     req.Explain,
		Constraints: req.Constraints,
	}
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256(raw)

	return fmt.Sprintf("recommendations:v%d:%s:%s", version, req.UserID, hex.EncodeToString(sum[:16]))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
