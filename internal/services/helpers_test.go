package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/tripwise/internal/ml"
	"github.com/temcen/tripwise/pkg/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func allColumns() map[string]bool {
	return map[string]bool{
		models.ColumnItemID:            true,
		models.ColumnDestination:       true,
		models.ColumnAccommodationType: true,
		models.ColumnPrice:             true,
		models.ColumnWeather:           true,
		models.ColumnActivities:        true,
		models.ColumnDescription:       true,
	}
}

func travelCatalog() *Catalog {
	return &Catalog{
		Columns: allColumns(),
		Items: []models.Item{
			{ID: "Bali_Villa", Destination: "Bali", AccommodationType: "Villa", Price: floatPtr(250), Weather: "Tropical", Activities: "surfing, diving, yoga", Description: "beach villa with ocean view"},
			{ID: "Cairo_Hotel", Destination: "Cairo", AccommodationType: "Hotel", Price: floatPtr(90), Weather: "Hot", Activities: "museums, pyramids", Description: "historic city hotel"},
			{ID: "Nice_Hotel", Destination: "Nice", AccommodationType: "Hotel", Price: floatPtr(180), Weather: "Sunny", Activities: "beach, sailing", Description: "riviera beach hotel"},
			{ID: "Oslo_Cabin", Destination: "Oslo", AccommodationType: "Cabin", Price: floatPtr(140), Weather: "Cold", Activities: "skiing, hiking", Description: "snowy mountain cabin"},
			{ID: "Paris_Hotel", Destination: "Paris", AccommodationType: "Hotel", Price: floatPtr(300), Weather: "Mild", Activities: "museums, dining", Description: "central city hotel"},
		},
	}
}

func catalogIDs(c *Catalog) []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ID
	}
	return ids
}

// testModelSet builds a model set over the catalog: a content index fitted
// on the catalog, a predictor for the given users and a two-cluster
// segmenter split on age.
func testModelSet(catalog *Catalog, users ...string) *ml.ModelSet {
	corpus := make([]string, len(catalog.Items))
	for i, it := range catalog.Items {
		corpus[i] = ml.ItemText(it)
	}
	index := ml.NewContentIndex(ml.FitTFIDF(corpus, ml.EnglishStopWords), catalog.Items)

	artifact := &ml.PredictorArtifact{
		Version:    "test",
		GlobalMean: 3,
		Factors:    1,
		Users:      map[string]ml.FactorEntry{},
		Items:      map[string]ml.FactorEntry{},
	}
	for i, u := range users {
		artifact.Users[u] = ml.FactorEntry{Bias: 0, Vector: []float64{float64(i%2)*2 - 1}}
	}
	for i, it := range catalog.Items {
		artifact.Items[it.ID] = ml.FactorEntry{Bias: float64(i) * 0.1, Vector: []float64{0.5}}
	}
	predictor, err := ml.NewMatrixFactorization(artifact)
	if err != nil {
		panic(err)
	}

	segmenter, err := ml.NewKMeansSegmenter(&ml.SegmentationArtifact{
		Version:       "test",
		AgeMean:       40,
		AgeStd:        10,
		Genders:       []string{"female", "male"},
		Nationalities: []string{"french", "german"},
		Centroids: [][]float64{
			{-1.5, 0, 0, 0, 0},
			{1.5, 0, 0, 0, 0},
		},
	})
	if err != nil {
		panic(err)
	}

	return &ml.ModelSet{Predictor: predictor, Similarity: index, Segmenter: segmenter}
}

type staticSnapshot struct {
	data *ReferenceData
}

func (s *staticSnapshot) Current() *ReferenceData { return s.data }

// MockRatingPredictor is a testify mock of ml.RatingPredictor.
type MockRatingPredictor struct {
	mock.Mock
	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (m *MockRatingPredictor) Predict(ctx context.Context, userID, itemID string) (float64, error) {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		old := atomic.LoadInt32(&m.maxInFlight)
		if n <= old || atomic.CompareAndSwapInt32(&m.maxInFlight, old, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	args := m.Called(ctx, userID, itemID)
	return args.Get(0).(float64), args.Error(1)
}

// fakeAdapter returns fixed scores and counts its invocations. With
// ignoreCtx set, delay is slept through regardless of cancellation.
type fakeAdapter struct {
	name      string
	scores    ScoreVector
	err       error
	delay     time.Duration
	ignoreCtx bool
	calls     int32

	mu   sync.Mutex
	last *SignalRequest
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Score(ctx context.Context, req *SignalRequest) (ScoreVector, error) {
	atomic.AddInt32(&a.calls, 1)
	a.mu.Lock()
	a.last = req
	a.mu.Unlock()

	if a.delay > 0 && a.ignoreCtx {
		time.Sleep(a.delay)
	} else if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	out := make(ScoreVector, len(req.Candidates))
	for _, id := range req.Candidates {
		if v, ok := a.scores[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (a *fakeAdapter) Calls() int { return int(atomic.LoadInt32(&a.calls)) }

func (a *fakeAdapter) LastRequest() *SignalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
