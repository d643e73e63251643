package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/tripwise/internal/services"
	"github.com/temcen/tripwise/pkg/models"
)

// MockRecommendationOrchestrator is a mock implementation
type MockRecommendationOrchestrator struct {
	mock.Mock
}

func (m *MockRecommendationOrchestrator) GenerateRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func sampleResponse(userID string) *models.RecommendationResponse {
	price := 180.0
	return &models.RecommendationResponse{
		RequestID: uuid.New(),
		UserID:    userID,
		Recommendations: []models.Recommendation{
			{ItemID: "Nice_Hotel", Score: 0.91, Rank: 1, Destination: "Nice", Price: &price},
			{ItemID: "Oslo_Cabin", Score: 0.42, Rank: 2, Destination: "Oslo"},
		},
		State:       "warm",
		SignalsUsed: []string{"cf", "content"},
		GeneratedAt: time.Now(),
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error.Code
}

func TestRecommendationHandler_Create(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		body           string
		setup          func(m *MockRecommendationOrchestrator)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "valid request",
			body: `{"user_id":"u1","top_n":2,"budget":200,"activities":"beach"}`,
			setup: func(m *MockRecommendationOrchestrator) {
				m.On("GenerateRecommendations", mock.Anything, mock.MatchedBy(func(req *models.RecommendationRequest) bool {
					return req.UserID == "u1" && req.TopN == 2 &&
						req.Budget != nil && *req.Budget == 200 &&
						req.Activities != nil && *req.Activities == "beach"
				})).Return(sampleResponse("u1"), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "malformed json",
			body:           `{"user_id":`,
			setup:          func(m *MockRecommendationOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST_BODY",
		},
		{
			name:           "missing user id",
			body:           `{"top_n":5}`,
			setup:          func(m *MockRecommendationOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "top_n above maximum",
			body:           `{"user_id":"u1","top_n":500}`,
			setup:          func(m *MockRecommendationOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "negative budget",
			body:           `{"user_id":"u1","budget":-5}`,
			setup:          func(m *MockRecommendationOrchestrator) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name: "invalid weights",
			body: `{"user_id":"u1","weights":{"cf":0.9,"content":0.9}}`,
			setup: func(m *MockRecommendationOrchestrator) {
				m.On("GenerateRecommendations", mock.Anything, mock.Anything).
					Return(nil, &services.ConfigurationError{Field: "weights", Err: errors.New("signal weights must sum to 1.0")})
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_CONFIGURATION",
		},
		{
			name: "reference data not loaded",
			body: `{"user_id":"u1"}`,
			setup: func(m *MockRecommendationOrchestrator) {
				m.On("GenerateRecommendations", mock.Anything, mock.Anything).
					Return(nil, &services.DataUnavailableError{Signal: "reference", Resource: "reference data"})
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "DATA_UNAVAILABLE",
		},
		{
			name: "unexpected failure",
			body: `{"user_id":"u1"}`,
			setup: func(m *MockRecommendationOrchestrator) {
				m.On("GenerateRecommendations", mock.Anything, mock.Anything).
					Return(nil, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "RECOMMENDATION_GENERATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrchestrator := new(MockRecommendationOrchestrator)
			tt.setup(mockOrchestrator)
			handler := NewRecommendationHandler(mockOrchestrator, newTestLogger())

			router := gin.New()
			router.POST("/recommendations", handler.Create)

			req := httptest.NewRequest(http.MethodPost, "/recommendations", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w.Body.Bytes()))
			} else {
				var resp models.RecommendationResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "u1", resp.UserID)
				assert.Len(t, resp.Recommendations, 2)
				assert.Equal(t, "Nice_Hotel", resp.Recommendations[0].ItemID)
			}
			mockOrchestrator.AssertExpectations(t)
		})
	}
}

func TestRecommendationHandler_EmptyResultCarriesReason(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockOrchestrator := new(MockRecommendationOrchestrator)
	mockOrchestrator.On("GenerateRecommendations", mock.Anything, mock.Anything).Return(&models.RecommendationResponse{
		RequestID:       uuid.New(),
		UserID:          "stranger",
		Recommendations: []models.Recommendation{},
		Reason:          services.ReasonInsufficientData,
	}, nil)
	handler := NewRecommendationHandler(mockOrchestrator, newTestLogger())

	router := gin.New()
	router.POST("/recommendations", handler.Create)

	req := httptest.NewRequest(http.MethodPost, "/recommendations", bytes.NewBufferString(`{"user_id":"stranger"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []interface{}{}, body["recommendations"])
	assert.Equal(t, "insufficient data", body["reason"])
}

func TestRecommendationHandler_Get(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		url            string
		matcher        func(req *models.RecommendationRequest) bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "query constraints",
			url:  "/recommendations/u1?top_n=5&budget=150.5&weather=Sunny&activities=beach,sailing&explain=true",
			matcher: func(req *models.RecommendationRequest) bool {
				return req.UserID == "u1" && req.TopN == 5 && req.Explain &&
					req.Budget != nil && *req.Budget == 150.5 &&
					req.Weather != nil && *req.Weather == "Sunny" &&
					req.Activities != nil && *req.Activities == "beach,sailing" &&
					req.Destination == nil && req.ReferenceItemID == nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "reference item and weights",
			url:  "/recommendations/u1?reference_item_id=Nice_Hotel&weights=cf:0.5,content:0.5",
			matcher: func(req *models.RecommendationRequest) bool {
				return req.ReferenceItemID != nil && *req.ReferenceItemID == "Nice_Hotel" &&
					req.Weights["cf"] == 0.5 && req.Weights["content"] == 0.5 && len(req.Weights) == 2
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "non numeric top_n",
			url:            "/recommendations/u1?top_n=ten",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PARAMETER",
		},
		{
			name:           "non numeric budget",
			url:            "/recommendations/u1?budget=cheap",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PARAMETER",
		},
		{
			name:           "malformed weights",
			url:            "/recommendations/u1?weights=cf",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PARAMETER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrchestrator := new(MockRecommendationOrchestrator)
			if tt.matcher != nil {
				mockOrchestrator.On("GenerateRecommendations", mock.Anything, mock.MatchedBy(tt.matcher)).
					Return(sampleResponse("u1"), nil)
			}
			handler := NewRecommendationHandler(mockOrchestrator, newTestLogger())

			router := gin.New()
			router.GET("/recommendations/:userId", handler.Get)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w.Body.Bytes()))
			}
			mockOrchestrator.AssertExpectations(t)
		})
	}
}

func TestParseWeights(t *testing.T) {
	tests := []struct {
		raw     string
		want    map[string]float64
		wantErr bool
	}{
		{raw: "cf:1", want: map[string]float64{"cf": 1}},
		{raw: "cf:0.4, content:0.4 ,cluster:0.2", want: map[string]float64{"cf": 0.4, "content": 0.4, "cluster": 0.2}},
		{raw: "cf=0.4", wantErr: true},
		{raw: "cf:high", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseWeights(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
