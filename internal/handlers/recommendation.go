package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/services"
	"github.com/temcen/tripwise/pkg/models"
)

type RecommendationHandler struct {
	orchestrator services.RecommendationOrchestratorInterface
	validator    *validator.Validate
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	orchestrator services.RecommendationOrchestratorInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Create handles POST /recommendations with a JSON request body.
func (h *RecommendationHandler) Create(c *gin.Context) {
	var req models.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind recommendation request")
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}

	h.serve(c, &req)
}

// Get handles GET /recommendations/:userId with constraints as query
// parameters. Weights use the form "cf:0.5,content:0.3,cluster:0.2".
func (h *RecommendationHandler) Get(c *gin.Context) {
	req, err := parseQueryRequest(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	h.serve(c, req)
}

func (h *RecommendationHandler) serve(c *gin.Context, req *models.RecommendationRequest) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := h.validator.Struct(req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	resp, err := h.orchestrator.GenerateRecommendations(c.Request.Context(), req)
	if err != nil {
		var cfgErr *services.ConfigurationError
		var unavailable *services.DataUnavailableError
		switch {
		case errors.As(err, &cfgErr):
			errorResponse(c, http.StatusBadRequest, "INVALID_CONFIGURATION", cfgErr.Error())
		case errors.As(err, &unavailable):
			h.logger.WithError(err).Warn("Recommendations requested before reference data is available")
			errorResponse(c, http.StatusServiceUnavailable, "DATA_UNAVAILABLE", "Reference data is not loaded yet")
		default:
			h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to generate recommendations")
			errorResponse(c, http.StatusInternalServerError, "RECOMMENDATION_GENERATION_FAILED", "Failed to generate recommendations")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseQueryRequest(c *gin.Context) (*models.RecommendationRequest, error) {
	req := &models.RecommendationRequest{
		UserID:  c.Param("userId"),
		Explain: c.Query("explain") == "true",
	}

	if v := c.Query("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("top_n must be an integer")
		}
		req.TopN = n
	}
	if v := c.Query("budget"); v != "" {
		budget, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("budget must be a number")
		}
		req.Budget = &budget
	}

	optional := map[string]**string{
		"weather":            &req.Weather,
		"activities":         &req.Activities,
		"accommodation_type": &req.AccommodationType,
		"destination":        &req.Destination,
		"reference_item_id":  &req.ReferenceItemID,
	}
	for name, target := range optional {
		if v, ok := c.GetQuery(name); ok {
			value := v
			*target = &value
		}
	}

	if v := c.Query("weights"); v != "" {
		weights, err := parseWeights(v)
		if err != nil {
			return nil, err
		}
		req.Weights = weights
	}

	return req, nil
}

func parseWeights(raw string) (map[string]float64, error) {
	weights := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("weights must be name:value pairs")
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("weight for %q must be a number", name)
		}
		weights[strings.TrimSpace(name)] = w
	}
	return weights, nil
}
