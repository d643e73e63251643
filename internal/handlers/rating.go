package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/services"
	"github.com/temcen/tripwise/pkg/models"
)

type RatingHandler struct {
	ratings   services.RatingRecorderInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewRatingHandler(ratings services.RatingRecorderInterface, logger *logrus.Logger) *RatingHandler {
	return &RatingHandler{
		ratings:   ratings,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *RatingHandler) Create(c *gin.Context) {
	var req models.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind rating request")
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	interaction, err := h.ratings.RecordRating(c.Request.Context(), &req)
	if err != nil {
		var unknown *services.UnknownEntityError
		if errors.As(err, &unknown) {
			errorResponse(c, http.StatusNotFound, "ITEM_NOT_FOUND", unknown.Error())
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to record rating")
		errorResponse(c, http.StatusInternalServerError, "RATING_RECORD_FAILED", "Failed to record rating")
		return
	}

	c.JSON(http.StatusCreated, interaction)
}
