package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/services"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves emitted recommendations back to clients. It needs a
// readable history sink and answers 501 without one.
type HistoryHandler struct {
	reader services.HistoryReader
	logger *logrus.Logger
}

func NewHistoryHandler(reader services.HistoryReader, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{reader: reader, logger: logger}
}

func (h *HistoryHandler) Get(c *gin.Context) {
	if h.reader == nil {
		errorResponse(c, http.StatusNotImplemented, "HISTORY_NOT_READABLE", "The configured history sink cannot be queried")
		return
	}

	userID := c.Param("userId")
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			errorResponse(c, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	records, err := h.reader.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to list recommendation history")
		errorResponse(c, http.StatusInternalServerError, "HISTORY_READ_FAILED", "Failed to read recommendation history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"history": records,
		"count":   len(records),
	})
}
