package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/ml"
	"github.com/temcen/tripwise/internal/services"
)

// ModelLister reports the artifacts known to the model registry.
type ModelLister interface {
	ListModels() []ml.ModelInfo
}

// AdminHandler handles operator requests
type AdminHandler struct {
	logger    *logrus.Logger
	reference services.ReferenceReloader
	models    ModelLister
}

func NewAdminHandler(logger *logrus.Logger, reference services.ReferenceReloader, models ModelLister) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		reference: reference,
		models:    models,
	}
}

// Reload rebuilds the reference snapshot. The previous snapshot keeps
// serving when the reload fails.
func (h *AdminHandler) Reload(c *gin.Context) {
	data, err := h.reference.Reload(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Reference reload failed")
		errorResponse(c, http.StatusInternalServerError, "RELOAD_FAILED", "Reference data reload failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version":   data.Version,
		"items":     len(data.Catalog.Items),
		"loaded_at": data.LoadedAt,
	})
}

// ListModels returns the status of every model artifact
func (h *AdminHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models": h.models.ListModels(),
	})
}
