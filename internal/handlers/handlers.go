package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	History        *HistoryHandler
	Rating         *RatingHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.RecommendationOrchestrator, logger),
		History:        NewHistoryHandler(svc.HistoryReader, logger),
		Rating:         NewRatingHandler(svc.Interactions, logger),
		Admin:          NewAdminHandler(logger, svc.Reference, svc.Models),
	}
}

// errorResponse writes the standard error envelope.
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
