package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/services"
)

type RatingHandler struct {
	log       *logger.Logger
	ratingSvc services.RatingService
}

func NewRatingHandler(log *logger.Logger, ratingSvc services.RatingService) *RatingHandler {
	return &RatingHandler{
		log:       log.With("handler", "RatingHandler"),
		ratingSvc: ratingSvc,
	}
}

// GET /businesses/:id/rating
// Aggregate scores for a business; never-reviewed businesses read neutral.
func (h *RatingHandler) GetBusinessRating(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	rating, err := h.ratingSvc.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, rating)
}
