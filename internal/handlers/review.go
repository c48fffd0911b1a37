package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/services"
)

type ReviewHandler struct {
	log       *logger.Logger
	reviewSvc services.ReviewService
}

func NewReviewHandler(log *logger.Logger, reviewSvc services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		log:       log.With("handler", "ReviewHandler"),
		reviewSvc: reviewSvc,
	}
}

type createReviewRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Content       string    `json:"content"`
	Images        []string  `json:"images"`
}

// POST /reviews
// One review per settled transaction, by its customer.
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	review, err := h.reviewSvc.CreateReview(c.Request.Context(), services.CreateReviewInput{
		TransactionID: req.TransactionID,
		Content:       req.Content,
		Images:        req.Images,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, review)
}

type updateReviewRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// PUT /reviews/:id
func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	var req updateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	review, err := h.reviewSvc.UpdateReview(c.Request.Context(), id, services.UpdateReviewInput{
		Content: req.Content,
		Images:  req.Images,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, review)
}

// DELETE /reviews/:id
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.reviewSvc.DeleteReview(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// GET /reviews/:id
func (h *ReviewHandler) GetReview(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	review, err := h.reviewSvc.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, review)
}
