package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/services"
)

type NotificationHandler struct {
	log             *logger.Logger
	notificationSvc services.NotificationService
}

func NewNotificationHandler(log *logger.Logger, notificationSvc services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		log:             log.With("handler", "NotificationHandler"),
		notificationSvc: notificationSvc,
	}
}

// GET /notifications?unread=true
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, apierr.Permission("unauthenticated"))
		return
	}
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notificationSvc.List(c.Request.Context(), rd.Role, rd.ActorID, unreadOnly)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"notifications": notifications})
}

// POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, apierr.Permission("unauthenticated"))
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.notificationSvc.MarkRead(c.Request.Context(), rd.Role, rd.ActorID, id); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"read": true})
}
