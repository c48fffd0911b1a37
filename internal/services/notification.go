package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/sse"
	"github.com/yungbote/depositly-backend/internal/types"
)

// NotificationService persists lifecycle notifications and pushes them to live
// connections. Delivery is at-most-once and best effort; anything a client
// misses it recovers by listing its persisted notifications.
type NotificationService interface {
	Publish(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, ntype types.NotificationType, content string, data map[string]any) error
	List(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, unreadOnly bool) ([]*types.Notification, error)
	MarkRead(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, notificationID uuid.UUID) error
}

type notificationService struct {
	db               *gorm.DB
	log              *logger.Logger
	notificationRepo repos.NotificationRepo
	hub              *sse.SSEHub
	bus              NotificationBus
}

func NewNotificationService(db *gorm.DB, baseLog *logger.Logger, notificationRepo repos.NotificationRepo, hub *sse.SSEHub, bus NotificationBus) NotificationService {
	return &notificationService{
		db:               db,
		log:              baseLog.With("service", "NotificationService"),
		notificationRepo: notificationRepo,
		hub:              hub,
		bus:              bus,
	}
}

var eventForType = map[types.NotificationType]sse.SSEEvent{
	types.NotificationTransactionOpened:  sse.SSEEventTransactionOpened,
	types.NotificationDepositReleased:    sse.SSEEventDepositReleased,
	types.NotificationDepositCharged:     sse.SSEEventDepositCharged,
	types.NotificationChargeRateExceeded: sse.SSEEventChargeRateExceeded,
}

func (ns *notificationService) Publish(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, ntype types.NotificationType, content string, data map[string]any) error {
	if recipientID == uuid.Nil {
		return apierr.Validation("missing notification recipient")
	}

	var payload datatypes.JSON
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return apierr.Internal(err)
		}
		payload = datatypes.JSON(raw)
	}

	row := &types.Notification{
		ID:            uuid.New(),
		RecipientRole: role,
		RecipientID:   recipientID,
		Type:          ntype,
		Content:       content,
		Data:          payload,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := ns.notificationRepo.Create(ctx, nil, []*types.Notification{row}); err != nil {
		return err
	}

	// Push after persist. Failures here are logged and swallowed so the
	// triggering business operation never fails on delivery.
	msg := sse.SSEMessage{
		Channel: sse.Channel(role, recipientID),
		Event:   eventForType[ntype],
		Data:    row,
	}
	// Exactly one emitter. The bus forwarder delivers to this instance's
	// hub too, so broadcasting locally as well would push the same message
	// twice to the publisher's own connections.
	if ns.bus != nil {
		if err := ns.bus.Publish(ctx, msg); err != nil {
			ns.log.Warn("Notification bus publish failed", "notification_id", row.ID, "error", err)
		}
	} else if ns.hub != nil {
		ns.hub.Broadcast(msg)
	}
	return nil
}

func (ns *notificationService) List(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, unreadOnly bool) ([]*types.Notification, error) {
	return ns.notificationRepo.ListByRecipient(ctx, nil, role, recipientID, unreadOnly)
}

func (ns *notificationService) MarkRead(ctx context.Context, role requestdata.Role, recipientID uuid.UUID, notificationID uuid.UUID) error {
	n, err := ns.notificationRepo.MarkRead(ctx, nil, notificationID, role, recipientID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.NotFound("notification not found")
	}
	return nil
}
