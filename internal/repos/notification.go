package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/types"
)

type NotificationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error)
	ListByRecipient(ctx context.Context, tx *gorm.DB, role requestdata.Role, recipientID uuid.UUID, unreadOnly bool) ([]*types.Notification, error)
	MarkRead(ctx context.Context, tx *gorm.DB, id uuid.UUID, role requestdata.Role, recipientID uuid.UUID) (int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	repoLog := baseLog.With("repo", "NotificationRepo")
	return &notificationRepo{db: db, log: repoLog}
}

func (nr *notificationRepo) Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error) {
	conn := tx
	if conn == nil {
		conn = nr.db
	}
	if len(notifications) == 0 {
		return []*types.Notification{}, nil
	}
	if err := conn.WithContext(ctx).Create(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (nr *notificationRepo) ListByRecipient(ctx context.Context, tx *gorm.DB, role requestdata.Role, recipientID uuid.UUID, unreadOnly bool) ([]*types.Notification, error) {
	conn := tx
	if conn == nil {
		conn = nr.db
	}
	query := conn.WithContext(ctx).
		Where("recipient_role = ? AND recipient_id = ?", role, recipientID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	var results []*types.Notification
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (nr *notificationRepo) MarkRead(ctx context.Context, tx *gorm.DB, id uuid.UUID, role requestdata.Role, recipientID uuid.UUID) (int64, error) {
	conn := tx
	if conn == nil {
		conn = nr.db
	}
	res := conn.WithContext(ctx).
		Model(&types.Notification{}).
		Where("id = ? AND recipient_role = ? AND recipient_id = ?", id, role, recipientID).
		Update("read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
