package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/depositly-backend/internal/requestdata"
)

type NotificationType string

const (
	NotificationTransactionOpened  NotificationType = "transaction_opened"
	NotificationDepositReleased    NotificationType = "deposit_released"
	NotificationDepositCharged     NotificationType = "deposit_charged"
	NotificationChargeRateExceeded NotificationType = "charge_rate_exceeded"
)

type Notification struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecipientRole requestdata.Role `gorm:"not null;index:idx_notification_recipient;column:recipient_role" json:"recipient_role"`
	RecipientID   uuid.UUID        `gorm:"type:uuid;not null;index:idx_notification_recipient;column:recipient_id" json:"recipient_id"`
	Type          NotificationType `gorm:"not null;column:type" json:"type"`
	Content       string           `gorm:"not null;column:content" json:"content"`
	Data          datatypes.JSON   `gorm:"column:data" json:"data,omitempty"`
	Read          bool             `gorm:"not null;default:false;index;column:read" json:"read"`
	CreatedAt     time.Time        `gorm:"not null;default:now()" json:"created_at"`
}

func (Notification) TableName() string {
	return "notification"
}
