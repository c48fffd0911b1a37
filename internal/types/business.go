package types

import (
	"time"

	"github.com/google/uuid"
)

type Business struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name            string    `gorm:"not null;column:name" json:"name"`
	Email           string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Suspended       bool      `gorm:"not null;default:false;column:suspended" json:"suspended"`
	StripeAccountID string    `gorm:"column:stripe_account_id" json:"-"`
	CreatedAt       time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Business) TableName() string {
	return "business"
}
