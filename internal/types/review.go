package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Review is written once per completed transaction. Category scores come from
// the content scorer; 0 means the category was not mentioned. Rows are stored
// immediately with provisional zero scores and refined asynchronously, so
// ScoredAt is nil until the scorer has run.
type Review struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BusinessID    uuid.UUID      `gorm:"type:uuid;not null;index;column:business_id" json:"business_id"`
	CustomerID    uuid.UUID      `gorm:"type:uuid;not null;index;column:customer_id" json:"customer_id"`
	TransactionID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex;column:transaction_id" json:"transaction_id"`
	Content       string         `gorm:"not null;column:content" json:"content"`
	Quality       float64        `gorm:"not null;default:0;column:quality" json:"quality"`
	Reliability   float64        `gorm:"not null;default:0;column:reliability" json:"reliability"`
	Price         float64        `gorm:"not null;default:0;column:price" json:"price"`
	Overall       float64        `gorm:"not null;default:0;column:overall" json:"overall"`
	Images        datatypes.JSON `gorm:"column:images" json:"images,omitempty"`
	ScoredAt      *time.Time     `gorm:"column:scored_at" json:"scored_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Review) TableName() string {
	return "review"
}
