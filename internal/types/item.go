package types

import (
	"time"

	"github.com/google/uuid"
)

type TimeUnit string

const (
	TimeUnitDays    TimeUnit = "days"
	TimeUnitHours   TimeUnit = "hours"
	TimeUnitMinutes TimeUnit = "minutes"
)

// Item is a catalog entry a deposit can be opened against. Temporary items are
// single-use: they carry a fixed return date and are deleted once their one
// transaction is confirmed.
type Item struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index;column:business_id" json:"business_id"`
	Title      string     `gorm:"not null;column:title" json:"title"`
	Price      int64      `gorm:"not null;column:price" json:"price"`
	Currency   string     `gorm:"not null;column:currency" json:"currency"`
	Duration   int        `gorm:"column:duration" json:"duration"`
	TimeUnit   TimeUnit   `gorm:"column:time_unit" json:"time_unit"`
	Temporary  bool       `gorm:"not null;default:false;column:temporary" json:"temporary"`
	ReturnDate *time.Time `gorm:"column:return_date" json:"return_date,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Item) TableName() string {
	return "item"
}
