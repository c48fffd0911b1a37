package types

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusIntent  TransactionStatus = "intent"
	TransactionStatusOpen    TransactionStatus = "open"
	TransactionStatusClosed  TransactionStatus = "closed"
	TransactionStatusCharged TransactionStatus = "charged"
)

// Transaction is a deposit held in escrow against a business. Status only
// moves intent→open (confirm), open→closed (release) or open→charged
// (capture); closed and charged are terminal. Charged never exceeds Amount.
type Transaction struct {
	ID                 uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Amount             int64             `gorm:"not null;column:amount" json:"amount"`
	Currency           string            `gorm:"not null;column:currency" json:"currency"`
	Status             TransactionStatus `gorm:"not null;index;column:status" json:"status"`
	BusinessID         uuid.UUID         `gorm:"type:uuid;not null;index;column:business_id" json:"business_id"`
	CustomerID         uuid.UUID         `gorm:"type:uuid;not null;index;column:customer_id" json:"customer_id"`
	ItemID             *uuid.UUID        `gorm:"type:uuid;column:item_id" json:"item_id,omitempty"`
	Description        string            `gorm:"column:description" json:"description"`
	OpenedAt           time.Time         `gorm:"not null;column:opened_at" json:"opened_at"`
	ReturnDate         *time.Time        `gorm:"column:return_date" json:"return_date,omitempty"`
	ClosedAt           *time.Time        `gorm:"column:closed_at" json:"closed_at,omitempty"`
	Charged            *int64            `gorm:"column:charged" json:"charged,omitempty"`
	ChargedDescription string            `gorm:"column:charged_description" json:"charged_description,omitempty"`
	HoldRef            string            `gorm:"not null;index;column:hold_ref" json:"-"`
	ReviewID           *uuid.UUID        `gorm:"type:uuid;column:review_id" json:"review_id,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusClosed || s == TransactionStatusCharged
}
