package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/types"
)

type TransactionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, transactions []*types.Transaction) ([]*types.Transaction, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Transaction, error)
	ListByBusiness(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) ([]*types.Transaction, error)
	ListByCustomer(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) ([]*types.Transaction, error)
	// AdvanceStatus is the compare-and-swap every lifecycle transition goes
	// through: the row is updated only while its status still equals from.
	// Returns the number of rows moved (0 or 1).
	AdvanceStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from types.TransactionStatus, fields map[string]interface{}) (int64, error)
	SetReviewID(ctx context.Context, tx *gorm.DB, id uuid.UUID, reviewID *uuid.UUID) error
	DeleteIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.TransactionStatus) (int64, error)
}

type transactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	repoLog := baseLog.With("repo", "TransactionRepo")
	return &transactionRepo{db: db, log: repoLog}
}

func (tr *transactionRepo) Create(ctx context.Context, tx *gorm.DB, transactions []*types.Transaction) ([]*types.Transaction, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	if len(transactions) == 0 {
		return []*types.Transaction{}, nil
	}
	if err := conn.WithContext(ctx).Create(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (tr *transactionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Transaction, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	var result types.Transaction
	if err := conn.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (tr *transactionRepo) ListByBusiness(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) ([]*types.Transaction, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	var results []*types.Transaction
	if err := conn.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("opened_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (tr *transactionRepo) ListByCustomer(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) ([]*types.Transaction, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	var results []*types.Transaction
	if err := conn.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("opened_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (tr *transactionRepo) AdvanceStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from types.TransactionStatus, fields map[string]interface{}) (int64, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	res := conn.WithContext(ctx).
		Model(&types.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (tr *transactionRepo) SetReviewID(ctx context.Context, tx *gorm.DB, id uuid.UUID, reviewID *uuid.UUID) error {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	return conn.WithContext(ctx).
		Model(&types.Transaction{}).
		Where("id = ?", id).
		Update("review_id", reviewID).Error
}

func (tr *transactionRepo) DeleteIfStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.TransactionStatus) (int64, error) {
	conn := tx
	if conn == nil {
		conn = tr.db
	}
	res := conn.WithContext(ctx).
		Where("id = ? AND status = ?", id, status).
		Delete(&types.Transaction{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
