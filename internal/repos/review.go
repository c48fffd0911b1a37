package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/types"
)

type ReviewRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reviews []*types.Review) ([]*types.Review, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Review, error)
	GetByTransactionID(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*types.Review, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type reviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRepo {
	repoLog := baseLog.With("repo", "ReviewRepo")
	return &reviewRepo{db: db, log: repoLog}
}

func (rr *reviewRepo) Create(ctx context.Context, tx *gorm.DB, reviews []*types.Review) ([]*types.Review, error) {
	conn := tx
	if conn == nil {
		conn = rr.db
	}
	if len(reviews) == 0 {
		return []*types.Review{}, nil
	}
	if err := conn.WithContext(ctx).Create(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func (rr *reviewRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Review, error) {
	conn := tx
	if conn == nil {
		conn = rr.db
	}
	var result types.Review
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

func (rr *reviewRepo) GetByTransactionID(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*types.Review, error) {
	conn := tx
	if conn == nil {
		conn = rr.db
	}
	var result types.Review
	if err := conn.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (rr *reviewRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	conn := tx
	if conn == nil {
		conn = rr.db
	}
	return conn.WithContext(ctx).
		Model(&types.Review{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (rr *reviewRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	conn := tx
	if conn == nil {
		conn = rr.db
	}
	return conn.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Review{}).Error
}
