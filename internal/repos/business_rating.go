package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/ratings"
	"github.com/yungbote/depositly-backend/internal/types"
)

type BusinessRatingRepo interface {
	// GetOrCreate returns the rating row for a business, creating the neutral
	// starting row on first touch.
	GetOrCreate(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) (*types.BusinessRating, error)
	Get(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) (*types.BusinessRating, error)
	Save(ctx context.Context, tx *gorm.DB, rating *types.BusinessRating) error
}

type businessRatingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBusinessRatingRepo(db *gorm.DB, baseLog *logger.Logger) BusinessRatingRepo {
	repoLog := baseLog.With("repo", "BusinessRatingRepo")
	return &businessRatingRepo{db: db, log: repoLog}
}

func (br *businessRatingRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) (*types.BusinessRating, error) {
	conn := tx
	if conn == nil {
		conn = br.db
	}
	existing, err := br.Get(ctx, conn, businessID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	row := &types.BusinessRating{
		BusinessID:   businessID,
		Overall:      ratings.NeutralScore,
		ChargedScore: ratings.NeutralScore,
	}
	if err := conn.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (br *businessRatingRepo) Get(ctx context.Context, tx *gorm.DB, businessID uuid.UUID) (*types.BusinessRating, error) {
	conn := tx
	if conn == nil {
		conn = br.db
	}
	var result types.BusinessRating
	if err := conn.WithContext(ctx).
		Where("business_id = ?", businessID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (br *businessRatingRepo) Save(ctx context.Context, tx *gorm.DB, rating *types.BusinessRating) error {
	conn := tx
	if conn == nil {
		conn = br.db
	}
	return conn.WithContext(ctx).Save(rating).Error
}
