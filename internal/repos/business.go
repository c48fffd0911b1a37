package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/types"
)

type BusinessRepo interface {
	Create(ctx context.Context, tx *gorm.DB, businesses []*types.Business) ([]*types.Business, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Business, error)
}

type businessRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBusinessRepo(db *gorm.DB, baseLog *logger.Logger) BusinessRepo {
	repoLog := baseLog.With("repo", "BusinessRepo")
	return &businessRepo{db: db, log: repoLog}
}

func (br *businessRepo) Create(ctx context.Context, tx *gorm.DB, businesses []*types.Business) ([]*types.Business, error) {
	conn := tx
	if conn == nil {
		conn = br.db
	}
	if len(businesses) == 0 {
		return []*types.Business{}, nil
	}
	if err := conn.WithContext(ctx).Create(&businesses).Error; err != nil {
		return nil, err
	}
	return businesses, nil
}

func (br *businessRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Business, error) {
	conn := tx
	if conn == nil {
		conn = br.db
	}
	var result types.Business
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
