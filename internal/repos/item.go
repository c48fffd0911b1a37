package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/types"
)

type ItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.Item) ([]*types.Item, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Item, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	repoLog := baseLog.With("repo", "ItemRepo")
	return &itemRepo{db: db, log: repoLog}
}

func (ir *itemRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.Item) ([]*types.Item, error) {
	conn := tx
	if conn == nil {
		conn = ir.db
	}
	if len(items) == 0 {
		return []*types.Item{}, nil
	}
	if err := conn.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (ir *itemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Item, error) {
	conn := tx
	if conn == nil {
		conn = ir.db
	}
	var result types.Item
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

func (ir *itemRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	conn := tx
	if conn == nil {
		conn = ir.db
	}
	return conn.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Item{}).Error
}
