package repository

import (
	"context"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// ContentRepository 内容仓储（只读）
type ContentRepository interface {
	// ListContentByIDs 按 id 升序返回组织内存在的内容，不存在的 id 直接忽略
	ListContentByIDs(ctx context.Context, organizationID string, ids []uint64) ([]*model.ContentPiece, error)
}

// AccountRepository 社交账号仓储（只读）
type AccountRepository interface {
	// ListActiveAccounts 查询组织在指定平台下的活跃账号，按 id 升序；platforms 为空表示全部平台
	ListActiveAccounts(ctx context.Context, organizationID string, platforms []model.Platform) ([]*model.SocialAccount, error)
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository 创建 ContentRepository
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

// NewAccountRepository 创建 AccountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) ListContentByIDs(ctx context.Context, organizationID string, ids []uint64) ([]*model.ContentPiece, error) {
	if len(ids) == 0 {
		return []*model.ContentPiece{}, nil
	}
	var list []*model.ContentPiece
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", organizationID, ids).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *contentRepository) ListActiveAccounts(ctx context.Context, organizationID string, platforms []model.Platform) ([]*model.SocialAccount, error) {
	db := r.db.WithContext(ctx).Where("organization_id = ? AND is_active = ?", organizationID, true)
	if len(platforms) > 0 {
		db = db.Where("platform IN ?", platforms)
	}
	var list []*model.SocialAccount
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
