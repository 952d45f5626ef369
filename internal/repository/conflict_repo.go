package repository

import (
	"context"
	"fmt"
	"time"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// ConflictFilter 冲突查询条件，零值字段不参与过滤
type ConflictFilter struct {
	OrganizationID string
	Status         model.ConflictStatus
	Start          *time.Time
	End            *time.Time
}

// ConflictRepository 排期冲突仓储
type ConflictRepository interface {
	// SaveConflict 写入冲突；dedupe 为 true 时同指纹的 ACTIVE 冲突已存在则跳过，返回 false
	SaveConflict(ctx context.Context, c *model.SchedulingConflict, dedupe bool) (bool, error)
	ListConflicts(ctx context.Context, f ConflictFilter) ([]*model.SchedulingConflict, error)
}

type conflictRepository struct {
	db *gorm.DB
}

// NewConflictRepository 创建 ConflictRepository
func NewConflictRepository(db *gorm.DB) ConflictRepository {
	return &conflictRepository{db: db}
}

func (r *conflictRepository) SaveConflict(ctx context.Context, c *model.SchedulingConflict, dedupe bool) (bool, error) {
	db := r.db.WithContext(ctx)
	if dedupe {
		var count int64
		if err := db.Model(&model.SchedulingConflict{}).
			Where("organization_id = ? AND fingerprint = ? AND status = ?", c.OrganizationID, c.Fingerprint, model.ConflictStatusActive).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("查询冲突指纹失败: %w", err)
		}
		if count > 0 {
			return false, nil
		}
	}
	if err := db.Create(c).Error; err != nil {
		return false, fmt.Errorf("保存冲突失败: %w, type: %s", err, c.Type)
	}
	return true, nil
}

func (r *conflictRepository) ListConflicts(ctx context.Context, f ConflictFilter) ([]*model.SchedulingConflict, error) {
	db := r.db.WithContext(ctx).Where("organization_id = ?", f.OrganizationID)
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Start != nil {
		db = db.Where("conflict_at >= ?", f.Start.UTC())
	}
	if f.End != nil {
		db = db.Where("conflict_at <= ?", f.End.UTC())
	}
	var list []*model.SchedulingConflict
	if err := db.Order("conflict_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
