package repository

import (
	"context"
	"time"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// EngagementRepository 历史互动采样（只读）
type EngagementRepository interface {
	// ListSamples 查询组织+平台在 since 之后的全部采样，按时间升序
	ListSamples(ctx context.Context, organizationID string, platform model.Platform, since time.Time) ([]*model.EngagementSample, error)
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository 创建 EngagementRepository
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

func (r *engagementRepository) ListSamples(ctx context.Context, organizationID string, platform model.Platform, since time.Time) ([]*model.EngagementSample, error) {
	var samples []*model.EngagementSample
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ? AND scheduled_at >= ?", organizationID, platform, since.UTC()).
		Order("scheduled_at ASC, id ASC").
		Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}
