package repository

import (
	"context"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlotScoreRepository 时段评分仓储，分析器独占写入
type SlotScoreRepository interface {
	// UpsertScores 按唯一键 (org, platform, day, hour, timezone) 无条件覆盖
	UpsertScores(ctx context.Context, scores []*model.TimeSlotScore) error
	// ListTopScores 按 score 降序、day/hour 升序取前 limit 个
	ListTopScores(ctx context.Context, organizationID string, platform model.Platform, timezone string, limit int) ([]*model.TimeSlotScore, error)
}

type slotScoreRepository struct {
	db *gorm.DB
}

// NewSlotScoreRepository 创建 SlotScoreRepository
func NewSlotScoreRepository(db *gorm.DB) SlotScoreRepository {
	return &slotScoreRepository{db: db}
}

func (r *slotScoreRepository) UpsertScores(ctx context.Context, scores []*model.TimeSlotScore) error {
	if len(scores) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"}, {Name: "platform"}, {Name: "day_of_week"}, {Name: "hour"}, {Name: "timezone"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "confidence", "sample_count", "avg_engagement", "avg_reach", "avg_clicks", "last_analyzed_at",
		}),
	}).Create(&scores).Error
}

func (r *slotScoreRepository) ListTopScores(ctx context.Context, organizationID string, platform model.Platform, timezone string, limit int) ([]*model.TimeSlotScore, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var scores []*model.TimeSlotScore
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ? AND timezone = ?", organizationID, platform, timezone).
		Order("score DESC, day_of_week ASC, hour ASC").
		Limit(limit).
		Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}
