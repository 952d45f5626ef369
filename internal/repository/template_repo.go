package repository

import (
	"context"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// TemplateRepository 循环排期模板仓储
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *model.ScheduleTemplate) error
	GetTemplate(ctx context.Context, organizationID string, id uint64) (*model.ScheduleTemplate, error)
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建 TemplateRepository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) CreateTemplate(ctx context.Context, t *model.ScheduleTemplate) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *templateRepository) GetTemplate(ctx context.Context, organizationID string, id uint64) (*model.ScheduleTemplate, error) {
	var t model.ScheduleTemplate
	if err := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
