package repository

import (
	"context"
	"fmt"
	"time"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// EventFilter 日历事件查询条件；只返回 ACTIVE 事件，Types 为空表示全部类型
type EventFilter struct {
	OrganizationID string
	Start          time.Time
	End            time.Time
	Types          []string
}

// CalendarRepository 日历事件仓储
type CalendarRepository interface {
	CreateEvent(ctx context.Context, e *model.CalendarEvent) error
	GetEvent(ctx context.Context, id uint64) (*model.CalendarEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]*model.CalendarEvent, error)
	// MoveEvent 拖拽改期：事件与关联帖子在同一事务内改到相同的 UTC 时刻，只改仍为 SCHEDULED 的帖子
	MoveEvent(ctx context.Context, e *model.CalendarEvent, start time.Time, end *time.Time, timezone string) error
	// CancelEvent 取消事件，仍处于 SCHEDULED 的关联帖子一并取消
	CancelEvent(ctx context.Context, e *model.CalendarEvent) (postCancelled bool, err error)
}

type calendarRepository struct {
	db *gorm.DB
}

// NewCalendarRepository 创建 CalendarRepository
func NewCalendarRepository(db *gorm.DB) CalendarRepository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) CreateEvent(ctx context.Context, e *model.CalendarEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *calendarRepository) GetEvent(ctx context.Context, id uint64) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *calendarRepository) ListEvents(ctx context.Context, f EventFilter) ([]*model.CalendarEvent, error) {
	db := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", f.OrganizationID, model.EventStatusActive).
		Where("start_at >= ? AND start_at <= ?", f.Start.UTC(), f.End.UTC())
	if len(f.Types) > 0 {
		db = db.Where("event_type IN ?", f.Types)
	}
	var list []*model.CalendarEvent
	if err := db.Order("start_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *calendarRepository) MoveEvent(ctx context.Context, e *model.CalendarEvent, start time.Time, end *time.Time, timezone string) error {
	start = start.UTC()
	if end != nil {
		u := end.UTC()
		end = &u
	}
	now := time.Now().UTC()

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	// 1. 更新事件
	if err := tx.Model(&model.CalendarEvent{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"start_at":   start,
		"end_at":     end,
		"timezone":   timezone,
		"updated_at": now,
	}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("更新日历事件失败: %w, event_id: %d", err, e.ID)
	}

	// 2. 同步关联帖子
	if e.ScheduledPostID != nil {
		if err := tx.Model(&model.ScheduledPost{}).Where("id = ? AND status = ?", *e.ScheduledPostID, model.PostStatusScheduled).Updates(map[string]interface{}{
			"scheduled_at": start,
			"updated_at":   now,
		}).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("同步帖子时间失败: %w, post_id: %d", err, *e.ScheduledPostID)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	e.StartAt = start
	e.EndAt = end
	e.Timezone = timezone
	e.UpdatedAt = now
	return nil
}

func (r *calendarRepository) CancelEvent(ctx context.Context, e *model.CalendarEvent) (bool, error) {
	postCancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.CalendarEvent{}).Where("id = ?", e.ID).
			Update("status", model.EventStatusCancelled).Error; err != nil {
			return fmt.Errorf("取消日历事件失败: %w, event_id: %d", err, e.ID)
		}
		if e.ScheduledPostID == nil {
			return nil
		}
		res := tx.Model(&model.ScheduledPost{}).
			Where("id = ? AND status = ?", *e.ScheduledPostID, model.PostStatusScheduled).
			Update("status", model.PostStatusCancelled)
		if res.Error != nil {
			return fmt.Errorf("取消关联帖子失败: %w, post_id: %d", res.Error, *e.ScheduledPostID)
		}
		postCancelled = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	e.Status = model.EventStatusCancelled
	return postCancelled, nil
}
