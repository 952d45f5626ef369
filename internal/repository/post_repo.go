package repository

import (
	"context"
	"fmt"
	"time"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivePostView 冲突检测用的帖子视图（帖子 + 内容正文）
type ActivePostView struct {
	ID             uint64         `gorm:"column:id"`
	OrganizationID string         `gorm:"column:organization_id"`
	Platform       model.Platform `gorm:"column:platform"`
	ScheduledAt    time.Time      `gorm:"column:scheduled_at"`
	ContentPieceID uint64         `gorm:"column:content_piece_id"`
	Body           string         `gorm:"column:body"`
}

// PostFilter 帖子查询条件，时间区间为闭区间，Platform 为空表示不过滤
type PostFilter struct {
	OrganizationID string
	Start          time.Time
	End            time.Time
	Platform       model.Platform
}

// PostRepository 排期帖子仓储
type PostRepository interface {
	// CreatePostWithEvent 同一事务内写入帖子和关联的日历事件；
	// idempotency_key 已存在时不写入，post 被回填为已有记录，created 返回 false
	CreatePostWithEvent(ctx context.Context, post *model.ScheduledPost, event *model.CalendarEvent) (created bool, err error)
	GetPost(ctx context.Context, organizationID string, id uint64) (*model.ScheduledPost, error)
	// ListActivePosts 查询非 CANCELLED 的帖子，按 scheduled_at, id 升序
	ListActivePosts(ctx context.Context, f PostFilter) ([]*ActivePostView, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository 创建 PostRepository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) CreatePostWithEvent(ctx context.Context, post *model.ScheduledPost, event *model.CalendarEvent) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 写帖子，幂等键冲突时什么都不做
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(post)
		if res.Error != nil {
			return fmt.Errorf("保存帖子失败: %w", res.Error)
		}

		// 2. 重放：回填已有帖子，不再写事件
		if res.RowsAffected == 0 {
			if err := tx.Where("idempotency_key = ?", post.IdempotencyKey).First(post).Error; err != nil {
				return fmt.Errorf("查询已有帖子失败: %w, key: %s", err, post.IdempotencyKey)
			}
			return nil
		}
		created = true

		// 3. 写关联日历事件
		if event != nil {
			event.ScheduledPostID = &post.ID
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("保存日历事件失败: %w, post_id: %d", err, post.ID)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *postRepository) GetPost(ctx context.Context, organizationID string, id uint64) (*model.ScheduledPost, error) {
	var p model.ScheduledPost
	if err := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) ListActivePosts(ctx context.Context, f PostFilter) ([]*ActivePostView, error) {
	db := r.db.WithContext(ctx).
		Table("scheduled_posts AS p").
		Select("p.id, p.organization_id, p.platform, p.scheduled_at, p.content_piece_id, COALESCE(c.body, '') AS body").
		Joins("LEFT JOIN content_pieces AS c ON c.id = p.content_piece_id").
		Where("p.organization_id = ? AND p.status <> ?", f.OrganizationID, model.PostStatusCancelled).
		Where("p.scheduled_at >= ? AND p.scheduled_at <= ?", f.Start.UTC(), f.End.UTC())
	if f.Platform != "" {
		db = db.Where("p.platform = ?", f.Platform)
	}
	var views []*ActivePostView
	if err := db.Order("p.scheduled_at ASC, p.id ASC").Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}
