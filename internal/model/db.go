package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// EngagementSample 历史互动采样，由外部分析采集器写入，本服务只读
type EngagementSample struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(64);not null;index:idx_sample_org_platform_time,priority:1;comment:组织ID"`
	Platform       Platform  `gorm:"column:platform;type:varchar(32);not null;index:idx_sample_org_platform_time,priority:2;comment:平台"`
	ScheduledAt    time.Time `gorm:"column:scheduled_at;type:timestamptz;not null;index:idx_sample_org_platform_time,priority:3;comment:发布时间(UTC)"`
	EngagementRate float64   `gorm:"column:engagement_rate;type:numeric(10,6);default:0;comment:互动率"`
	Reach          int64     `gorm:"column:reach;type:bigint;default:0;comment:触达人数"`
	Clicks         int64     `gorm:"column:clicks;type:bigint;default:0;comment:点击数"`
	CollectedAt    time.Time `gorm:"column:collected_at;type:timestamptz;default:now();comment:采集时间"`
}

// TimeSlotScore 星期×小时 时段评分，唯一键 (org, platform, day, hour, timezone)
type TimeSlotScore struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(64);not null;uniqueIndex:uq_slot_key,priority:1" json:"organization_id"`
	Platform       Platform  `gorm:"column:platform;type:varchar(32);not null;uniqueIndex:uq_slot_key,priority:2" json:"platform"`
	DayOfWeek      int       `gorm:"column:day_of_week;type:smallint;not null;uniqueIndex:uq_slot_key,priority:3" json:"day_of_week"`
	Hour           int       `gorm:"column:hour;type:smallint;not null;uniqueIndex:uq_slot_key,priority:4" json:"hour"`
	Timezone       string    `gorm:"column:timezone;type:varchar(64);not null;uniqueIndex:uq_slot_key,priority:5" json:"timezone"`
	Score          float64   `gorm:"column:score;type:numeric(10,6);not null" json:"score"`
	Confidence     float64   `gorm:"column:confidence;type:numeric(10,6);not null" json:"confidence"`
	SampleCount    int       `gorm:"column:sample_count;type:int;not null" json:"sample_count"`
	AvgEngagement  float64   `gorm:"column:avg_engagement;type:numeric(12,6);default:0" json:"avg_engagement"`
	AvgReach       float64   `gorm:"column:avg_reach;type:numeric(18,4);default:0" json:"avg_reach"`
	AvgClicks      float64   `gorm:"column:avg_clicks;type:numeric(18,4);default:0" json:"avg_clicks"`
	LastAnalyzedAt time.Time `gorm:"column:last_analyzed_at;type:timestamptz;not null" json:"last_analyzed_at"`
}

// ContentPiece 内容（只读）
type ContentPiece struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(64);not null;index"`
	Platform       Platform  `gorm:"column:platform;type:varchar(32);not null"`
	Title          string    `gorm:"column:title;type:varchar(256)"`
	Body           string    `gorm:"column:body;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;default:now()"`
}

// SocialAccount 社交账号（只读）
type SocialAccount struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(64);not null;index"`
	Platform       Platform  `gorm:"column:platform;type:varchar(32);not null"`
	Handle         string    `gorm:"column:handle;type:varchar(128);not null"`
	IsActive       bool      `gorm:"column:is_active;type:boolean;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;default:now()"`
}

// ScheduledPost 排期帖子。ScheduledAt 永远存 UTC，Timezone 仅用于展示
// IdempotencyKey = hash(content, account, batch)，防止批量重试时重复创建
type ScheduledPost struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrganizationID  string     `gorm:"column:organization_id;type:varchar(64);not null;index:idx_post_org_time,priority:1" json:"organization_id"`
	ContentPieceID  uint64     `gorm:"column:content_piece_id;type:bigint;not null" json:"content_piece_id"`
	SocialAccountID uint64     `gorm:"column:social_account_id;type:bigint;not null" json:"social_account_id"`
	Platform        Platform   `gorm:"column:platform;type:varchar(32);not null" json:"platform"`
	ScheduledAt     time.Time  `gorm:"column:scheduled_at;type:timestamptz;not null;index:idx_post_org_time,priority:2" json:"scheduled_at"`
	Timezone        string     `gorm:"column:timezone;type:varchar(64);not null;default:UTC" json:"timezone"`
	Status          PostStatus `gorm:"column:status;type:varchar(16);not null;default:SCHEDULED" json:"status"`
	IdempotencyKey  string     `gorm:"column:idempotency_key;type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	BatchID         string     `gorm:"column:batch_id;type:varchar(64);index" json:"batch_id"`
	TemplateID      *uint64    `gorm:"column:template_id;type:bigint;index" json:"template_id,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;autoUpdateTime" json:"updated_at"`
}

// CalendarEvent 日历事件，可关联一条排期帖子
type CalendarEvent struct {
	ID              uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID  string      `gorm:"column:organization_id;type:varchar(64);not null;index:idx_event_org_start,priority:1"`
	Title           string      `gorm:"column:title;type:varchar(256);not null"`
	Description     string      `gorm:"column:description;type:text"`
	EventType       string      `gorm:"column:event_type;type:varchar(32);not null;default:custom"`
	StartAt         time.Time   `gorm:"column:start_at;type:timestamptz;not null;index:idx_event_org_start,priority:2"`
	EndAt           *time.Time  `gorm:"column:end_at;type:timestamptz"`
	Timezone        string      `gorm:"column:timezone;type:varchar(64);not null;default:UTC"`
	Status          EventStatus `gorm:"column:status;type:varchar(16);not null;default:ACTIVE"`
	ScheduledPostID *uint64     `gorm:"column:scheduled_post_id;type:bigint;index"`
	CreatedAt       time.Time   `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// SchedulingConflict 检测到的排期冲突；RelatedPosts 为 jsonb 帖子ID数组
// Fingerprint = hash(org, type, 排序后的帖子ID)，用于重复检测时去重
type SchedulingConflict struct {
	ID             uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrganizationID string           `gorm:"column:organization_id;type:varchar(64);not null;index:idx_conflict_org_fp,priority:1" json:"organization_id"`
	Type           ConflictType     `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Severity       ConflictSeverity `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Status         ConflictStatus   `gorm:"column:status;type:varchar(16);not null;default:ACTIVE" json:"status"`
	ConflictAt     time.Time        `gorm:"column:conflict_at;type:timestamptz;not null" json:"conflict_at"`
	Platform       Platform         `gorm:"column:platform;type:varchar(32)" json:"platform,omitempty"`
	Description    string           `gorm:"column:description;type:text" json:"description"`
	RelatedPosts   datatypes.JSON   `gorm:"column:related_posts;type:jsonb;not null" json:"related_posts"`
	Fingerprint    string           `gorm:"column:fingerprint;type:varchar(64);not null;index:idx_conflict_org_fp,priority:2" json:"fingerprint"`
	ResolvedAt     *time.Time       `gorm:"column:resolved_at;type:timestamptz" json:"resolved_at,omitempty"`
	ResolvedBy     *string          `gorm:"column:resolved_by;type:varchar(64)" json:"resolved_by,omitempty"`
	ResolutionNote *string          `gorm:"column:resolution_note;type:text" json:"resolution_note,omitempty"`
	CreatedAt      time.Time        `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"created_at"`
}

// RelatedPostIDs 解析 related_posts
func (c *SchedulingConflict) RelatedPostIDs() []uint64 {
	var ids []uint64
	if len(c.RelatedPosts) == 0 {
		return ids
	}
	_ = json.Unmarshal(c.RelatedPosts, &ids)
	return ids
}

// ScheduleTemplate 循环排期模板
type ScheduleTemplate struct {
	ID             uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string         `gorm:"column:organization_id;type:varchar(64);not null;index"`
	Name           string         `gorm:"column:name;type:varchar(128)"`
	Frequency      Frequency      `gorm:"column:frequency;type:varchar(16);not null"`
	Interval       int            `gorm:"column:interval;type:int;not null;default:1"`
	DaysOfWeek     datatypes.JSON `gorm:"column:days_of_week;type:jsonb"`
	TimeSlots      datatypes.JSON `gorm:"column:time_slots;type:jsonb;not null"`
	Timezone       string         `gorm:"column:timezone;type:varchar(64);not null;default:UTC"`
	StartDate      time.Time      `gorm:"column:start_date;type:timestamptz;not null"`
	EndDate        *time.Time     `gorm:"column:end_date;type:timestamptz"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

// Days 解析 days_of_week
func (t *ScheduleTemplate) Days() []int {
	var days []int
	if len(t.DaysOfWeek) == 0 {
		return days
	}
	_ = json.Unmarshal(t.DaysOfWeek, &days)
	return days
}

// Slots 解析 time_slots
func (t *ScheduleTemplate) Slots() []string {
	var slots []string
	if len(t.TimeSlots) == 0 {
		return slots
	}
	_ = json.Unmarshal(t.TimeSlots, &slots)
	return slots
}

func (EngagementSample) TableName() string   { return "engagement_samples" }
func (TimeSlotScore) TableName() string      { return "time_slot_scores" }
func (ContentPiece) TableName() string       { return "content_pieces" }
func (SocialAccount) TableName() string      { return "social_accounts" }
func (ScheduledPost) TableName() string      { return "scheduled_posts" }
func (CalendarEvent) TableName() string      { return "calendar_events" }
func (SchedulingConflict) TableName() string { return "scheduling_conflicts" }
func (ScheduleTemplate) TableName() string   { return "schedule_templates" }
