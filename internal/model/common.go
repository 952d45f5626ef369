package model

// PostStatus 排期帖子状态（发布方负责 SCHEDULED 之后的流转）
type PostStatus string

const (
	PostStatusScheduled PostStatus = "SCHEDULED"
	PostStatusPublished PostStatus = "PUBLISHED"
	PostStatusFailed    PostStatus = "FAILED"
	PostStatusCancelled PostStatus = "CANCELLED"
)

// EventStatus 日历事件状态，事件只会被取消不会被物理删除
type EventStatus string

const (
	EventStatusActive    EventStatus = "ACTIVE"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// 日历事件类型
const (
	EventTypePostScheduled = "post_scheduled"
	EventTypeCustom        = "custom"
)

// ConflictType 冲突规则类型
type ConflictType string

const (
	ConflictTimeOverlap    ConflictType = "TIME_OVERLAP"
	ConflictPlatformLimit  ConflictType = "PLATFORM_LIMIT"
	ConflictContentSimilar ConflictType = "CONTENT_SIMILAR"
)

// AllConflictTypes 全部规则，按固定顺序执行
var AllConflictTypes = []ConflictType{ConflictTimeOverlap, ConflictPlatformLimit, ConflictContentSimilar}

// ParseConflictType 解析规则类型
func ParseConflictType(s string) (ConflictType, bool) {
	for _, t := range AllConflictTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ConflictSeverity 冲突严重级别
type ConflictSeverity string

const (
	SeverityMedium   ConflictSeverity = "MEDIUM"
	SeverityHigh     ConflictSeverity = "HIGH"
	SeverityCritical ConflictSeverity = "CRITICAL"
)

// ConflictStatus 冲突状态，RESOLVED 由运营操作写入
type ConflictStatus string

const (
	ConflictStatusActive   ConflictStatus = "ACTIVE"
	ConflictStatusResolved ConflictStatus = "RESOLVED"
)

// Frequency 循环排期频率
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Distribution 批量排期时间分布策略
type Distribution string

const (
	DistributionEven     Distribution = "even"
	DistributionWeighted Distribution = "weighted"
	DistributionOptimal  Distribution = "optimal"
)
