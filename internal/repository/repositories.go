package repository

import "gorm.io/gorm"

// Repositories 服务层使用的全部仓储
type Repositories struct {
	Engagement EngagementRepository
	SlotScores SlotScoreRepository
	Contents   ContentRepository
	Accounts   AccountRepository
	Posts      PostRepository
	Calendar   CalendarRepository
	Conflicts  ConflictRepository
	Templates  TemplateRepository
}

// NewRepositories 基于同一个 *gorm.DB 创建全部仓储
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Engagement: NewEngagementRepository(db),
		SlotScores: NewSlotScoreRepository(db),
		Contents:   NewContentRepository(db),
		Accounts:   NewAccountRepository(db),
		Posts:      NewPostRepository(db),
		Calendar:   NewCalendarRepository(db),
		Conflicts:  NewConflictRepository(db),
		Templates:  NewTemplateRepository(db),
	}
}
