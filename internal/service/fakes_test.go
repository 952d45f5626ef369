package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SocialScheduler/internal/config"
	"SocialScheduler/internal/interfaces"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

// fakeStore 内存实现全部仓储接口
type fakeStore struct {
	mu        sync.Mutex
	nextID    uint64
	samples   []*model.EngagementSample
	scores    []*model.TimeSlotScore
	contents  []*model.ContentPiece
	accounts  []*model.SocialAccount
	posts     []*model.ScheduledPost
	events    []*model.CalendarEvent
	conflicts []*model.SchedulingConflict
	templates []*model.ScheduleTemplate
}

func newFakeStore() *fakeStore { return &fakeStore{nextID: 1} }

func (s *fakeStore) repos() repository.Repositories {
	return repository.Repositories{
		Engagement: s, SlotScores: s, Contents: s, Accounts: s,
		Posts: s, Calendar: s, Conflicts: s, Templates: s,
	}
}

func (s *fakeStore) id() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

// ---- 测试数据构造 ----

func (s *fakeStore) addContent(org string, p model.Platform, body string) *model.ContentPiece {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &model.ContentPiece{ID: s.id(), OrganizationID: org, Platform: p, Title: "content", Body: body}
	s.contents = append(s.contents, c)
	return c
}

func (s *fakeStore) addAccount(org string, p model.Platform, active bool) *model.SocialAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &model.SocialAccount{ID: s.id(), OrganizationID: org, Platform: p, Handle: "acct", IsActive: active}
	s.accounts = append(s.accounts, a)
	return a
}

func (s *fakeStore) addPost(org string, p model.Platform, at time.Time, contentID uint64) *model.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	post := &model.ScheduledPost{
		ID: id, OrganizationID: org, Platform: p, ScheduledAt: at.UTC(), ContentPieceID: contentID,
		Status: model.PostStatusScheduled, IdempotencyKey: fmt.Sprintf("seed-%d", id), Timezone: "UTC",
	}
	s.posts = append(s.posts, post)
	return post
}

func (s *fakeStore) addSample(org string, p model.Platform, at time.Time, engagement float64, reach, clicks int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, &model.EngagementSample{
		ID: s.id(), OrganizationID: org, Platform: p, ScheduledAt: at.UTC(),
		EngagementRate: engagement, Reach: reach, Clicks: clicks,
	})
}

func (s *fakeStore) post(id uint64) *model.ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *fakeStore) eventForPost(postID uint64) *model.CalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ScheduledPostID != nil && *e.ScheduledPostID == postID {
			return e
		}
	}
	return nil
}

// ---- EngagementRepository ----

func (s *fakeStore) ListSamples(_ context.Context, org string, p model.Platform, since time.Time) ([]*model.EngagementSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EngagementSample
	for _, smp := range s.samples {
		if smp.OrganizationID == org && smp.Platform == p && !smp.ScheduledAt.Before(since) {
			out = append(out, smp)
		}
	}
	return out, nil
}

// ---- SlotScoreRepository ----

func (s *fakeStore) UpsertScores(_ context.Context, scores []*model.TimeSlotScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scores {
		replaced := false
		for i, cur := range s.scores {
			if cur.OrganizationID == sc.OrganizationID && cur.Platform == sc.Platform &&
				cur.DayOfWeek == sc.DayOfWeek && cur.Hour == sc.Hour && cur.Timezone == sc.Timezone {
				cp := *sc
				cp.ID = cur.ID
				s.scores[i] = &cp
				replaced = true
				break
			}
		}
		if !replaced {
			cp := *sc
			cp.ID = s.id()
			s.scores = append(s.scores, &cp)
		}
	}
	return nil
}

func (s *fakeStore) ListTopScores(_ context.Context, org string, p model.Platform, tz string, limit int) ([]*model.TimeSlotScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TimeSlotScore
	for _, sc := range s.scores {
		if sc.OrganizationID == org && sc.Platform == p && sc.Timezone == tz {
			out = append(out, sc)
		}
	}
	SortSlotScores(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- ContentRepository / AccountRepository ----

func (s *fakeStore) ListContentByIDs(_ context.Context, org string, ids []uint64) ([]*model.ContentPiece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*model.ContentPiece
	for _, c := range s.contents {
		if c.OrganizationID == org && want[c.ID] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListActiveAccounts(_ context.Context, org string, platforms []model.Platform) ([]*model.SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SocialAccount
	for _, a := range s.accounts {
		if a.OrganizationID != org || !a.IsActive {
			continue
		}
		if len(platforms) > 0 && !containsPlatform(platforms, a.Platform) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- PostRepository ----

func (s *fakeStore) CreatePostWithEvent(_ context.Context, post *model.ScheduledPost, event *model.CalendarEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.IdempotencyKey == post.IdempotencyKey {
			*post = *p
			return false, nil
		}
	}
	post.ID = s.id()
	cp := *post
	s.posts = append(s.posts, &cp)
	if event != nil {
		event.ID = s.id()
		pid := post.ID
		event.ScheduledPostID = &pid
		ecp := *event
		s.events = append(s.events, &ecp)
	}
	return true, nil
}

func (s *fakeStore) GetPost(_ context.Context, org string, id uint64) (*model.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == id && p.OrganizationID == org {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) ListActivePosts(_ context.Context, f repository.PostFilter) ([]*repository.ActivePostView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bodies := make(map[uint64]string)
	for _, c := range s.contents {
		bodies[c.ID] = c.Body
	}
	var out []*repository.ActivePostView
	for _, p := range s.posts {
		if p.OrganizationID != f.OrganizationID || p.Status == model.PostStatusCancelled {
			continue
		}
		if p.ScheduledAt.Before(f.Start) || p.ScheduledAt.After(f.End) {
			continue
		}
		if f.Platform != "" && p.Platform != f.Platform {
			continue
		}
		out = append(out, &repository.ActivePostView{
			ID: p.ID, OrganizationID: p.OrganizationID, Platform: p.Platform,
			ScheduledAt: p.ScheduledAt, ContentPieceID: p.ContentPieceID, Body: bodies[p.ContentPieceID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ---- CalendarRepository ----

func (s *fakeStore) CreateEvent(_ context.Context, e *model.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *fakeStore) GetEvent(_ context.Context, id uint64) (*model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) ListEvents(_ context.Context, f repository.EventFilter) ([]*model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CalendarEvent
	for _, e := range s.events {
		if e.OrganizationID != f.OrganizationID || e.Status != model.EventStatusActive {
			continue
		}
		if e.StartAt.Before(f.Start) || e.StartAt.After(f.End) {
			continue
		}
		if len(f.Types) > 0 {
			match := false
			for _, t := range f.Types {
				match = match || t == e.EventType
			}
			if !match {
				continue
			}
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *fakeStore) MoveEvent(_ context.Context, e *model.CalendarEvent, start time.Time, end *time.Time, tz string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.events {
		if stored.ID != e.ID {
			continue
		}
		stored.StartAt = start.UTC()
		stored.EndAt = end
		stored.Timezone = tz
		if stored.ScheduledPostID != nil {
			for _, p := range s.posts {
				if p.ID == *stored.ScheduledPostID && p.Status == model.PostStatusScheduled {
					p.ScheduledAt = start.UTC()
				}
			}
		}
	}
	e.StartAt, e.EndAt, e.Timezone = start.UTC(), end, tz
	return nil
}

func (s *fakeStore) CancelEvent(_ context.Context, e *model.CalendarEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := false
	for _, stored := range s.events {
		if stored.ID != e.ID {
			continue
		}
		stored.Status = model.EventStatusCancelled
		if stored.ScheduledPostID != nil {
			for _, p := range s.posts {
				if p.ID == *stored.ScheduledPostID && p.Status == model.PostStatusScheduled {
					p.Status = model.PostStatusCancelled
					cancelled = true
				}
			}
		}
	}
	e.Status = model.EventStatusCancelled
	return cancelled, nil
}

// ---- ConflictRepository ----

func (s *fakeStore) SaveConflict(_ context.Context, c *model.SchedulingConflict, dedupe bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupe {
		for _, cur := range s.conflicts {
			if cur.OrganizationID == c.OrganizationID && cur.Fingerprint == c.Fingerprint && cur.Status == model.ConflictStatusActive {
				return false, nil
			}
		}
	}
	c.ID = s.id()
	cp := *c
	s.conflicts = append(s.conflicts, &cp)
	return true, nil
}

func (s *fakeStore) ListConflicts(_ context.Context, f repository.ConflictFilter) ([]*model.SchedulingConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SchedulingConflict
	for _, c := range s.conflicts {
		if c.OrganizationID != f.OrganizationID || (f.Status != "" && c.Status != f.Status) {
			continue
		}
		if (f.Start != nil && c.ConflictAt.Before(*f.Start)) || (f.End != nil && c.ConflictAt.After(*f.End)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ---- TemplateRepository ----

func (s *fakeStore) CreateTemplate(_ context.Context, t *model.ScheduleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	cp := *t
	s.templates = append(s.templates, &cp)
	return nil
}

func (s *fakeStore) GetTemplate(_ context.Context, org string, id uint64) (*model.ScheduleTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.ID == id && t.OrganizationID == org {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// heldLock 永远处于被占用状态
type heldLock struct{}

func (heldLock) Acquire(context.Context, string) (interfaces.ReleaseFunc, error) {
	return nil, interfaces.ErrLockHeld
}

type testEnv struct {
	store     *fakeStore
	analyzer  *AnalyzerService
	detector  *ConflictService
	schedules *ScheduleService
	calendar  *CalendarService
	logger    *logrus.Logger
}

var testNow = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(lock interfaces.SchedulingLock) *testEnv {
	return newTestEnvWithConfig(lock, config.DefaultSchedulingConfig(), config.DefaultConflictConfig())
}

func newTestEnvWithConfig(lock interfaces.SchedulingLock, sched config.SchedulingConfig, conflicts config.ConflictConfig) *testEnv {
	logger, _ := test.NewNullLogger()
	store := newFakeStore()
	repos := store.repos()
	analyzer := NewAnalyzerService(repos, config.DefaultAnalyzerConfig(), logger)
	analyzer.now = func() time.Time { return testNow }
	detector := NewConflictService(repos, conflicts, logger)
	schedules := NewScheduleService(repos, analyzer, detector, lock, sched, logger)
	return &testEnv{
		store:     store,
		analyzer:  analyzer,
		detector:  detector,
		schedules: schedules,
		calendar:  NewCalendarService(repos, detector, logger),
		logger:    logger,
	}
}
