package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"SocialScheduler/internal/config"
	"SocialScheduler/internal/interfaces"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	modeBulk      = "bulk"
	modeRecurring = "recurring"
)

// ScheduleService 批量 / 循环排期生成
type ScheduleService struct {
	contents  repository.ContentRepository
	accounts  repository.AccountRepository
	posts     repository.PostRepository
	templates repository.TemplateRepository
	analyzer  *AnalyzerService
	detector  *ConflictService
	lock      interfaces.SchedulingLock
	cfg       config.SchedulingConfig
	logger    *logrus.Logger
}

// NewScheduleService 创建 ScheduleService；lock 为 nil 时不做组织级互斥
func NewScheduleService(repos repository.Repositories, analyzer *AnalyzerService, detector *ConflictService, lock interfaces.SchedulingLock, cfg config.SchedulingConfig, logger *logrus.Logger) *ScheduleService {
	if lock == nil {
		lock = repository.NewNoopLock()
	}
	return &ScheduleService{
		contents:  repos.Contents,
		accounts:  repos.Accounts,
		posts:     repos.Posts,
		templates: repos.Templates,
		analyzer:  analyzer,
		detector:  detector,
		lock:      lock,
		cfg:       cfg.Normalize(),
		logger:    logger,
	}
}

// BulkScheduleRequest POST /api/schedules/bulk
type BulkScheduleRequest struct {
	OrganizationID string    `json:"organization_id" binding:"required"`
	ContentIDs     []uint64  `json:"content_ids" binding:"required,min=1"`
	Platforms      []string  `json:"platforms" binding:"required,min=1"`
	Start          time.Time `json:"start" binding:"required"`
	End            time.Time `json:"end" binding:"required"`
	TimeSlots      []string  `json:"time_slots" binding:"omitempty,dive,timeofday"`
	Distribution   string    `json:"distribution" binding:"omitempty,oneof=even weighted optimal"`
	SpacingMinutes int       `json:"spacing_minutes" binding:"gte=0"`
	Timezone       string    `json:"timezone" binding:"omitempty,timezone"`
	BatchID        string    `json:"batch_id"`
}

// SkippedPairing 未能生成帖子的内容 / 账号组合
type SkippedPairing struct {
	ContentPieceID  uint64         `json:"content_piece_id"`
	SocialAccountID uint64         `json:"social_account_id,omitempty"`
	Platform        model.Platform `json:"platform"`
	Reason          string         `json:"reason"`
}

// GenerationReport 生成结果；Skipped 非空即部分失败
type GenerationReport struct {
	BatchID           string           `json:"batch_id,omitempty"`
	TemplateID        *uint64          `json:"template_id,omitempty"`
	CreatedPostIDs    []uint64         `json:"created_post_ids"`
	ExistingPostIDs   []uint64         `json:"existing_post_ids"`
	Skipped           []SkippedPairing `json:"skipped"`
	SkippedGapSlots   []string         `json:"skipped_gap_slots"`
	InstantsGenerated int              `json:"instants_generated"`
	ConflictsRecorded int              `json:"conflicts_recorded"`
	Truncated         bool             `json:"truncated"`
	NextStart         *time.Time       `json:"next_start,omitempty"`
}

func newReport() *GenerationReport {
	return &GenerationReport{
		CreatedPostIDs:  []uint64{},
		ExistingPostIDs: []uint64{},
		Skipped:         []SkippedPairing{},
		SkippedGapSlots: []string{},
	}
}

type bulkPlan struct {
	platforms    []model.Platform
	loc          *time.Location
	slots        []timeutil.TimeOfDay
	distribution model.Distribution
	start, end   time.Time
	spacing      time.Duration
}

// CreateBulkSchedule 把 contents × 同平台活跃账号 依次分配到生成的时刻上
func (s *ScheduleService) CreateBulkSchedule(ctx context.Context, req BulkScheduleRequest) (*GenerationReport, error) {
	began := time.Now()
	defer func() { generationDuration.WithLabelValues(modeBulk).Observe(time.Since(began).Seconds()) }()

	// 1. 参数校验（失败不产生任何写入）
	plan, err := s.validateBulk(req)
	if err != nil {
		return nil, err
	}
	contents, err := s.contents.ListContentByIDs(ctx, req.OrganizationID, req.ContentIDs)
	if err != nil {
		return nil, fmt.Errorf("查询内容失败: %w", err)
	}
	if len(contents) == 0 {
		return nil, notFound("content_piece", req.ContentIDs)
	}
	accounts, err := s.accounts.ListActiveAccounts(ctx, req.OrganizationID, plan.platforms)
	if err != nil {
		return nil, fmt.Errorf("查询社交账号失败: %w", err)
	}
	if len(accounts) == 0 {
		return nil, notFound("social_account", plan.platforms)
	}

	release, err := s.acquire(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer release()

	report := newReport()
	report.BatchID = req.BatchID
	if report.BatchID == "" {
		report.BatchID = uuid.NewString()
	}

	// 2. 生成候选时刻
	instants, err := s.bulkInstants(ctx, req.OrganizationID, plan, report)
	if err != nil {
		return nil, err
	}
	report.InstantsGenerated = len(instants)

	// 3. 提交前的冲突检测（仅提示，不阻断创建）
	advisory := s.reconcileScope(req.OrganizationID, plan.start, plan.end, plan.loc)
	if res, err := s.detector.detect(ctx, advisory); err != nil {
		s.logger.WithError(err).WithField("organization_id", req.OrganizationID).Warn("提交前冲突检测失败")
	} else {
		report.ConflictsRecorded += res.Created
	}

	// 4. 内容 × 账号 配对，逐个占用时刻
	next := 0
	for _, c := range contents {
		if !containsPlatform(plan.platforms, c.Platform) {
			report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, Platform: c.Platform, Reason: "platform not requested"})
			continue
		}
		matched := false
		for _, a := range accounts {
			if a.Platform != c.Platform {
				continue
			}
			matched = true
			if !a.Platform.MatchesHandle(a.Handle) {
				s.logger.WithFields(logrus.Fields{"social_account_id": a.ID, "handle": a.Handle}).Warn("账号 handle 不符合平台规则，跳过")
				report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, SocialAccountID: a.ID, Platform: c.Platform, Reason: "invalid handle"})
				continue
			}
			if next >= len(instants) {
				report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, SocialAccountID: a.ID, Platform: c.Platform, Reason: "no instants left"})
				continue
			}
			at := instants[next]
			next++
			if err := s.persist(ctx, modeBulk, report, c, a, at, plan.loc, idempotencyKey(c.ID, a.ID, report.BatchID), report.BatchID, nil); err != nil {
				return nil, err
			}
		}
		if !matched {
			s.logger.WithFields(logrus.Fields{"content_piece_id": c.ID, "platform": c.Platform}).Warn("内容没有同平台的活跃账号，跳过")
			report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, Platform: c.Platform, Reason: "no active account for platform"})
		}
	}

	// 5. 提交后对账检测
	if res, err := s.detector.detect(ctx, advisory); err != nil {
		s.logger.WithError(err).WithField("organization_id", req.OrganizationID).Warn("提交后冲突检测失败")
	} else {
		report.ConflictsRecorded += res.Created
	}

	s.logger.WithFields(logrus.Fields{
		"organization_id": req.OrganizationID,
		"batch_id":        report.BatchID,
		"instants":        len(instants),
		"created":         len(report.CreatedPostIDs),
		"existing":        len(report.ExistingPostIDs),
		"skipped":         len(report.Skipped),
	}).Info("批量排期完成")
	return report, nil
}

func (s *ScheduleService) validateBulk(req BulkScheduleRequest) (*bulkPlan, error) {
	if req.OrganizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	if len(req.ContentIDs) == 0 {
		return nil, invalid("content_ids", "at least one content piece is required")
	}
	if len(req.Platforms) == 0 {
		return nil, invalid("platforms", "at least one platform is required")
	}
	plan := &bulkPlan{start: req.Start.UTC(), end: req.End.UTC()}
	for _, name := range req.Platforms {
		p, ok := model.ParsePlatform(name)
		if !ok {
			return nil, unknownPlatform("platforms", name)
		}
		if !containsPlatform(plan.platforms, p) {
			plan.platforms = append(plan.platforms, p)
		}
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.Start.Before(req.End) {
		return nil, invalid("end", "start must be before end")
	}
	loc, err := s.location(req.Timezone)
	if err != nil {
		return nil, err
	}
	plan.loc = loc
	slots, err := timeutil.ParseTimesOfDay(req.TimeSlots)
	if err != nil {
		return nil, invalid("time_slots", "%v", err)
	}
	plan.slots = slots

	switch d := model.Distribution(req.Distribution); d {
	case "", model.DistributionEven:
		plan.distribution = model.DistributionEven
	case model.DistributionWeighted, model.DistributionOptimal:
		plan.distribution = d
	default:
		return nil, invalid("distribution", "unknown distribution %q", req.Distribution)
	}
	if plan.distribution != model.DistributionOptimal && len(slots) == 0 {
		return nil, invalid("time_slots", "required for %s distribution", plan.distribution)
	}
	if req.SpacingMinutes < 0 {
		return nil, invalid("spacing_minutes", "must not be negative")
	}
	plan.spacing = time.Duration(req.SpacingMinutes) * time.Minute
	return plan, nil
}

func (s *ScheduleService) bulkInstants(ctx context.Context, org string, plan *bulkPlan, report *GenerationReport) ([]time.Time, error) {
	limit := s.cfg.MaxGeneratedInstances
	var (
		instants  []time.Time
		truncated bool
		placed    bool
	)
	if plan.distribution == model.DistributionOptimal {
		scores, err := s.optimalSlots(ctx, org, plan.platforms[0], plan.loc)
		if err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			instants, truncated = optimalInstants(plan.start, plan.end, plan.loc, scores, limit)
			placed = true
		} else if len(plan.slots) == 0 {
			return nil, invalid("time_slots", "no engagement data for optimal distribution, time slots are required")
		}
	}
	if !placed {
		var gaps []string
		instants, gaps, truncated = evenInstants(plan.start, plan.end, plan.loc, plan.slots, limit)
		report.SkippedGapSlots = append(report.SkippedGapSlots, gaps...)
	}
	report.Truncated = truncated
	return applySpacing(instants, plan.spacing), nil
}

// optimalSlots 取已存评分，没有则现算一次
func (s *ScheduleService) optimalSlots(ctx context.Context, org string, p model.Platform, loc *time.Location) ([]*model.TimeSlotScore, error) {
	scores, err := s.analyzer.TopSlots(ctx, org, string(p), loc.String(), s.cfg.OptimalTopN)
	if err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		return scores, nil
	}
	scores, err = s.analyzer.Analyze(ctx, AnalyzeRequest{OrganizationID: org, Platform: string(p), Timezone: loc.String()})
	if err != nil {
		return nil, err
	}
	if len(scores) > s.cfg.OptimalTopN {
		scores = scores[:s.cfg.OptimalTopN]
	}
	return scores, nil
}

// evenInstants 逐个本地日期展开时段，保留落在 [start,end] 内的时刻；DST 间隙时段跳过并返回
func evenInstants(start, end time.Time, loc *time.Location, slots []timeutil.TimeOfDay, limit int) ([]time.Time, []string, bool) {
	ordered := append([]timeutil.TimeOfDay(nil), slots...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Hour != ordered[j].Hour {
			return ordered[i].Hour < ordered[j].Hour
		}
		return ordered[i].Minute < ordered[j].Minute
	})

	var (
		out  []time.Time
		gaps []string
		seen = make(map[time.Time]bool)
	)
	last := timeutil.DateOf(end, loc)
	for d := timeutil.DateOf(start, loc); !d.After(last); d = d.AddDays(1) {
		for _, tod := range ordered {
			t, ok := timeutil.LocalToUTC(d, tod, loc)
			if !ok {
				gaps = append(gaps, fmt.Sprintf("%s %s %s", d, tod, loc))
				continue
			}
			if t.Before(start) || t.After(end) || seen[t] {
				continue
			}
			if len(out) >= limit {
				return out, gaps, true
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, gaps, false
}

// optimalInstants 按评分顺序轮询前 N 个 (星期, 小时)，每轮各时段前进到下一个同星期日期
// 整轮都超出 end 时停止
func optimalInstants(start, end time.Time, loc *time.Location, all []*model.TimeSlotScore, limit int) ([]time.Time, bool) {
	scores := make([]*model.TimeSlotScore, 0, len(all))
	for _, sc := range all {
		if sc.DayOfWeek >= 0 && sc.DayOfWeek <= 6 && sc.Hour >= 0 && sc.Hour <= 23 {
			scores = append(scores, sc)
		}
	}
	firsts := make([]timeutil.Date, len(scores))
	startDate := timeutil.DateOf(start, loc)
	for i, sc := range scores {
		d := startDate
		for int(d.Weekday()) != sc.DayOfWeek {
			d = d.AddDays(1)
		}
		if t, ok := timeutil.LocalToUTC(d, timeutil.TimeOfDay{Hour: sc.Hour}, loc); ok && t.Before(start) {
			d = d.AddDays(7)
		}
		firsts[i] = d
	}

	var out []time.Time
	seen := make(map[time.Time]bool)
	last := timeutil.DateOf(end, loc)
	for round := 0; ; round++ {
		inRange := false
		for i, sc := range scores {
			d := firsts[i].AddDays(7 * round)
			if d.After(last) {
				continue
			}
			inRange = true
			t, ok := timeutil.LocalToUTC(d, timeutil.TimeOfDay{Hour: sc.Hour}, loc)
			if !ok || t.Before(start) || t.After(end) || seen[t] {
				continue
			}
			if len(out) >= limit {
				return out, true
			}
			seen[t] = true
			out = append(out, t)
		}
		if !inRange {
			return out, false
		}
	}
}

// applySpacing 丢弃与已保留时刻间隔小于 spacing 的时刻
func applySpacing(instants []time.Time, spacing time.Duration) []time.Time {
	if spacing <= 0 || len(instants) < 2 {
		return instants
	}
	kept := make([]time.Time, 0, len(instants))
	for _, t := range instants {
		ok := true
		for _, k := range kept {
			if absDuration(t.Sub(k)) < spacing {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, t)
		}
	}
	return kept
}

// persist 写入帖子 + 日历事件，并把结果记入 report
func (s *ScheduleService) persist(ctx context.Context, mode string, report *GenerationReport, c *model.ContentPiece, a *model.SocialAccount, at time.Time, loc *time.Location, key, batchID string, templateID *uint64) error {
	post := &model.ScheduledPost{
		OrganizationID:  c.OrganizationID,
		ContentPieceID:  c.ID,
		SocialAccountID: a.ID,
		Platform:        a.Platform,
		ScheduledAt:     at.UTC(),
		Timezone:        loc.String(),
		Status:          model.PostStatusScheduled,
		IdempotencyKey:  key,
		BatchID:         batchID,
		TemplateID:      templateID,
	}
	title := c.Title
	if title == "" {
		title = fmt.Sprintf("%s post #%d", a.Platform, c.ID)
	}
	event := &model.CalendarEvent{
		OrganizationID: c.OrganizationID,
		Title:          title,
		EventType:      model.EventTypePostScheduled,
		StartAt:        at.UTC(),
		Timezone:       loc.String(),
		Status:         model.EventStatusActive,
	}
	created, err := s.posts.CreatePostWithEvent(ctx, post, event)
	if err != nil {
		return fmt.Errorf("创建排期帖子失败: %w, content_piece_id: %d, social_account_id: %d", err, c.ID, a.ID)
	}
	if created {
		report.CreatedPostIDs = append(report.CreatedPostIDs, post.ID)
		postsCreated.WithLabelValues(mode).Inc()
	} else {
		report.ExistingPostIDs = append(report.ExistingPostIDs, post.ID)
		postsReplayed.WithLabelValues(mode).Inc()
	}
	return nil
}

func (s *ScheduleService) reconcileScope(org string, start, end time.Time, loc *time.Location) detectScope {
	return detectScope{
		organizationID: org,
		start:          start,
		end:            end,
		checks:         []model.ConflictType{model.ConflictTimeOverlap, model.ConflictPlatformLimit},
		loc:            loc,
	}
}

// acquire 获取组织级排期锁；返回的 release 不会失败，只记录日志
func (s *ScheduleService) acquire(ctx context.Context, org string) (func(), error) {
	rel, err := s.lock.Acquire(ctx, org)
	if err != nil {
		if errors.Is(err, interfaces.ErrLockHeld) {
			return nil, &BusyError{OrganizationID: org}
		}
		return nil, err
	}
	return func() {
		if err := rel(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).WithField("organization_id", org).Warn("释放排期锁失败")
		}
	}, nil
}

func (s *ScheduleService) location(name string) (*time.Location, error) {
	if name == "" {
		name = s.cfg.DefaultTimezone
	}
	loc, err := timeutil.LoadLocation(name)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}
	return loc, nil
}

// idempotencyKey sha256(content|account|batch)
func idempotencyKey(contentID, accountID uint64, batch string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", contentID, accountID, batch)))
	return hex.EncodeToString(sum[:])
}

func containsPlatform(list []model.Platform, p model.Platform) bool {
	for _, x := range list {
		if x == p {
			return true
		}
	}
	return false
}
