package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"SocialScheduler/internal/model"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/sirupsen/logrus"
)

// RecurringScheduleRequest POST /api/schedules/recurring
// 带 template_id 时按已存模板生成，Start 作为续页起点（取上次返回的 next_start）
type RecurringScheduleRequest struct {
	OrganizationID string     `json:"organization_id" binding:"required"`
	TemplateID     *uint64    `json:"template_id"`
	Name           string     `json:"name"`
	ContentIDs     []uint64   `json:"content_ids" binding:"required,min=1"`
	Frequency      string     `json:"frequency" binding:"omitempty,oneof=daily weekly monthly"`
	Interval       int        `json:"interval" binding:"gte=0"`
	DaysOfWeek     []int      `json:"days_of_week" binding:"omitempty,dive,min=0,max=6"`
	TimeSlots      []string   `json:"time_slots" binding:"omitempty,dive,timeofday"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end"`
	Timezone       string     `json:"timezone" binding:"omitempty,timezone"`
}

// recurrenceRule 日期展开规则；days 为空表示不限星期
type recurrenceRule struct {
	frequency model.Frequency
	interval  int
	days      map[time.Weekday]bool
}

func (r recurrenceRule) matches(d timeutil.Date) bool {
	return len(r.days) == 0 || r.days[d.Weekday()]
}

// walkRecurrence 从 anchor 起按规则升序枚举日期，直到 through（含）或 visit 返回 false
//
//	daily:   每 interval 天
//	weekly:  以 anchor 起的 7 天为一块，块内匹配星期的日期全部输出，然后跳 interval 周
//	monthly: anchor + k*interval 个月（月末截断）；有星期限制时输出锚点起 7 天内匹配的日期
func walkRecurrence(rule recurrenceRule, anchor, through timeutil.Date, visit func(timeutil.Date) bool) {
	interval := rule.interval
	if interval < 1 {
		interval = 1
	}
	switch rule.frequency {
	case model.FrequencyDaily:
		for d := anchor; !d.After(through); d = d.AddDays(interval) {
			if rule.matches(d) && !visit(d) {
				return
			}
		}
	case model.FrequencyWeekly:
		for block := anchor; !block.After(through); block = block.AddDays(7 * interval) {
			for i := 0; i < 7; i++ {
				d := block.AddDays(i)
				if d.After(through) {
					return
				}
				if rule.matches(d) && !visit(d) {
					return
				}
			}
		}
	case model.FrequencyMonthly:
		for k := 0; ; k++ {
			a := anchor.AddMonths(k * interval)
			if a.After(through) {
				return
			}
			if len(rule.days) == 0 {
				if !visit(a) {
					return
				}
				continue
			}
			for i := 0; i < 7; i++ {
				d := a.AddDays(i)
				if d.After(through) {
					break
				}
				if rule.matches(d) && !visit(d) {
					return
				}
			}
		}
	}
}

type recurringPlan struct {
	template *model.ScheduleTemplate
	rule     recurrenceRule
	loc      *time.Location
	slots    []timeutil.TimeOfDay
	anchor   timeutil.Date
	from     time.Time
	end      time.Time
	through  timeutil.Date
}

// CreateRecurringSchedule 按频率规则展开 日期×时段，内容轮询分配
func (s *ScheduleService) CreateRecurringSchedule(ctx context.Context, req RecurringScheduleRequest) (*GenerationReport, error) {
	began := time.Now()
	defer func() { generationDuration.WithLabelValues(modeRecurring).Observe(time.Since(began).Seconds()) }()

	if req.OrganizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	if len(req.ContentIDs) == 0 {
		return nil, invalid("content_ids", "at least one content piece is required")
	}

	// 1. 模板：已有则加载，否则校验请求并在生成前落库
	var (
		plan *recurringPlan
		err  error
	)
	if req.TemplateID != nil {
		plan, err = s.loadTemplatePlan(ctx, req)
	} else {
		plan, err = s.buildTemplatePlan(req)
	}
	if err != nil {
		return nil, err
	}

	// 2. 内容与账号（每个平台取 id 最小的活跃账号）
	contents, err := s.contents.ListContentByIDs(ctx, req.OrganizationID, req.ContentIDs)
	if err != nil {
		return nil, fmt.Errorf("查询内容失败: %w", err)
	}
	if len(contents) == 0 {
		return nil, notFound("content_piece", req.ContentIDs)
	}
	var platforms []model.Platform
	for _, c := range contents {
		if !containsPlatform(platforms, c.Platform) {
			platforms = append(platforms, c.Platform)
		}
	}
	accounts, err := s.accounts.ListActiveAccounts(ctx, req.OrganizationID, platforms)
	if err != nil {
		return nil, fmt.Errorf("查询社交账号失败: %w", err)
	}
	accountFor := make(map[model.Platform]*model.SocialAccount)
	badHandle := make(map[model.Platform]*model.SocialAccount)
	for _, a := range accounts {
		if !a.Platform.MatchesHandle(a.Handle) {
			if _, ok := badHandle[a.Platform]; !ok {
				badHandle[a.Platform] = a
			}
			s.logger.WithFields(logrus.Fields{"social_account_id": a.ID, "handle": a.Handle}).Warn("账号 handle 不符合平台规则，跳过")
			continue
		}
		if _, ok := accountFor[a.Platform]; !ok {
			accountFor[a.Platform] = a
		}
	}

	release, err := s.acquire(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer release()

	if plan.template.ID == 0 {
		if err := s.templates.CreateTemplate(ctx, plan.template); err != nil {
			return nil, fmt.Errorf("保存排期模板失败: %w", err)
		}
	}
	tplID := plan.template.ID
	report := newReport()
	report.TemplateID = &tplID

	// 3. 展开 日期×时段
	var (
		visited    int
		lastAt     time.Time
		persistErr error
	)
	idx := roundRobinOffset(plan)
	fromDate := timeutil.DateOf(plan.from, plan.loc)
	reported := make(map[uint64]bool)
	walkRecurrence(plan.rule, plan.anchor, plan.through, func(d timeutil.Date) bool {
		if d.Before(fromDate) {
			return true
		}
		if visited > 0 && visited+len(plan.slots) > s.cfg.MaxGeneratedInstances {
			next := d.Start(plan.loc).UTC()
			report.Truncated = true
			report.NextStart = &next
			return false
		}
		visited += len(plan.slots)
		for _, tod := range plan.slots {
			at, ok := timeutil.LocalToUTC(d, tod, plan.loc)
			if !ok {
				report.SkippedGapSlots = append(report.SkippedGapSlots, fmt.Sprintf("%s %s %s", d, tod, plan.loc))
				continue
			}
			if at.Before(plan.from) || at.After(plan.end) {
				continue
			}
			report.InstantsGenerated++
			c := contents[idx%len(contents)]
			idx++
			a, ok := accountFor[c.Platform]
			if !ok {
				if bad, isBad := badHandle[c.Platform]; isBad {
					report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, SocialAccountID: bad.ID, Platform: c.Platform, Reason: "invalid handle"})
					continue
				}
				if !reported[c.ID] {
					reported[c.ID] = true
					s.logger.WithFields(logrus.Fields{"content_piece_id": c.ID, "platform": c.Platform}).Warn("内容没有同平台的活跃账号，跳过")
				}
				report.Skipped = append(report.Skipped, SkippedPairing{ContentPieceID: c.ID, Platform: c.Platform, Reason: "no active account for platform"})
				continue
			}
			batch := fmt.Sprintf("template:%d@%s", tplID, at.Format(time.RFC3339))
			if err := s.persist(ctx, modeRecurring, report, c, a, at, plan.loc, idempotencyKey(c.ID, a.ID, batch), "", &tplID); err != nil {
				persistErr = err
				return false
			}
			lastAt = at
		}
		return true
	})
	if persistErr != nil {
		return nil, persistErr
	}

	// 4. 提交后对账检测
	if !lastAt.IsZero() {
		scope := s.reconcileScope(req.OrganizationID, plan.from, lastAt, plan.loc)
		if res, err := s.detector.detect(ctx, scope); err != nil {
			s.logger.WithError(err).WithField("organization_id", req.OrganizationID).Warn("提交后冲突检测失败")
		} else {
			report.ConflictsRecorded += res.Created
		}
	}

	s.logger.WithFields(logrus.Fields{
		"organization_id": req.OrganizationID,
		"template_id":     tplID,
		"created":         len(report.CreatedPostIDs),
		"existing":        len(report.ExistingPostIDs),
		"skipped":         len(report.Skipped),
		"truncated":       report.Truncated,
	}).Info("循环排期完成")
	return report, nil
}

func (s *ScheduleService) buildTemplatePlan(req RecurringScheduleRequest) (*recurringPlan, error) {
	freq := model.Frequency(strings.ToLower(req.Frequency))
	switch freq {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return nil, invalid("frequency", "must be daily, weekly or monthly")
	}
	if req.Interval < 0 {
		return nil, invalid("interval", "must not be negative")
	}
	interval := req.Interval
	if interval == 0 {
		interval = 1
	}
	if req.Start.IsZero() {
		return nil, invalid("start", "is required")
	}
	if req.End != nil && req.End.Before(req.Start) {
		return nil, invalid("end", "must not be before start")
	}
	if len(req.TimeSlots) == 0 {
		return nil, invalid("time_slots", "at least one time slot is required")
	}
	slots, err := timeutil.ParseTimesOfDay(req.TimeSlots)
	if err != nil {
		return nil, invalid("time_slots", "%v", err)
	}
	days, err := normalizeDays(req.DaysOfWeek)
	if err != nil {
		return nil, err
	}
	loc, err := s.location(req.Timezone)
	if err != nil {
		return nil, err
	}

	slotNames := make([]string, len(slots))
	for i, tod := range slots {
		slotNames[i] = tod.String()
	}
	daysJSON, _ := json.Marshal(days)
	slotsJSON, _ := json.Marshal(slotNames)
	tpl := &model.ScheduleTemplate{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Frequency:      freq,
		Interval:       interval,
		DaysOfWeek:     daysJSON,
		TimeSlots:      slotsJSON,
		Timezone:       loc.String(),
		StartDate:      req.Start.UTC(),
	}
	if req.End != nil {
		end := req.End.UTC()
		tpl.EndDate = &end
	}
	return s.planFromTemplate(tpl, req.Start.UTC(), nil)
}

func (s *ScheduleService) loadTemplatePlan(ctx context.Context, req RecurringScheduleRequest) (*recurringPlan, error) {
	tpl, err := s.templates.GetTemplate(ctx, req.OrganizationID, *req.TemplateID)
	if err != nil {
		return nil, translateNotFound(err, "schedule_template", *req.TemplateID)
	}
	from := tpl.StartDate
	if !req.Start.IsZero() && req.Start.After(from) {
		from = req.Start.UTC()
	}
	return s.planFromTemplate(tpl, from, req.End)
}

func (s *ScheduleService) planFromTemplate(tpl *model.ScheduleTemplate, from time.Time, endOverride *time.Time) (*recurringPlan, error) {
	loc, err := timeutil.LoadLocation(tpl.Timezone)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}
	slots, err := timeutil.ParseTimesOfDay(tpl.Slots())
	if err != nil {
		return nil, invalid("time_slots", "%v", err)
	}
	if len(slots) == 0 {
		return nil, invalid("time_slots", "template has no time slots")
	}
	days, err := normalizeDays(tpl.Days())
	if err != nil {
		return nil, err
	}
	rule := recurrenceRule{frequency: tpl.Frequency, interval: tpl.Interval, days: make(map[time.Weekday]bool, len(days))}
	for _, d := range days {
		rule.days[time.Weekday(d)] = true
	}

	// 结束时刻：请求 > 模板 > 起始日 + 默认跨度
	anchor := timeutil.DateOf(tpl.StartDate, loc)
	var end time.Time
	switch {
	case endOverride != nil:
		end = endOverride.UTC()
	case tpl.EndDate != nil:
		end = tpl.EndDate.UTC()
	default:
		end = tpl.StartDate.UTC().AddDate(0, s.cfg.RecurringHorizonMonths, 0)
	}
	return &recurringPlan{
		template: tpl,
		rule:     rule,
		loc:      loc,
		slots:    slots,
		anchor:   anchor,
		from:     from,
		end:      end,
		through:  timeutil.DateOf(end, loc),
	}, nil
}

// roundRobinOffset 模板起点到 from 之间已展开的时刻数，续页时内容轮询从这里接上
func roundRobinOffset(plan *recurringPlan) int {
	start := plan.template.StartDate.UTC()
	if !plan.from.After(start) {
		return 0
	}
	n := 0
	walkRecurrence(plan.rule, plan.anchor, timeutil.DateOf(plan.from, plan.loc), func(d timeutil.Date) bool {
		for _, tod := range plan.slots {
			at, ok := timeutil.LocalToUTC(d, tod, plan.loc)
			if ok && !at.Before(start) && at.Before(plan.from) && !at.After(plan.end) {
				n++
			}
		}
		return true
	})
	return n
}

// normalizeDays 去重、升序，超出 0-6 视为非法
func normalizeDays(in []int) ([]int, error) {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, d := range in {
		if d < 0 || d > 6 {
			return nil, invalid("days_of_week", "day %d out of range 0-6", d)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, nil
}
