package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/sirupsen/logrus"
)

// CalendarService 日历视图与拖拽改期
type CalendarService struct {
	calendar repository.CalendarRepository
	posts    repository.PostRepository
	detector *ConflictService
	logger   *logrus.Logger
}

// NewCalendarService 创建 CalendarService
func NewCalendarService(repos repository.Repositories, detector *ConflictService, logger *logrus.Logger) *CalendarService {
	return &CalendarService{
		calendar: repos.Calendar,
		posts:    repos.Posts,
		detector: detector,
		logger:   logger,
	}
}

// CreateEventRequest POST /api/calendar/events
type CreateEventRequest struct {
	OrganizationID  string     `json:"organization_id" binding:"required"`
	Title           string     `json:"title" binding:"required"`
	EventType       string     `json:"event_type" binding:"omitempty,oneof=post_scheduled custom"`
	Description     string     `json:"description"`
	Start           time.Time  `json:"start" binding:"required"`
	End             *time.Time `json:"end"`
	Timezone        string     `json:"timezone" binding:"omitempty,timezone"`
	ScheduledPostID *uint64    `json:"scheduled_post_id"`
}

// EventQuery GET /api/calendar/events
type EventQuery struct {
	OrganizationID string
	Start          time.Time
	End            time.Time
	Timezone       string
	Types          []string
}

// MoveEventRequest PATCH /api/calendar/events/:id/move；End 为空时保持原时长
type MoveEventRequest struct {
	EventID  uint64     `json:"-"`
	Start    time.Time  `json:"start" binding:"required"`
	End      *time.Time `json:"end"`
	Timezone string     `json:"timezone" binding:"omitempty,timezone"`
}

// EventView 日历事件展示，StartAt/EndAt 为 UTC，Local* 为调用方时区下的 RFC3339
type EventView struct {
	ID              uint64     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	EventType       string     `json:"event_type"`
	Status          string     `json:"status"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	LocalStart      string     `json:"local_start"`
	LocalEnd        string     `json:"local_end,omitempty"`
	Timezone        string     `json:"timezone"`
	ScheduledPostID *uint64    `json:"scheduled_post_id,omitempty"`
}

// MoveResult 拖拽结果，Conflicts 为新日期上的检测结果
type MoveResult struct {
	Event     EventView        `json:"event"`
	Conflicts *DetectionResult `json:"conflicts,omitempty"`
}

// CancelResult 取消结果
type CancelResult struct {
	Event         EventView `json:"event"`
	PostCancelled bool      `json:"post_cancelled"`
}

// CreateCalendarEvent 创建日历事件，关联帖子必须属于同一组织
func (s *CalendarService) CreateCalendarEvent(ctx context.Context, req CreateEventRequest) (*EventView, error) {
	if req.OrganizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, invalid("title", "is required")
	}
	if req.Start.IsZero() {
		return nil, invalid("start", "is required")
	}
	if req.End != nil && req.End.Before(req.Start) {
		return nil, invalid("end", "must not be before start")
	}
	eventType := req.EventType
	switch eventType {
	case "":
		eventType = model.EventTypeCustom
	case model.EventTypeCustom, model.EventTypePostScheduled:
	default:
		return nil, invalid("event_type", "unknown event type %q", req.EventType)
	}
	loc, err := timeutil.LoadLocation(req.Timezone)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}
	if req.ScheduledPostID != nil {
		if _, err := s.posts.GetPost(ctx, req.OrganizationID, *req.ScheduledPostID); err != nil {
			return nil, translateNotFound(err, "scheduled_post", *req.ScheduledPostID)
		}
	}

	e := &model.CalendarEvent{
		OrganizationID:  req.OrganizationID,
		Title:           req.Title,
		Description:     req.Description,
		EventType:       eventType,
		StartAt:         req.Start.UTC(),
		Timezone:        loc.String(),
		Status:          model.EventStatusActive,
		ScheduledPostID: req.ScheduledPostID,
	}
	if req.End != nil {
		end := req.End.UTC()
		e.EndAt = &end
	}
	if err := s.calendar.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("保存日历事件失败: %w", err)
	}
	v := toEventView(e, loc)
	return &v, nil
}

// GetCalendarEvents 区间内 ACTIVE 事件，按开始时间升序，按调用方时区渲染
func (s *CalendarService) GetCalendarEvents(ctx context.Context, q EventQuery) ([]EventView, error) {
	if q.OrganizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, invalid("start", "start and end are required")
	}
	if q.End.Before(q.Start) {
		return nil, invalid("end", "must not be before start")
	}
	loc, err := timeutil.LoadLocation(q.Timezone)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}
	events, err := s.calendar.ListEvents(ctx, repository.EventFilter{
		OrganizationID: q.OrganizationID,
		Start:          q.Start,
		End:            q.End,
		Types:          q.Types,
	})
	if err != nil {
		return nil, fmt.Errorf("查询日历事件失败: %w", err)
	}
	views := make([]EventView, 0, len(events))
	for _, e := range events {
		views = append(views, toEventView(e, loc))
	}
	return views, nil
}

// UpdateCalendarEventDragDrop 拖拽改期：事件与关联帖子改到同一 UTC 时刻，然后检测新日期的冲突
func (s *CalendarService) UpdateCalendarEventDragDrop(ctx context.Context, req MoveEventRequest) (*MoveResult, error) {
	if req.Start.IsZero() {
		return nil, invalid("start", "is required")
	}
	if req.End != nil && req.End.Before(req.Start) {
		return nil, invalid("end", "must not be before start")
	}

	// 1. 事件必须存在且未取消
	e, err := s.calendar.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, translateNotFound(err, "calendar_event", req.EventID)
	}
	if e.Status == model.EventStatusCancelled {
		return nil, invalid("event_id", "event %d is cancelled", e.ID)
	}
	// 已发布或失败的帖子时间不可再改
	if e.ScheduledPostID != nil {
		post, err := s.posts.GetPost(ctx, e.OrganizationID, *e.ScheduledPostID)
		if err != nil {
			return nil, translateNotFound(err, "scheduled_post", *e.ScheduledPostID)
		}
		if post.Status != model.PostStatusScheduled {
			return nil, invalid("event_id", "linked post %d is %s", post.ID, post.Status)
		}
	}
	tz := req.Timezone
	if tz == "" {
		tz = e.Timezone
	}
	loc, err := timeutil.LoadLocation(tz)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}

	// 2. 未给结束时间时保留原时长
	newStart := req.Start.UTC()
	newEnd := req.End
	if newEnd == nil && e.EndAt != nil {
		end := newStart.Add(e.EndAt.Sub(e.StartAt))
		newEnd = &end
	}
	if err := s.calendar.MoveEvent(ctx, e, newStart, newEnd, loc.String()); err != nil {
		return nil, err
	}

	// 3. 新日期重新检测
	dayStart, dayEnd := timeutil.DayBounds(newStart, loc)
	scope := detectScope{
		organizationID: e.OrganizationID,
		start:          dayStart,
		end:            dayEnd.Add(-time.Microsecond),
		checks:         []model.ConflictType{model.ConflictTimeOverlap, model.ConflictPlatformLimit},
		loc:            loc,
	}
	result := &MoveResult{Event: toEventView(e, loc)}
	res, err := s.detector.detect(ctx, scope)
	if err != nil {
		s.logger.WithError(err).WithField("event_id", e.ID).Warn("拖拽后冲突检测失败")
	} else {
		result.Conflicts = res
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":          e.ID,
		"scheduled_post_id": e.ScheduledPostID,
		"start_at":          newStart,
	}).Info("日历事件已改期")
	return result, nil
}

// CancelCalendarEvent 取消事件（不物理删除），仍为 SCHEDULED 的关联帖子一并取消
func (s *CalendarService) CancelCalendarEvent(ctx context.Context, eventID uint64) (*CancelResult, error) {
	e, err := s.calendar.GetEvent(ctx, eventID)
	if err != nil {
		return nil, translateNotFound(err, "calendar_event", eventID)
	}
	loc, err := timeutil.LoadLocation(e.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if e.Status == model.EventStatusCancelled {
		return &CancelResult{Event: toEventView(e, loc)}, nil
	}
	postCancelled, err := s.calendar.CancelEvent(ctx, e)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Event: toEventView(e, loc), PostCancelled: postCancelled}, nil
}

func toEventView(e *model.CalendarEvent, loc *time.Location) EventView {
	v := EventView{
		ID:              e.ID,
		OrganizationID:  e.OrganizationID,
		Title:           e.Title,
		Description:     e.Description,
		EventType:       e.EventType,
		Status:          string(e.Status),
		StartAt:         e.StartAt.UTC(),
		LocalStart:      timeutil.InZone(e.StartAt, loc).Format(time.RFC3339),
		Timezone:        loc.String(),
		ScheduledPostID: e.ScheduledPostID,
	}
	if e.EndAt != nil {
		end := e.EndAt.UTC()
		v.EndAt = &end
		v.LocalEnd = timeutil.InZone(end, loc).Format(time.RFC3339)
	}
	return v
}
