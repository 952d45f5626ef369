package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"SocialScheduler/internal/config"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/sirupsen/logrus"
)

// ConflictService 排期冲突检测
type ConflictService struct {
	posts     repository.PostRepository
	conflicts repository.ConflictRepository
	cfg       config.ConflictConfig
	logger    *logrus.Logger
}

// NewConflictService 创建 ConflictService
func NewConflictService(repos repository.Repositories, cfg config.ConflictConfig, logger *logrus.Logger) *ConflictService {
	return &ConflictService{
		posts:     repos.Posts,
		conflicts: repos.Conflicts,
		cfg:       cfg.Normalize(),
		logger:    logger,
	}
}

// DetectRequest 冲突检测参数；Checks 为空表示全部规则，Timezone 决定按哪个时区切分 日/小时
type DetectRequest struct {
	OrganizationID string    `json:"organization_id" binding:"required"`
	Start          time.Time `json:"start" binding:"required"`
	End            time.Time `json:"end" binding:"required"`
	Platform       string    `json:"platform"`
	Checks         []string  `json:"checks"`
	Timezone       string    `json:"timezone" binding:"omitempty,timezone"`
}

// DetectionResult 一次检测的结果，Detected 包含因去重未写入的冲突
type DetectionResult struct {
	Detected   []*model.SchedulingConflict `json:"detected"`
	Created    int                         `json:"created"`
	Duplicates int                         `json:"duplicates"`
}

// ListConflictsRequest GET /api/conflicts
type ListConflictsRequest struct {
	OrganizationID string
	Status         string
	Start          *time.Time
	End            *time.Time
}

type detectScope struct {
	organizationID string
	start, end     time.Time
	platform       model.Platform
	checks         []model.ConflictType
	loc            *time.Location
}

// Detect 在 [start,end] 内检测冲突并写入；没有冲突不是错误
func (s *ConflictService) Detect(ctx context.Context, req DetectRequest) (*DetectionResult, error) {
	scope, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	return s.detect(ctx, scope)
}

func (s *ConflictService) validate(req DetectRequest) (detectScope, error) {
	scope := detectScope{organizationID: req.OrganizationID, start: req.Start.UTC(), end: req.End.UTC()}
	if req.OrganizationID == "" {
		return scope, invalid("organization_id", "is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return scope, invalid("start", "start and end are required")
	}
	if req.End.Before(req.Start) {
		return scope, invalid("end", "must not be before start")
	}
	if req.Platform != "" {
		p, ok := model.ParsePlatform(req.Platform)
		if !ok {
			return scope, unknownPlatform("platform", req.Platform)
		}
		scope.platform = p
	}
	checks, err := parseChecks(req.Checks)
	if err != nil {
		return scope, err
	}
	scope.checks = checks
	loc, err := timeutil.LoadLocation(req.Timezone)
	if err != nil {
		return scope, invalid("timezone", "%v", err)
	}
	scope.loc = loc
	return scope, nil
}

func parseChecks(names []string) ([]model.ConflictType, error) {
	if len(names) == 0 {
		return model.AllConflictTypes, nil
	}
	want := make(map[model.ConflictType]bool, len(names))
	for _, n := range names {
		t, ok := model.ParseConflictType(strings.ToUpper(strings.TrimSpace(n)))
		if !ok {
			return nil, invalid("checks", "unknown conflict type %q", n)
		}
		want[t] = true
	}
	// 固定执行顺序
	out := make([]model.ConflictType, 0, len(want))
	for _, t := range model.AllConflictTypes {
		if want[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ConflictService) detect(ctx context.Context, scope detectScope) (*DetectionResult, error) {
	// 1. 取窗口内所有非取消帖子
	posts, err := s.posts.ListActivePosts(ctx, repository.PostFilter{
		OrganizationID: scope.organizationID,
		Start:          scope.start,
		End:            scope.end,
		Platform:       scope.platform,
	})
	if err != nil {
		return nil, fmt.Errorf("查询活跃帖子失败: %w", err)
	}

	// 2. 规则计算
	found := evaluateConflicts(scope.organizationID, posts, scope.checks, scope.loc, s.cfg)

	// 3. 写入（按指纹去重）
	result := &DetectionResult{Detected: found}
	for _, c := range found {
		conflictsDetected.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
		created, err := s.conflicts.SaveConflict(ctx, c, s.cfg.Dedupe)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
			conflictsRecorded.WithLabelValues(string(c.Type)).Inc()
		} else {
			result.Duplicates++
		}
	}
	if len(found) > 0 {
		s.logger.WithFields(logrus.Fields{
			"organization_id": scope.organizationID,
			"posts":           len(posts),
			"detected":        len(found),
			"created":         result.Created,
			"duplicates":      result.Duplicates,
		}).Info("冲突检测完成")
	}
	return result, nil
}

// ListConflicts 查询组织冲突，status 为空表示全部
func (s *ConflictService) ListConflicts(ctx context.Context, req ListConflictsRequest) ([]*model.SchedulingConflict, error) {
	if req.OrganizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	f := repository.ConflictFilter{OrganizationID: req.OrganizationID, Start: req.Start, End: req.End}
	switch st := model.ConflictStatus(strings.ToUpper(req.Status)); st {
	case "":
	case model.ConflictStatusActive, model.ConflictStatusResolved:
		f.Status = st
	default:
		return nil, invalid("status", "unknown status %q", req.Status)
	}
	if req.Start != nil && req.End != nil && req.End.Before(*req.Start) {
		return nil, invalid("end", "must not be before start")
	}
	list, err := s.conflicts.ListConflicts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("查询冲突失败: %w", err)
	}
	return list, nil
}

// evaluateConflicts 纯计算，不访问存储；结果按规则顺序、分组键排序，保证确定性
func evaluateConflicts(org string, posts []*repository.ActivePostView, checks []model.ConflictType, loc *time.Location, cfg config.ConflictConfig) []*model.SchedulingConflict {
	var out []*model.SchedulingConflict
	for _, check := range checks {
		switch check {
		case model.ConflictTimeOverlap:
			out = append(out, timeOverlap(org, posts, loc, cfg)...)
		case model.ConflictPlatformLimit:
			out = append(out, platformLimit(org, posts, loc, cfg)...)
		case model.ConflictContentSimilar:
			out = append(out, contentSimilar(org, posts, cfg)...)
		}
	}
	return out
}

func groupPosts(posts []*repository.ActivePostView, key func(*repository.ActivePostView) string) ([]string, map[string][]*repository.ActivePostView) {
	groups := make(map[string][]*repository.ActivePostView)
	var keys []string
	for _, p := range posts {
		k := key(p)
		if k == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}
	sort.Strings(keys)
	return keys, groups
}

func timeOverlap(org string, posts []*repository.ActivePostView, loc *time.Location, cfg config.ConflictConfig) []*model.SchedulingConflict {
	keys, groups := groupPosts(posts, func(p *repository.ActivePostView) string {
		return timeutil.DayHourKey(p.ScheduledAt, loc)
	})
	var out []*model.SchedulingConflict
	for _, k := range keys {
		g := groups[k]
		if len(g) <= cfg.OverlapThreshold {
			continue
		}
		out = append(out, newConflict(org, model.ConflictTimeOverlap, model.SeverityHigh, "", g,
			fmt.Sprintf("%d posts scheduled within hour %s (%s)", len(g), k, loc)))
	}
	return out
}

func platformLimit(org string, posts []*repository.ActivePostView, loc *time.Location, cfg config.ConflictConfig) []*model.SchedulingConflict {
	keys, groups := groupPosts(posts, func(p *repository.ActivePostView) string {
		return timeutil.DateOf(p.ScheduledAt, loc).String() + "|" + string(p.Platform)
	})
	var out []*model.SchedulingConflict
	for _, k := range keys {
		g := groups[k]
		platform := g[0].Platform
		limit := cfg.CapFor(platform)
		if len(g) <= limit {
			continue
		}
		out = append(out, newConflict(org, model.ConflictPlatformLimit, model.SeverityCritical, platform, g,
			fmt.Sprintf("%d %s posts on %s exceed daily cap %d", len(g), platform, strings.SplitN(k, "|", 2)[0], limit)))
	}
	return out
}

func contentSimilar(org string, posts []*repository.ActivePostView, cfg config.ConflictConfig) []*model.SchedulingConflict {
	keys, groups := groupPosts(posts, func(p *repository.ActivePostView) string {
		return contentSignature(p.Body, cfg.SimilarityWords)
	})
	var out []*model.SchedulingConflict
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		// 组内存在另一条 24h 内帖子的才算相似冲突
		var near []*repository.ActivePostView
		for i, p := range g {
			for j, q := range g {
				if i != j && absDuration(p.ScheduledAt.Sub(q.ScheduledAt)) <= cfg.SimilarityWindow {
					near = append(near, p)
					break
				}
			}
		}
		if len(near) < 2 {
			continue
		}
		out = append(out, newConflict(org, model.ConflictContentSimilar, model.SeverityMedium, "", near,
			fmt.Sprintf("%d posts with similar content %q within %s", len(near), k, cfg.SimilarityWindow)))
	}
	return out
}

// contentSignature 前 n 个小写词，正文为空时返回空串
func contentSignature(body string, n int) string {
	words := strings.Fields(strings.ToLower(body))
	if len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func newConflict(org string, t model.ConflictType, sev model.ConflictSeverity, platform model.Platform, group []*repository.ActivePostView, desc string) *model.SchedulingConflict {
	ids := make([]uint64, 0, len(group))
	earliest := group[0].ScheduledAt
	for _, p := range group {
		ids = append(ids, p.ID)
		if p.ScheduledAt.Before(earliest) {
			earliest = p.ScheduledAt
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	related, _ := json.Marshal(ids)
	return &model.SchedulingConflict{
		OrganizationID: org,
		Type:           t,
		Severity:       sev,
		Status:         model.ConflictStatusActive,
		ConflictAt:     earliest.UTC(),
		Platform:       platform,
		Description:    desc,
		RelatedPosts:   related,
		Fingerprint:    conflictFingerprint(org, t, ids),
	}
}

// conflictFingerprint sha256(org|type|升序ids)
func conflictFingerprint(org string, t model.ConflictType, sortedIDs []uint64) string {
	parts := make([]string, len(sortedIDs))
	for i, id := range sortedIDs {
		parts[i] = strconv.FormatUint(id, 10)
	}
	sum := sha256.Sum256([]byte(org + "|" + string(t) + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
