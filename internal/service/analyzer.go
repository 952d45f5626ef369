package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SocialScheduler/internal/config"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"
	"SocialScheduler/internal/utils/timeutil"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AnalyzerService 基于历史互动数据计算 星期×小时 最佳发帖时段
type AnalyzerService struct {
	samples repository.EngagementRepository
	scores  repository.SlotScoreRepository
	cfg     config.AnalyzerConfig
	logger  *logrus.Logger
	now     func() time.Time
}

// NewAnalyzerService 创建 AnalyzerService
func NewAnalyzerService(repos repository.Repositories, cfg config.AnalyzerConfig, logger *logrus.Logger) *AnalyzerService {
	return &AnalyzerService{
		samples: repos.Engagement,
		scores:  repos.SlotScores,
		cfg:     cfg.Normalize(),
		logger:  logger,
		now:     time.Now,
	}
}

// AnalyzeRequest 单平台分析参数，WindowDays 为 0 时取默认窗口
type AnalyzeRequest struct {
	OrganizationID string
	Platform       string
	Timezone       string
	WindowDays     int
}

// MultiAnalyzeRequest POST /api/analytics/optimal-times
type MultiAnalyzeRequest struct {
	OrganizationID string   `json:"organization_id" binding:"required"`
	Platforms      []string `json:"platforms" binding:"required,min=1"`
	Timezone       string   `json:"timezone" binding:"omitempty,timezone"`
	WindowDays     int      `json:"window_days" binding:"gte=0"`
}

type bucketKey struct {
	day  int
	hour int
}

type bucketAcc struct {
	n          int
	engagement float64
	reach      float64
	clicks     float64
}

// Analyze 计算并持久化单平台时段评分，返回按 score 降序 / day 升序 / hour 升序排列的结果
// 没有历史数据时返回空列表
func (s *AnalyzerService) Analyze(ctx context.Context, req AnalyzeRequest) ([]*model.TimeSlotScore, error) {
	platform, loc, window, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	tz := loc.String()
	now := s.now().UTC()

	// 1. 拉取窗口内样本
	samples, err := s.samples.ListSamples(ctx, req.OrganizationID, platform, now.AddDate(0, 0, -window))
	if err != nil {
		return nil, fmt.Errorf("查询互动样本失败: %w", err)
	}
	analyzerRuns.WithLabelValues(string(platform)).Inc()

	// 2. 按目标时区的 (星期, 小时) 分桶
	buckets := make(map[bucketKey]*bucketAcc)
	for _, smp := range samples {
		local := smp.ScheduledAt.In(loc)
		k := bucketKey{day: int(local.Weekday()), hour: local.Hour()}
		acc, ok := buckets[k]
		if !ok {
			acc = &bucketAcc{}
			buckets[k] = acc
		}
		acc.n++
		acc.engagement += smp.EngagementRate
		acc.reach += float64(smp.Reach)
		acc.clicks += float64(smp.Clicks)
	}

	// 3. 打分，样本不足的桶丢弃
	scores := make([]*model.TimeSlotScore, 0, len(buckets))
	for k, acc := range buckets {
		if acc.n < s.cfg.MinSamples {
			continue
		}
		n := float64(acc.n)
		avgEng, avgReach, avgClicks := acc.engagement/n, acc.reach/n, acc.clicks/n
		scores = append(scores, &model.TimeSlotScore{
			OrganizationID: req.OrganizationID,
			Platform:       platform,
			DayOfWeek:      k.day,
			Hour:           k.hour,
			Timezone:       tz,
			Score:          s.score(avgEng, avgReach, avgClicks),
			Confidence:     minFloat(n/float64(s.cfg.ConfidenceSamples), 1),
			SampleCount:    acc.n,
			AvgEngagement:  avgEng,
			AvgReach:       avgReach,
			AvgClicks:      avgClicks,
			LastAnalyzedAt: now,
		})
	}
	SortSlotScores(scores)

	// 4. 覆盖写入
	if err := s.scores.UpsertScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("保存时段评分失败: %w", err)
	}
	analyzerBuckets.WithLabelValues(string(platform)).Add(float64(len(scores)))

	s.logger.WithFields(logrus.Fields{
		"organization_id": req.OrganizationID,
		"platform":        platform,
		"timezone":        tz,
		"samples":         len(samples),
		"buckets":         len(scores),
	}).Info("最佳时段分析完成")
	return scores, nil
}

// AnalyzePlatforms 并发分析同一组织的多个平台，任一平台出错即取消其余分析
func (s *AnalyzerService) AnalyzePlatforms(ctx context.Context, req MultiAnalyzeRequest) (map[model.Platform][]*model.TimeSlotScore, error) {
	if len(req.Platforms) == 0 {
		return nil, invalid("platforms", "at least one platform is required")
	}
	seen := make(map[model.Platform]bool, len(req.Platforms))
	var platforms []model.Platform
	for _, name := range req.Platforms {
		p, ok := model.ParsePlatform(name)
		if !ok {
			return nil, unknownPlatform("platforms", name)
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}

	var (
		mu  sync.Mutex
		out = make(map[model.Platform][]*model.TimeSlotScore, len(platforms))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range platforms {
		g.Go(func() error {
			scores, err := s.Analyze(gctx, AnalyzeRequest{
				OrganizationID: req.OrganizationID,
				Platform:       string(p),
				Timezone:       req.Timezone,
				WindowDays:     req.WindowDays,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			out[p] = scores
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TopSlots 读取已持久化的评分前 n 个（n<=20）
func (s *AnalyzerService) TopSlots(ctx context.Context, organizationID, platform, timezone string, n int) ([]*model.TimeSlotScore, error) {
	if organizationID == "" {
		return nil, invalid("organization_id", "is required")
	}
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return nil, unknownPlatform("platform", platform)
	}
	loc, err := timeutil.LoadLocation(timezone)
	if err != nil {
		return nil, invalid("timezone", "%v", err)
	}
	if n <= 0 || n > config.MaxOptimalTopN {
		n = config.MaxOptimalTopN
	}
	scores, err := s.scores.ListTopScores(ctx, organizationID, p, loc.String(), n)
	if err != nil {
		return nil, fmt.Errorf("查询时段评分失败: %w", err)
	}
	return scores, nil
}

func (s *AnalyzerService) validate(req AnalyzeRequest) (model.Platform, *time.Location, int, error) {
	if req.OrganizationID == "" {
		return "", nil, 0, invalid("organization_id", "is required")
	}
	p, ok := model.ParsePlatform(req.Platform)
	if !ok {
		return "", nil, 0, unknownPlatform("platform", req.Platform)
	}
	loc, err := timeutil.LoadLocation(req.Timezone)
	if err != nil {
		return "", nil, 0, invalid("timezone", "%v", err)
	}
	window := req.WindowDays
	if window == 0 {
		window = s.cfg.DefaultWindowDays
	}
	if window < s.cfg.MinWindowDays || window > s.cfg.MaxWindowDays {
		return "", nil, 0, invalid("window_days", "must be between %d and %d", s.cfg.MinWindowDays, s.cfg.MaxWindowDays)
	}
	return p, loc, window, nil
}

func (s *AnalyzerService) score(avgEngagement, avgReach, avgClicks float64) float64 {
	v := s.cfg.EngagementWeight*avgEngagement + s.cfg.ReachWeight*avgReach + s.cfg.ClicksWeight*avgClicks
	if v < 0 {
		return 0
	}
	return minFloat(v, 1)
}

// SortSlotScores score 降序，同分按 day、hour 升序
func SortSlotScores(scores []*model.TimeSlotScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.Hour < b.Hour
	})
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
