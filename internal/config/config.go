package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"SocialScheduler/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（与 config/config.yaml 对应）
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`     // 服务器配置
	Database   DatabaseConfig   `mapstructure:"database"`   // PostgreSQL配置
	Redis      RedisConfig      `mapstructure:"redis"`      // Redis配置（排期锁，可不配）
	Scheduling SchedulingConfig `mapstructure:"scheduling"` // 排期生成配置
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`   // 最佳时段分析配置
	Conflicts  ConflictConfig   `mapstructure:"conflicts"`  // 冲突检测配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// RedisConfig Redis配置，Addr 为空时不启用组织级排期锁
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"` // 排期锁过期时间
}

// SchedulingConfig 排期生成配置
type SchedulingConfig struct {
	DefaultTimezone        string `mapstructure:"default_timezone"`         // 请求未带时区时使用
	MaxGeneratedInstances  int    `mapstructure:"max_generated_instances"`  // 单次生成的候选时刻上限
	RecurringHorizonMonths int    `mapstructure:"recurring_horizon_months"` // 循环排期无结束日期时的默认跨度
	OptimalTopN            int    `mapstructure:"optimal_top_n"`            // optimal 策略取前N个时段（<=20）
}

// AnalyzerConfig 最佳时段分析配置
type AnalyzerConfig struct {
	DefaultWindowDays int     `mapstructure:"default_window_days"`
	MinWindowDays     int     `mapstructure:"min_window_days"`
	MaxWindowDays     int     `mapstructure:"max_window_days"`
	MinSamples        int     `mapstructure:"min_samples"`        // 每个时段最少样本数，低于3按3处理
	ConfidenceSamples int     `mapstructure:"confidence_samples"` // 置信度满值所需样本数
	EngagementWeight  float64 `mapstructure:"engagement_weight"`
	ReachWeight       float64 `mapstructure:"reach_weight"`
	ClicksWeight      float64 `mapstructure:"clicks_weight"`
}

// ConflictConfig 冲突检测配置
type ConflictConfig struct {
	OverlapThreshold   int            `mapstructure:"overlap_threshold"`    // 同一小时超过该数量即冲突
	SimilarityWords    int            `mapstructure:"similarity_words"`     // 内容签名取前N个词
	SimilarityWindow   time.Duration  `mapstructure:"similarity_window"`    // 相似内容的时间接近阈值
	Dedupe             bool           `mapstructure:"dedupe"`               // 是否按指纹去重
	PlatformCaps       map[string]int `mapstructure:"platform_caps"`        // 覆盖平台默认每日上限
	DefaultPlatformCap int            `mapstructure:"default_platform_cap"` // 未知平台上限
}

// MinSampleFloor 样本数硬下限
const MinSampleFloor = 3

// MaxOptimalTopN optimal 策略时段数上限
const MaxOptimalTopN = 20

// DefaultAnalyzerConfig 分析器默认参数
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DefaultWindowDays: 30,
		MinWindowDays:     7,
		MaxWindowDays:     90,
		MinSamples:        MinSampleFloor,
		ConfidenceSamples: 10,
		EngagementWeight:  0.5,
		ReachWeight:       0.0001,
		ClicksWeight:      0.01,
	}
}

// DefaultSchedulingConfig 排期默认参数
func DefaultSchedulingConfig() SchedulingConfig {
	return SchedulingConfig{
		DefaultTimezone:        "UTC",
		MaxGeneratedInstances:  500,
		RecurringHorizonMonths: 6,
		OptimalTopN:            MaxOptimalTopN,
	}
}

// DefaultConflictConfig 冲突检测默认参数，平台上限取 model 平台表
func DefaultConflictConfig() ConflictConfig {
	return ConflictConfig{
		OverlapThreshold:   3,
		SimilarityWords:    5,
		SimilarityWindow:   24 * time.Hour,
		Dedupe:             true,
		PlatformCaps:       map[string]int{},
		DefaultPlatformCap: model.DefaultUnknownPlatformCap,
	}
}

// Normalize 兜底非法值，保证各组件拿到的参数可用
func (a AnalyzerConfig) Normalize() AnalyzerConfig {
	d := DefaultAnalyzerConfig()
	if a.DefaultWindowDays <= 0 {
		a.DefaultWindowDays = d.DefaultWindowDays
	}
	if a.MinWindowDays <= 0 {
		a.MinWindowDays = d.MinWindowDays
	}
	if a.MaxWindowDays < a.MinWindowDays {
		a.MaxWindowDays = d.MaxWindowDays
	}
	if a.MinSamples < MinSampleFloor {
		a.MinSamples = MinSampleFloor
	}
	if a.ConfidenceSamples <= 0 {
		a.ConfidenceSamples = d.ConfidenceSamples
	}
	return a
}

// Normalize 兜底非法值
func (s SchedulingConfig) Normalize() SchedulingConfig {
	d := DefaultSchedulingConfig()
	if s.DefaultTimezone == "" {
		s.DefaultTimezone = d.DefaultTimezone
	}
	if s.MaxGeneratedInstances <= 0 {
		s.MaxGeneratedInstances = d.MaxGeneratedInstances
	}
	if s.RecurringHorizonMonths <= 0 {
		s.RecurringHorizonMonths = d.RecurringHorizonMonths
	}
	if s.OptimalTopN <= 0 || s.OptimalTopN > MaxOptimalTopN {
		s.OptimalTopN = MaxOptimalTopN
	}
	return s
}

// Normalize 兜底非法值
func (c ConflictConfig) Normalize() ConflictConfig {
	d := DefaultConflictConfig()
	if c.OverlapThreshold <= 0 {
		c.OverlapThreshold = d.OverlapThreshold
	}
	if c.SimilarityWords <= 0 {
		c.SimilarityWords = d.SimilarityWords
	}
	if c.SimilarityWindow <= 0 {
		c.SimilarityWindow = d.SimilarityWindow
	}
	if c.DefaultPlatformCap <= 0 {
		c.DefaultPlatformCap = d.DefaultPlatformCap
	}
	if c.PlatformCaps == nil {
		c.PlatformCaps = map[string]int{}
	}
	return c
}

// CapFor 平台每日上限：配置覆盖 > 平台表 > 未知平台默认值
func (c ConflictConfig) CapFor(p model.Platform) int {
	if v, ok := c.PlatformCaps[string(p)]; ok && v > 0 {
		return v
	}
	if rule, ok := p.Rule(); ok {
		return rule.DailyCap
	}
	if c.DefaultPlatformCap > 0 {
		return c.DefaultPlatformCap
	}
	return model.DefaultUnknownPlatformCap
}

func setDefaults(v *viper.Viper) {
	a := DefaultAnalyzerConfig()
	s := DefaultSchedulingConfig()
	c := DefaultConflictConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("scheduling.default_timezone", s.DefaultTimezone)
	v.SetDefault("scheduling.max_generated_instances", s.MaxGeneratedInstances)
	v.SetDefault("scheduling.recurring_horizon_months", s.RecurringHorizonMonths)
	v.SetDefault("scheduling.optimal_top_n", s.OptimalTopN)

	v.SetDefault("analyzer.default_window_days", a.DefaultWindowDays)
	v.SetDefault("analyzer.min_window_days", a.MinWindowDays)
	v.SetDefault("analyzer.max_window_days", a.MaxWindowDays)
	v.SetDefault("analyzer.min_samples", a.MinSamples)
	v.SetDefault("analyzer.confidence_samples", a.ConfidenceSamples)
	v.SetDefault("analyzer.engagement_weight", a.EngagementWeight)
	v.SetDefault("analyzer.reach_weight", a.ReachWeight)
	v.SetDefault("analyzer.clicks_weight", a.ClicksWeight)

	v.SetDefault("conflicts.overlap_threshold", c.OverlapThreshold)
	v.SetDefault("conflicts.similarity_words", c.SimilarityWords)
	v.SetDefault("conflicts.similarity_window", c.SimilarityWindow)
	v.SetDefault("conflicts.dedupe", c.Dedupe)
	v.SetDefault("conflicts.default_platform_cap", c.DefaultPlatformCap)
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env / 环境变量覆盖
// 配置文件不存在时使用内置默认值
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在）
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)

	cfg.Scheduling = cfg.Scheduling.Normalize()
	cfg.Analyzer = cfg.Analyzer.Normalize()
	cfg.Conflicts = cfg.Conflicts.Normalize()
	caps, err := canonicalPlatformCaps(cfg.Conflicts.PlatformCaps)
	if err != nil {
		return nil, err
	}
	cfg.Conflicts.PlatformCaps = caps
	return &cfg, nil
}

// canonicalPlatformCaps 平台别名（x、youtube）改写为标准名，与标准名同时配置时以标准名为准
func canonicalPlatformCaps(in map[string]int) (map[string]int, error) {
	out := make(map[string]int, len(in))
	for name, v := range in {
		p, ok := model.ParsePlatform(name)
		if !ok {
			return nil, fmt.Errorf("conflicts.platform_caps 含未知平台: %s", name)
		}
		if _, exists := out[string(p)]; exists && name != string(p) {
			continue
		}
		out[string(p)] = v
	}
	return out, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Server.Port = port
		}
	}
}
