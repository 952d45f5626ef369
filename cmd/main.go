package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"SocialScheduler/internal/api"
	"SocialScheduler/internal/config"
	"SocialScheduler/internal/interfaces"
	"SocialScheduler/internal/model"
	"SocialScheduler/internal/repository"
	"SocialScheduler/internal/service"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// createDatabaseIfMissing 连到同实例的 postgres 维护库，目标库不存在则创建
// 支持 URL 与 key=value 两种 DSN
func createDatabaseIfMissing(ctx context.Context, dsn string) error {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("解析DSN失败: %w", err)
	}
	target := connCfg.Database
	if target == "" || target == "postgres" {
		return nil
	}
	connCfg.Database = "postgres"
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return fmt.Errorf("连接维护库失败: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", target).Scan(&exists); err != nil {
		return fmt.Errorf("查询数据库是否存在失败: %w", err)
	}
	if exists {
		return nil
	}
	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{target}.Sanitize())
	return err
}

func openDatabase(cfg config.DatabaseConfig, mode string, logrusLogger *logrus.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if mode == gin.DebugMode {
		level = logger.Info
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	if err != nil && (strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "3D000")) {
		logrusLogger.Info("目标数据库不存在，尝试自动创建…")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		e := createDatabaseIfMissing(ctx, cfg.DSN)
		cancel()
		if e != nil {
			return nil, fmt.Errorf("创建数据库失败: %w", e)
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("连接PostgreSQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// newSchedulingLock 配置了 Redis 则启用组织级排期锁
func newSchedulingLock(cfg config.RedisConfig, logrusLogger *logrus.Logger) interfaces.SchedulingLock {
	if cfg.Addr == "" {
		logrusLogger.Info("未配置 Redis，排期不做组织级互斥")
		return repository.NewNoopLock()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrusLogger.WithError(err).Warn("Redis 连接失败，排期不做组织级互斥")
		return repository.NewNoopLock()
	}
	logrusLogger.Infof("Redis 排期锁已启用: %s", cfg.Addr)
	return repository.NewRedisLock(client, cfg.LockTTL)
}

func main() {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志
	logrusLogger := logrus.New()
	logrusLogger.SetLevel(logrus.InfoLevel)
	logrusLogger.Info("配置文件加载成功")

	// 3. 初始化 PostgreSQL 连接（库不存在则先创建再连）
	db, err := openDatabase(cfg.Database, cfg.Server.Mode, logrusLogger)
	if err != nil {
		logrusLogger.Fatal(err)
	}
	logrusLogger.Info("PostgreSQL连接成功")

	// 4. 库表不存在则自动创建
	if err := db.AutoMigrate(
		&model.EngagementSample{},
		&model.TimeSlotScore{},
		&model.ContentPiece{},
		&model.SocialAccount{},
		&model.ScheduledPost{},
		&model.CalendarEvent{},
		&model.SchedulingConflict{},
		&model.ScheduleTemplate{},
	); err != nil {
		logrusLogger.Fatalf("数据库表结构迁移失败: %v", err)
	}
	logrusLogger.Info("数据库表结构检查完成（不存在则已创建）")

	// 5. 组装仓储与服务
	repos := repository.NewRepositories(db)
	analyzer := service.NewAnalyzerService(repos, cfg.Analyzer, logrusLogger)
	detector := service.NewConflictService(repos, cfg.Conflicts, logrusLogger)
	schedules := service.NewScheduleService(repos, analyzer, detector, newSchedulingLock(cfg.Redis, logrusLogger), cfg.Scheduling, logrusLogger)
	calendar := service.NewCalendarService(repos, detector, logrusLogger)

	// 6. 配置Gin运行模式（从配置读取：debug/release）
	gin.SetMode(cfg.Server.Mode)
	if err := api.RegisterValidators(); err != nil {
		logrusLogger.Fatalf("注册参数校验器失败: %v", err)
	}
	r := gin.Default()

	// 注册ppof 方便调试和监测性能问题
	pprof.Register(r)
	logrusLogger.Infof("Gin运行模式: %s", cfg.Server.Mode)

	// 7. 注册API路由
	api.RegisterRoutes(r, api.Handlers{
		Analytics: api.NewAnalyticsHandler(analyzer, logrusLogger),
		Schedules: api.NewScheduleHandler(schedules, logrusLogger),
		Conflicts: api.NewConflictHandler(detector, logrusLogger),
		Calendar:  api.NewCalendarHandler(calendar, logrusLogger),
	})

	// 8. 启动服务（从配置读取端口）
	port := cfg.Server.Port
	logrusLogger.Infof("服务启动成功，端口：%d", port)
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		logrusLogger.Fatalf("启动服务失败: %v", err)
	}
}
