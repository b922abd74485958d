package main

import (
	"context"
	"time"

	"wallet-session/internal/handler"
	"wallet-session/internal/middleware"
	"wallet-session/internal/model"
	"wallet-session/internal/server"
	"wallet-session/internal/service"
	"wallet-session/internal/service/auth"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/cache"
	"wallet-session/pkg/config"
	"wallet-session/pkg/database"
	"wallet-session/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "wallet-session/docs/swagger"
)

// 多实例部署时本地缓存的存活时间，吊销最多延迟这么久生效
const localCacheTTL = 5 * time.Second

// @title Wallet Session Auth API
// @version 1.0
// @description Wallet signature login: nonce, verify, me, logout

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "your-secret-key-here" {
		logger.Warn("正在使用默认 JWT 密钥，请通过 AUTH_JWT_SECRET 设置")
	}

	var cleanups []func()
	probes := map[string]handler.Probe{}

	// 2. 连接 Redis (nonce 存储或 MQ 需要时)
	var rdb *redis.Client
	if cfg.Auth.NonceStore == "redis" || cfg.Redis.MQType == "redis" {
		var err error
		rdb, err = database.ConnectRedis(cfg.Redis)
		if err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		probes["redis"] = database.RedisProbe(rdb)
	}

	// 3. nonce 与吊销列表存储
	var store cache.Cache = cache.NewMemoryCache(cfg.Auth.NonceTTL, time.Minute)
	if cfg.Auth.NonceStore == "redis" {
		store = cache.NewMultiLevelCache(store, cache.NewRedisCache(rdb, "wallet-session:"), localCacheTTL)
	}
	logger.Info("nonce store", zap.String("type", cfg.Auth.NonceStore))

	// 4. 初始化消息队列
	var producer mq.Producer
	switch cfg.Redis.MQType {
	case "kafka":
		logger.Info("使用 Kafka 作为消息队列", zap.Strings("brokers", cfg.Kafka.Brokers))
		kp := mq.NewKafkaProducer(cfg.Kafka.Brokers)
		producer = kp
		cleanups = append(cleanups, func() { _ = kp.Close() })
	case "redis":
		logger.Info("使用 Redis Streams 作为消息队列")
		producer = mq.NewRedisProducer(rdb)
	default:
		logger.Info("未配置消息队列，认证事件不投递")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 登录记录: 有数据库时走 Outbox，否则直接投递
	var recorder auth.Recorder = auth.NopRecorder{}
	if cfg.DB.Enabled {
		db := connectDB(cfg)
		cleanups = append(cleanups, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		probes["postgres"] = database.PostgresProbe(db)

		dbRecorder := auth.NewDBRecorder(db)
		recorder = dbRecorder

		if producer != nil {
			relay := service.NewRelayService(db, producer)
			go relay.Start(ctx)
		}

		cronService := service.NewCronService(rdb, dbRecorder)
		if err := cronService.Start(); err != nil {
			logger.Fatal("Cron 启动失败", zap.Error(err))
		}
		cleanups = append(cleanups, cronService.Stop)
	} else if producer != nil {
		recorder = auth.NewPublishRecorder(producer, logger.Named("events"))
	}

	// 6. 认证服务
	authService := auth.NewService(store,
		auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		auth.WithNonceTTL(cfg.Auth.NonceTTL),
		auth.WithRecorder(recorder),
	)

	// 7. HTTP Router
	r := server.NewHTTPRouter(server.RouterOptions{
		Auth:    authService,
		Limiter: middleware.NewIPRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst),
		Probes:  probes,
	})

	// 8. 启动应用 (阻塞)
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r)
	for _, fn := range cleanups {
		app.OnShutdown(fn)
	}
	app.OnShutdown(cancel)

	if err := app.Run(ctx); err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}
	logger.Info("系统已退出")
}

func connectDB(cfg config.Config) *gorm.DB {
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.DB.Debug)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 开发环境自动迁移，生产环境使用 cmd/migrate
	if cfg.App.Env == "development" {
		logger.Info("开发环境: 自动迁移 Schema (GORM AutoMigrate)")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}
	return db
}
