package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-session/internal/event"
	"wallet-session/internal/service"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/cache"
	"wallet-session/pkg/config"
	"wallet-session/pkg/database"
	"wallet-session/pkg/logger"
	"wallet-session/pkg/monitor"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const consumerGroup = "wallet-audit-group"

// 审计服务: 消费 wallet_events_auth 并写结构化审计日志
func main() {
	// 1. 初始化配置与日志
	config.Init()
	cfg := config.Global
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()
	monitor.Init()

	logger.Info("启动审计服务 (Audit Worker)", zap.String("env", cfg.App.Env))

	// 2. 初始化 MQ Consumer 与去重存储
	var (
		consumer mq.Consumer
		seen     cache.Cache = cache.NewMemoryCache(time.Hour, 10*time.Minute)
	)
	switch cfg.Redis.MQType {
	case "kafka":
		logger.Info("MQ Mode: Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers))
		consumer = mq.NewKafkaConsumer(cfg.Kafka.Brokers, consumerGroup)
	case "redis":
		logger.Info("MQ Mode: Redis Consumer")
		rdb, err := database.ConnectRedis(cfg.Redis)
		if err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		defer rdb.Close()
		hostname, _ := os.Hostname()
		consumer = mq.NewRedisConsumer(rdb, consumerGroup, "audit-"+hostname)
		seen = cache.NewRedisCache(rdb, "wallet-session:")
	default:
		logger.Fatal("审计服务需要 redis.mq_type 为 redis 或 kafka", zap.String("mq_type", cfg.Redis.MQType))
	}

	audit := service.NewAuditService(seen)

	// 3. 暴露 /metrics
	metricsSrv := &http.Server{Addr: ":" + cfg.App.HttpPort, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failure", zap.Error(err))
		}
	}()

	// 4. 启动订阅
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("开始监听认证事件", zap.String("topic", event.TopicAuth))
		if err := consumer.Subscribe(ctx, event.TopicAuth, audit.HandleMessage); err != nil {
			logger.Error("订阅失败", zap.Error(err))
			cancel()
		}
	}()

	// 5. 优雅退出
	<-ctx.Done()
	logger.Info("正在停止审计服务...")
	_ = consumer.Close()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("审计服务已停止")
}
