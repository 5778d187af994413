package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerniceZTT/crm_web/config"
	"github.com/BerniceZTT/crm_web/controllers"
	"github.com/BerniceZTT/crm_web/middleware"
	"github.com/BerniceZTT/crm_web/monitoring"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/routes"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// 初始化日志
	utils.InitLogger()

	// 加载配置
	cfg := config.LoadConfig()

	// 设置Gin模式
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := utils.InitSentry(cfg.SentryDSN); err != nil {
		utils.Logger.Error().Err(err).Msg("初始化 Sentry 失败")
	}
	defer utils.FlushSentry()

	monitoring.Init()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store := repository.NewRemoteStore(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	utils.Logger.Info().Str("baseURL", cfg.RemoteBaseURL).Msg("远程存储已配置")

	env := &controllers.Env{
		Store:            store,
		Registry:         service.NewWorkspaceRegistry(store, cfg.PageSize),
		PageSize:         cfg.PageSize,
		DashboardRefresh: cfg.DashboardRefresh,
	}

	// 审计日志（可选）
	if cfg.MongoURI != "" {
		if err := repository.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			utils.Logger.Error().Err(err).Msg("连接MongoDB失败，审计日志已禁用")
		} else {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				repository.CloseMongoDB(closeCtx)
			}()
			if err := repository.InitializeCollections(ctx); err != nil {
				utils.Logger.Error().Err(err).Msg("初始化数据库集合失败")
			}
			recorder := service.NewMongoAuditRecorder(
				repository.NewOperationLogRepository(repository.Collection(repository.OperationLogsCollection)),
			)
			env.Audit = recorder
			env.History = recorder
		}
	}

	// 导航状态：优先 Redis，否则使用进程内存储
	var kv repository.KeyValueStore = repository.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rs, err := repository.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			utils.Logger.Error().Err(err).Msg("连接Redis失败，使用内存存储导航状态")
		} else {
			kv = rs
		}
	}
	defer kv.Close()
	env.Navigation = service.NewNavigationStore(kv, cfg.SessionTTL)

	// 变更事件（可选）
	if cfg.KafkaBroker != "" {
		publisher, err := service.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
		if err != nil {
			utils.Logger.Error().Err(err).Msg("连接Kafka失败，变更事件已禁用")
		} else {
			env.Events = publisher
			defer publisher.Close()
		}
	}

	controllers.Setup(env)

	eviction := env.Registry.StartEviction(ctx, cfg.IdleTimeout)
	defer eviction.Stop()

	// 创建Gin实例
	router := gin.New()

	// 应用中间件
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.AllowOrigins))
	router.Use(middleware.PrometheusMetrics())
	router.Use(middleware.Session(cfg.SessionTTL))
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.OperationLoggerMiddleware())

	// 注册路由
	routes.RegisterRoutes(router)

	// 设置HTTP服务器；看板 websocket 是长连接，不设置 WriteTimeout
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// 启动服务器
	go func() {
		utils.Logger.Info().Msgf("服务器启动，监听端口: %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal().Err(err).Msg("启动服务器失败")
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Logger.Info().Msg("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error().Err(err).Msg("服务器关闭异常")
	}
	stop()

	utils.Logger.Info().Msg("服务器已优雅关闭")
}
