package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"VoyagerGuard/internal/dispatch"
	"VoyagerGuard/internal/geocode"
	"VoyagerGuard/internal/geofence"
	"VoyagerGuard/internal/handler"
	"VoyagerGuard/internal/listeners"
	"VoyagerGuard/internal/location"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/internal/queue"
	"VoyagerGuard/internal/compose"
	"VoyagerGuard/pkg/backup"
	"VoyagerGuard/pkg/cache"
	"VoyagerGuard/pkg/config"
	"VoyagerGuard/pkg/i18n"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/metrics"
	"VoyagerGuard/pkg/middleware"
	"VoyagerGuard/pkg/notification"
	"VoyagerGuard/pkg/scheduler"
	"VoyagerGuard/pkg/sse"
	"VoyagerGuard/pkg/storage"
	"VoyagerGuard/pkg/util"
	"VoyagerGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DSN
	if dsn == "" && cfg.DBDriver == "sqlite" {
		dsn = "data/voyager.db"
	}
	db, err := util.InitDatabase(cfg.DBDriver, dsn, cfg.Mode == "debug")
	if err != nil {
		logger.Error("数据库初始化失败", zap.Error(err))
		return
	}
	if err := db.AutoMigrate(
		&models.EmergencyContact{},
		&models.QueuedPayload{},
		&models.DeliveryRecord{},
		&models.AlertEvent{},
	); err != nil {
		logger.Error("数据库迁移失败", zap.Error(err))
		return
	}

	cacheClient, err := cache.NewLayeredCache(cfg.Cache)
	if err != nil {
		logger.Error("缓存初始化失败", zap.Error(err))
		return
	}

	zones, err := geofence.LoadZones(cfg.ZonesPath)
	if err != nil {
		logger.Warn("危险区域加载失败，地理围栏不可用", zap.String("path", cfg.ZonesPath), zap.Error(err))
	}
	geofence.SortBySeverity(zones)

	geo, err := geocode.New(nil, cfg.GeoIPPath, 0)
	if err != nil {
		logger.Warn("GeoIP库加载失败，IP定位不可用", zap.Error(err))
		geo, _ = geocode.New(nil, "", 0)
	}
	defer geo.Close()

	provider := location.New(cacheClient, geo, 0)

	var archiver queue.Archiver
	if cfg.ArchiveEnabled {
		if store := storage.NewMinioStoreFromEnv(); store.Configured() {
			archiver = storage.NewPayloadArchiver(store, "alerts")
		} else {
			logger.Warn("归档已启用但MinIO未配置，跳过归档")
		}
	}
	q := queue.New(db, queue.Options{
		RetryInterval: cfg.Dispatch.RetryInterval,
		MaxRetries:    cfg.Dispatch.MaxRetries,
	}, archiver)

	gateway := notification.NewGatewayClient(notification.LoadGatewayFromEnv())
	if !gateway.HasSMS() {
		logger.Warn("短信网关未配置，direct_message 通道将始终失败并入队")
	}
	m := metrics.New()

	d := dispatch.New(dispatch.Deps{
		DB:       db,
		Zones:    zones,
		Composer: compose.NewComposer(cfg.Dispatch.CompactMaxLen),
		Queue:    q,
		Location: provider,
		Direct:   notification.NewSMSDirectMessage(notification.SMSConfig{}, gateway),
		Share:    notification.NewNetworkShare(gateway),
		Probe:    notification.NewNetProbe("", gateway.HasSMS(), 0),
		Alarm:    listeners.NewSignalAlarm(),
		Metrics:  m,
	}, dispatch.Options{
		FanOut:          cfg.Dispatch.FanOut,
		LocationTimeout: cfg.Dispatch.LocationTimeout,
	})

	// 事件推送
	events := sse.NewHub(30 * time.Second)
	listeners.RegisterSSE(events)

	// 定位流
	streamHub := websocket.NewHub(websocket.LoadConfigFromEnv(), listeners.NewFixIngestor(provider))
	go listeners.StreamLocation(ctx, streamHub, provider)
	go listeners.WatchZones(ctx, provider, zones)

	// 周期任务：系统指标采样 + 队列深度刷新
	sched := scheduler.New()
	defer sched.Stop()
	monitor := metrics.NewSystemMonitor()
	sched.Every(15*time.Second, scheduler.FuncJob(func(context.Context) { monitor.Sample() }))
	sched.Every(30*time.Second, scheduler.FuncJob(func(jobCtx context.Context) {
		if depth, err := q.PendingCount(jobCtx); err == nil {
			m.SetQueueDepth(depth)
		}
	}))

	// 定时任务：重试扫描 + 备份
	cr := scheduler.NewCron(nil)
	if _, err := cr.AddWithCtx(cfg.Dispatch.RetryScanSpec, func(ctx context.Context) {
		if err := d.RetryScan(ctx); err != nil {
			logger.Warn("重试扫描失败", zap.Error(err))
		}
	}); err != nil {
		logger.Error("注册重试扫描任务失败", zap.Error(err))
		return
	}
	if cfg.BackupEnabled {
		if _, err := cr.AddWithCtx(cfg.BackupSchedule, func(context.Context) {
			if err := backup.Execute(backup.Config{Driver: cfg.DBDriver, DSN: dsn, Dir: cfg.BackupPath}); err != nil {
				logger.Warn("数据库备份失败", zap.Error(err))
			}
		}); err != nil {
			logger.Error("注册备份任务失败", zap.Error(err))
			return
		}
	}
	cr.Start()
	defer cr.Stop()

	translator, err := i18n.NewI18nSupport(cfg.DefaultLang, "locales")
	if err != nil {
		logger.Warn("多语言加载失败，使用消息键兜底", zap.Error(err))
	}

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.Language(cfg.DefaultLang),
		metrics.Middleware(m),
		// SOS路径绝不限流
		middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:       "30-S",
			Identifier: "ip+route",
			SkipPaths:  []string{cfg.APIPrefix + "/sos", "/metrics", "/health"},
			AddHeaders: true,
		}, nil).WithObserver(middleware.NewPrometheusObserver()).Middleware(),
	)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler.Handlers{
		DB:         db,
		Dispatcher: d,
		Provider:   provider,
		Queue:      q,
		Zones:      zones,
		Geo:        geo,
		Events:     events,
		Stream:     websocket.NewHandler(streamHub),
		I18n:       translator,
		TriggerGuards: []gin.HandlerFunc{
			middleware.Idempotency(middleware.IdempotencyConfig{
				Store: &middleware.CacheIdemStore{Cache: cacheClient},
			}),
		},
	}
	h.Register(engine.Group(cfg.APIPrefix))

	srv := &http.Server{Addr: cfg.Addr, Handler: engine}
	go func() {
		logger.Info("服务启动", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服务异常退出", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}
	streamHub.Shutdown()
	logger.Info("服务已退出")
}
