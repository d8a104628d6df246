package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/handler"
	"chainless-core/internal/model"
	"chainless-core/internal/server"
	"chainless-core/internal/service"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/guard"
	"chainless-core/internal/service/mq"
	"chainless-core/internal/service/notify"
	"chainless-core/internal/service/saga"
	"chainless-core/internal/service/message"
	"chainless-core/internal/service/secret"
	"chainless-core/internal/service/strategy"
	"chainless-core/internal/service/transfer"
	"chainless-core/internal/service/user"
	"chainless-core/internal/worker"
	"chainless-core/internal/worker/tasks"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/database"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/utils/lock"
)

// @title Chainless Wallet API
// @version 1.0
// @description 多设备多签钱包后端
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 连接数据库
	db, err := database.ConnectPostgres(cfg.DB, cfg.App.Env)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3. 连接 Redis
	rdb, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 4. 开发环境自动迁移，其他环境使用 cmd/migrate
	if cfg.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}

	// 5. 缓存: 会话和验证码需要多实例共享，链上幂等记录加一层本地缓存
	shared := cache.NewRedisCache(rdb)
	local := cache.NewMemoryCache(5*time.Minute, 10*time.Minute)
	submitted := cache.NewMultiLevelCache(local, shared)

	// 6. 链驱动
	submitter, closeChain, err := chain.Open(ctx, cfg.Chain, submitted)
	if err != nil {
		logger.Fatal("链驱动初始化失败", zap.Error(err))
	}
	defer closeChain()

	// 7. 业务服务
	defaultLimit, err := decimal.NewFromString(cfg.Wallet.DefaultSubaccountLimit)
	if err != nil {
		logger.Fatal("默认子账户限额配置错误", zap.String("value", cfg.Wallet.DefaultSubaccountLimit), zap.Error(err))
	}

	queue := worker.NewClient(cfg.Redis)
	defer queue.Close()

	sessions := guard.NewSessionStore(shared, cfg.Auth.TokenTTL)
	users := user.NewService(db,
		guard.NewCodeStore(shared, cfg.Auth),
		guard.NewLoginGuard(shared, cfg.Auth),
		sessions,
		queue,
	)
	exec := saga.NewExecutor(db, submitter, cfg.Reconcile.MaxAttempts)
	strategies := strategy.NewService(db, exec, strategy.NewPendingKeyStore(shared, cfg.Wallet.PendingKeyTTL), defaultLimit)
	transfers := transfer.NewService(db, submitter, cfg.Wallet.TxExpire, cfg.Wallet.BridgeAccount, cfg.Reconcile.MaxAttempts)
	secrets := secret.NewService(db)

	// 8. 异步任务 Worker
	workerSrv := worker.NewServer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Worker.Concurrency,
		tasks.NewDeliverer(cfg.Mail, cfg.SMS))
	workerSrv.Start()
	defer workerSrv.Stop()

	// 9. 消息队列: Outbox 中继和转账通知
	producer, consumer := newMQ(cfg, rdb)
	defer consumer.Close()

	go service.NewRelayService(db, producer).Start(ctx)
	go func() {
		if err := notify.NewTransferNotifier(db, queue).Run(ctx, consumer); err != nil && ctx.Err() == nil {
			logger.Error("转账通知消费退出", zap.Error(err))
		}
	}()

	// 10. 定时任务: 管理记录对账、转账广播和过期
	cronSrv := service.NewCronService(lock.NewRedisLock(rdb), exec, transfers, cfg.Reconcile.Interval, cfg.Reconcile.BatchSize)
	if err := cronSrv.Start(); err != nil {
		logger.Fatal("定时任务启动失败", zap.Error(err))
	}
	defer cronSrv.Stop()

	// 11. HTTP 与 gRPC
	r := server.NewHTTPRouter(server.Handlers{
		Health:   handler.NewHealthHandler(db),
		Account:  handler.NewAccountHandler(users),
		Wallet:   handler.NewWalletHandler(strategies, secrets, users, message.NewService(db)),
		Transfer: handler.NewTransferHandler(transfers),
	}, sessions)
	grpcServer, _ := server.NewGRPCServer()

	app, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
	}, r, grpcServer)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞)
	app.Run(ctx)

	// 12. 退出后资源清理
	closeDB(db)
	if err := rdb.Close(); err != nil {
		logger.Warn("关闭 Redis 连接失败", zap.Error(err))
	}
	logger.Info("系统已退出")
}

// newMQ 按 redis.mq_type 选择 Kafka 或 Redis Streams
func newMQ(cfg config.Config, rdb *redis.Client) (mq.Producer, mq.Consumer) {
	host, _ := os.Hostname()
	if cfg.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...", zap.Strings("brokers", cfg.Kafka.Brokers))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers), mq.NewKafkaConsumer(cfg.Kafka.Brokers, "chainless_notify_group")
	}
	logger.Info("使用 Redis Streams 作为消息队列...")
	return mq.NewRedisProducer(rdb), mq.NewRedisConsumer(rdb, "chainless_notify", "notify-"+host)
}

func closeDB(db *gorm.DB) {
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
