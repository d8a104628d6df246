package worker

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"chainless-core/internal/worker/tasks"
	"chainless-core/pkg/logger"
)

// Server 封装 Asynq Server (Worker)
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer 初始化 Worker Server
func NewServer(addr string, password string, db int, concurrency int, deliverer *tasks.Deliverer) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			// 验证码走 critical，转账通知走 default
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: logger.NewAsynqLogger(),
		},
	)

	return &Server{
		server: srv,
		mux:    NewMux(deliverer),
	}
}

// NewMux 注册任务处理器
func NewMux(deliverer *tasks.Deliverer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeVerificationDelivery, deliverer.HandleVerificationDelivery)
	mux.HandleFunc(tasks.TypeTransferNotice, deliverer.HandleTransferNotice)
	return mux
}

// Run 启动 Worker (阻塞)
func (s *Server) Run() error {
	logger.Info("Worker Server starting...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动 (用于集成到 main.go)
func (s *Server) Start() {
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			logger.Fatal("Worker Server failed", zap.Error(err))
		}
	}()
}

// Stop 停止 Worker
func (s *Server) Stop() {
	s.server.Stop()
	s.server.Shutdown()
}
