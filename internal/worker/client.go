package worker

import (
	"github.com/hibiken/asynq"

	"chainless-core/pkg/config"
)

// Client 封装 Asynq Client
type Client struct {
	client *asynq.Client
}

// NewClient 使用 redis 配置初始化 Client
func NewClient(cfg config.RedisConfig) *Client {
	c := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{client: c}
}

// Enqueue 将任务推送到队列
func (c *Client) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.Enqueue(task, opts...)
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	return c.client.Close()
}
