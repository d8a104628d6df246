package mq

import "context"

// Message 代表一条通用的业务消息
type Message struct {
	ID       string            // 消息ID (Redis Stream ID 或 Kafka partition/offset)
	Topic    string            // 主题 (例如 "chainless_events_transfer")
	Key      string            // 分区键，同一账户的事件使用相同的 key
	Payload  []byte            // 消息体 (JSON)
	Metadata map[string]string // 元数据
}

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 分区键，传空字符串则随机分区
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// Handler 消息处理函数，返回 error 的消息不确认，等待重新投递
type Handler func(ctx context.Context, msg *Message) error

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 订阅主题，阻塞直到 ctx 取消
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close 关闭消费者
	Close() error
}
