package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa/internal/config"
	"docqa/internal/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 *kafka.Writer 中发布器用到的部分，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunEventPublisher 封装了向 Kafka 发送运行事件的逻辑。
type RunEventPublisher struct {
	writer messageWriter
	topic  string
}

// NewRunEventPublisher 创建一个新的 RunEventPublisher 实例。
// 主题不存在时由 Broker 自动创建。
func NewRunEventPublisher(cfg config.KafkaConfig) (*RunEventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("未配置 Kafka brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("未配置 Kafka topic")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		AllowAutoTopicCreation: true,
	}
	return &RunEventPublisher{writer: writer, topic: cfg.Topic}, nil
}

// Publish 将 RunEvent 序列化为 JSON 并以 RunID 为键发送到 Kafka。
func (p *RunEventPublisher) Publish(ctx context.Context, event *models.RunEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: jsonData,
		Time:  event.Timestamp,
	}); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *RunEventPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 在未配置 Kafka 时丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *models.RunEvent) error { return nil }
func (NopPublisher) Close() error                                             { return nil }
