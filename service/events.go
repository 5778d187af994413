package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/segmentio/kafka-go"
)

// ChangePublisher 发布已确认的变更事件
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Close() error
}

// NopPublisher 未配置 Kafka 时使用
type NopPublisher struct{}

// Publish 不做任何事
func (NopPublisher) Publish(context.Context, models.ChangeEvent) error { return nil }

// Close 不做任何事
func (NopPublisher) Close() error { return nil }

// KafkaPublisher 将变更事件写入 Kafka，key 为 kind:id，同一实体的事件落在同一分区
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher 创建 Kafka 发布器并检查 broker 连通性
func NewKafkaPublisher(broker, topic string) (*KafkaPublisher, error) {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	defer conn.Close()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Publish 发布事件
func (p *KafkaPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化变更事件失败: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(string(event.Kind) + ":" + event.EntityID),
		Value: value,
		Time:  event.OccurredAt,
	})
}

// Close 关闭写入器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
