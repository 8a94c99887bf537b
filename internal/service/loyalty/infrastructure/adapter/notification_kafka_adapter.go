// internal/service/loyalty/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"restrohub/internal/pkg/mq"
	"restrohub/internal/service/loyalty/domain"
	"restrohub/internal/service/loyalty/port"
)

// NotificationKafkaAdapter 实现了 port.NotificationDispatcher 接口。
// 消息按 user_id 做分区 key，同一用户的通知保持顺序。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotificationKafkaAdapter 创建一个新的通知生产者适配器。
func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// Send 把通知事件写入 notifications topic。
// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入。
func (a *NotificationKafkaAdapter) Send(ctx context.Context, event *domain.NotificationEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.UserID), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}

var _ port.NotificationDispatcher = (*NotificationKafkaAdapter)(nil)
