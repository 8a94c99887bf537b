// internal/service/messaging/consumer.go
package messaging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"restrohub/internal/pkg/logger"
	"restrohub/internal/pkg/mq"
	"restrohub/internal/service/loyalty/domain"
)

// Consumer 从 notifications 主题拉取事件并交给 Dispatcher。
// 消息在处理完成后显式提交；投递失败不重投（fire-and-forget 语义），
// 只有解码不了的消息会被记录后跳过。
type Consumer struct {
	reader     *kafka.Reader
	dispatcher *Dispatcher
	tracer     trace.Tracer
}

func NewConsumer(reader *kafka.Reader, dispatcher *Dispatcher, tracer trace.Tracer) *Consumer {
	return &Consumer{reader: reader, dispatcher: dispatcher, tracer: tracer}
}

// Run 是消费主循环，ctx 取消后返回。
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("INFO: [Messaging] consumer started on topic %s", c.reader.Config().Topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("ERROR: [Messaging] failed to fetch message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("ERROR: [Messaging] failed to commit offset %d: %v", msg.Offset, err)
		}
	}
}

// process 处理单条消息，把消费 span 接回生产侧的追踪链路。
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctx = mq.ExtractTraceContext(ctx, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "messaging.ProcessNotification",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	ctx, zl := logger.WithTraceID(ctx)

	var event domain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmarshal failed")
		log.Printf("ERROR: [Messaging] failed to unmarshal message at offset %d: %v", msg.Offset, err)
		return
	}
	zl.Info().Str("kind", event.Kind).Str("user_id", event.UserID).Msg("notification received")

	c.dispatcher.Dispatch(ctx, &event)
}

// Close 关闭底层 reader。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
