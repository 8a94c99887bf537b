package port

import (
	"context"

	"restrohub/internal/service/loyalty/domain"
)

// NotificationDispatcher 是出站消息的端口。实现必须是 fire-and-forget
// 语义：入队即返回，不等待外部投递确认。
type NotificationDispatcher interface {
	Send(ctx context.Context, event *domain.NotificationEvent) error
}
