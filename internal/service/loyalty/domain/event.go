// internal/service/loyalty/domain/event.go
package domain

import "time"

// NotificationEvent 是投递到 notifications 主题的出站消息载体。
// 积分/券的变更提交后才发布；投递是 fire-and-forget，
// 永远不能阻塞在变更的关键路径里。
type NotificationEvent struct {
	EventID      string `json:"eventId"`
	UserID       string `json:"userId"`
	RestaurantID string `json:"restaurantId,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	Channel      string `json:"channel,omitempty"` // whatsapp / sms，空表示按默认顺序尝试
	Message      string `json:"message"`
	Kind         string `json:"kind"` // claim / referral / threshold_migration
}

// AuditEntry 是 audit_logs 的一条只追加记录，跟踪端点落库用。
type AuditEntry struct {
	UserID    string
	Action    string
	Details   map[string]interface{}
	CreatedAt time.Time
}
