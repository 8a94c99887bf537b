// internal/service/messaging/dispatcher.go
package messaging

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"restrohub/internal/service/loyalty/domain"
)

// WhatsAppSender 是 WhatsApp 通道的发送端，由 OdooClient 实现。
type WhatsAppSender interface {
	Configured() bool
	SendWhatsApp(ctx context.Context, phoneNumber, message string) error
}

// SMSSender 是短信回退通道的发送端，由 TwilioClient 实现。
type SMSSender interface {
	Configured() bool
	SendSMS(ctx context.Context, toNumber, body string) (string, error)
}

// Dispatcher 按通道顺序投递一条通知：优先 Odoo 的 WhatsApp 通道，
// 失败或未配置时回退 Twilio 短信。两个通道都失败只记日志，
// 上游的积分/券变更已经提交，投递失败不回传。
type Dispatcher struct {
	odoo   WhatsAppSender
	twilio SMSSender
	tracer trace.Tracer
}

func NewDispatcher(odoo WhatsAppSender, twilio SMSSender, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{odoo: odoo, twilio: twilio, tracer: tracer}
}

// Dispatch 处理一条出站通知事件。
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.NotificationEvent) {
	ctx, span := d.tracer.Start(ctx, "messaging.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", event.UserID),
		attribute.String("notification.kind", event.Kind),
		attribute.String("notification.channel", event.Channel),
	)

	if event.PhoneNumber == "" {
		// 没有号码的事件只能留痕，等用户资料补全
		log.Printf("INFO: [Messaging: %s] no phone number on %s event, skipping delivery", event.UserID, event.Kind)
		span.AddEvent("skipped: no phone number")
		return
	}

	if event.Channel != "sms" && d.odoo != nil && d.odoo.Configured() {
		if err := d.odoo.SendWhatsApp(ctx, event.PhoneNumber, event.Message); err == nil {
			span.AddEvent("delivered via whatsapp")
			log.Printf("INFO: [Messaging: %s] whatsapp delivered (%s)", event.UserID, event.Kind)
			return
		} else {
			span.RecordError(err)
			log.Printf("ERROR: [Messaging: %s] whatsapp delivery failed, falling back to sms: %v", event.UserID, err)
		}
	}

	if d.twilio != nil && d.twilio.Configured() {
		sid, err := d.twilio.SendSMS(ctx, event.PhoneNumber, event.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "all delivery channels failed")
			log.Printf("ERROR: [Messaging: %s] sms fallback failed: %v", event.UserID, err)
			return
		}
		span.AddEvent("delivered via sms")
		log.Printf("INFO: [Messaging: %s] sms delivered, sid=%s", event.UserID, sid)
		return
	}

	span.SetStatus(codes.Error, "no delivery channel configured")
	log.Printf("ERROR: [Messaging: %s] no delivery channel configured for %s event", event.UserID, event.Kind)
}
