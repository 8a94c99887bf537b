// internal/service/messaging/dispatcher_test.go
package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	"restrohub/internal/service/loyalty/domain"
)

type fakeWhatsApp struct {
	configured bool
	fail       bool

	sentTo  []string
	sentMsg []string
}

func (f *fakeWhatsApp) Configured() bool { return f.configured }

func (f *fakeWhatsApp) SendWhatsApp(ctx context.Context, phoneNumber, message string) error {
	if f.fail {
		return errors.New("odoo session expired")
	}
	f.sentTo = append(f.sentTo, phoneNumber)
	f.sentMsg = append(f.sentMsg, message)
	return nil
}

type fakeSMS struct {
	configured bool
	fail       bool

	sentTo []string
}

func (f *fakeSMS) Configured() bool { return f.configured }

func (f *fakeSMS) SendSMS(ctx context.Context, toNumber, body string) (string, error) {
	if f.fail {
		return "", errors.New("twilio 401")
	}
	f.sentTo = append(f.sentTo, toNumber)
	return "SM123", nil
}

func testEvent(channel string) *domain.NotificationEvent {
	return &domain.NotificationEvent{
		EventID:      "evt-1",
		UserID:       "user-1",
		RestaurantID: "rest-1",
		PhoneNumber:  "+919876543210",
		Channel:      channel,
		Message:      "You earned 60 points!",
		Kind:         "claim",
	}
}

func newTestDispatcher(odoo *fakeWhatsApp, twilio *fakeSMS) *Dispatcher {
	return NewDispatcher(odoo, twilio, noop.NewTracerProvider().Tracer("test"))
}

func TestDispatch_WhatsAppPreferred(t *testing.T) {
	odoo := &fakeWhatsApp{configured: true}
	twilio := &fakeSMS{configured: true}

	newTestDispatcher(odoo, twilio).Dispatch(context.Background(), testEvent(""))

	assert.Equal(t, []string{"+919876543210"}, odoo.sentTo)
	assert.Equal(t, []string{"You earned 60 points!"}, odoo.sentMsg)
	assert.Empty(t, twilio.sentTo)
}

func TestDispatch_FallsBackToSMS(t *testing.T) {
	odoo := &fakeWhatsApp{configured: true, fail: true}
	twilio := &fakeSMS{configured: true}

	newTestDispatcher(odoo, twilio).Dispatch(context.Background(), testEvent(""))

	assert.Equal(t, []string{"+919876543210"}, twilio.sentTo)
}

func TestDispatch_SMSChannelSkipsWhatsApp(t *testing.T) {
	odoo := &fakeWhatsApp{configured: true}
	twilio := &fakeSMS{configured: true}

	newTestDispatcher(odoo, twilio).Dispatch(context.Background(), testEvent("sms"))

	assert.Empty(t, odoo.sentTo)
	assert.Equal(t, []string{"+919876543210"}, twilio.sentTo)
}

func TestDispatch_SkipsWithoutPhoneNumber(t *testing.T) {
	odoo := &fakeWhatsApp{configured: true}
	twilio := &fakeSMS{configured: true}

	event := testEvent("")
	event.PhoneNumber = ""
	newTestDispatcher(odoo, twilio).Dispatch(context.Background(), event)

	assert.Empty(t, odoo.sentTo)
	assert.Empty(t, twilio.sentTo)
}

func TestDispatch_UnconfiguredOdooGoesStraightToSMS(t *testing.T) {
	odoo := &fakeWhatsApp{configured: false}
	twilio := &fakeSMS{configured: true}

	newTestDispatcher(odoo, twilio).Dispatch(context.Background(), testEvent(""))

	assert.Empty(t, odoo.sentTo)
	assert.Equal(t, []string{"+919876543210"}, twilio.sentTo)
}
