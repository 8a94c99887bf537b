// internal/service/messaging/twilio.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"restrohub/internal/pkg/httpclient"
)

// TwilioConfig 是 Twilio REST API 的凭据配置。
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioClient 直接走 Twilio 的 Messages REST 端点发短信，
// 作为 Odoo 通道不可用时的回退。
type TwilioClient struct {
	cfg  TwilioConfig
	http *httpclient.Client
}

func NewTwilioClient(cfg TwilioConfig, http *httpclient.Client) *TwilioClient {
	return &TwilioClient{cfg: cfg, http: http}
}

func (c *TwilioClient) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && c.cfg.FromNumber != ""
}

// SendSMS 发送一条短信，返回 Twilio 的消息 SID。
func (c *TwilioClient) SendSMS(ctx context.Context, toNumber, body string) (string, error) {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.cfg.AccountSID)

	respBody, err := c.http.PostForm(ctx, endpoint, url.Values{
		"To":   {toNumber},
		"From": {c.cfg.FromNumber},
		"Body": {body},
	}, c.cfg.AccountSID, c.cfg.AuthToken)
	if err != nil {
		return "", fmt.Errorf("twilio sms failed: %w", err)
	}

	var resp struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("twilio response unmarshal failed: %w", err)
	}
	return resp.SID, nil
}

var _ SMSSender = (*TwilioClient)(nil)
