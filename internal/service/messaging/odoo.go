// internal/service/messaging/odoo.go
package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"

	"restrohub/internal/pkg/httpclient"
)

// OdooConfig 是 Odoo JSON-RPC 后台的连接配置。
type OdooConfig struct {
	BaseURL  string
	Database string
	Username string
	Password string
}

// OdooClient 是显式构造、由组装根注入的 Odoo 会话客户端。
// 认证状态归客户端自己持有，会话失效时在下一次调用前重新认证。
type OdooClient struct {
	cfg  OdooConfig
	http *httpclient.Client

	mu            sync.Mutex
	authenticated bool
}

func NewOdooClient(cfg OdooConfig, http *httpclient.Client) *OdooClient {
	return &OdooClient{cfg: cfg, http: http}
}

// Configured 表示配置是否齐全；不齐全时调用方应跳过 Odoo 通道。
func (c *OdooClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.Database != "" && c.cfg.Username != "" && c.cfg.Password != ""
}

type odooRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method,omitempty"`
	Params  map[string]interface{} `json:"params"`
}

type odooRPCResponse struct {
	Result interface{} `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ensureAuthenticated 做一次惰性登录，会话由底层 HTTP 客户端的
// 连接池保持。
func (c *OdooClient) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated {
		return nil
	}

	var resp odooRPCResponse
	err := c.http.PostJSON(ctx, c.cfg.BaseURL+"/web/session/authenticate", odooRPCRequest{
		JSONRPC: "2.0",
		Params: map[string]interface{}{
			"db":       c.cfg.Database,
			"login":    c.cfg.Username,
			"password": c.cfg.Password,
		},
	}, &resp)
	if err != nil {
		return fmt.Errorf("odoo authentication request failed: %w", err)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["uid"] == nil {
		return fmt.Errorf("odoo authentication rejected for db %s", c.cfg.Database)
	}
	c.authenticated = true
	log.Printf("INFO: [Odoo] authenticated against %s", c.cfg.BaseURL)
	return nil
}

// callKw 是 /web/dataset/call_kw 的通用封装。
func (c *OdooClient) callKw(ctx context.Context, model, method string, args []interface{}) (interface{}, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var resp odooRPCResponse
	err := c.http.PostJSON(ctx, c.cfg.BaseURL+"/web/dataset/call_kw", odooRPCRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]interface{}{
			"model":  model,
			"method": method,
			"args":   args,
			"kwargs": map[string]interface{}{},
		},
	}, &resp)
	if err != nil {
		// 会话可能过期，下一次调用重新认证
		c.mu.Lock()
		c.authenticated = false
		c.mu.Unlock()
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("odoo %s.%s failed: %s", model, method, resp.Error.Message)
	}
	return resp.Result, nil
}

// SendWhatsApp 通过 Odoo 的 mail composer 发一条 WhatsApp 消息：
// 先 create composer，再触发 send_whatsapp。
func (c *OdooClient) SendWhatsApp(ctx context.Context, phoneNumber, message string) error {
	composer, err := c.callKw(ctx, "mail.compose.message", "create", []interface{}{
		map[string]interface{}{
			"phone_number": phoneNumber,
			"body":         message,
		},
	})
	if err != nil {
		return err
	}
	composerID := firstID(composer)
	if composerID == nil {
		return fmt.Errorf("odoo composer create returned no id")
	}

	_, err = c.callKw(ctx, "mail.compose.message", "send_whatsapp", []interface{}{composerID, phoneNumber})
	return err
}

// firstID 兼容 Odoo 两种返回形态：标量 id 或 [id] 列表。
func firstID(result interface{}) interface{} {
	switch v := result.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	case nil:
		return nil
	default:
		return v
	}
}

var _ WhatsAppSender = (*OdooClient)(nil)
