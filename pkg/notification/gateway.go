package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"VoyagerGuard/pkg/util"
)

// GatewayConfig 外部消息网关配置。SMSURL/ShareURL 为空表示对应通道未接入
type GatewayConfig struct {
	SMSURL   string
	ShareURL string
	APIKey   string
	Timeout  time.Duration
}

// LoadGatewayFromEnv 从环境变量加载网关配置
func LoadGatewayFromEnv() GatewayConfig {
	timeout := 10 * time.Second
	if v := util.GetIntEnv("GATEWAY_TIMEOUT_SECONDS"); v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	return GatewayConfig{
		SMSURL:   util.GetEnv("GATEWAY_SMS_URL"),
		ShareURL: util.GetEnv("GATEWAY_SHARE_URL"),
		APIKey:   util.GetEnv("GATEWAY_API_KEY"),
		Timeout:  timeout,
	}
}

// GatewayClient 通过HTTP网关发送消息，同时实现 SMSClient 和 ShareClient
type GatewayClient struct {
	cfg  GatewayConfig
	http *http.Client
}

// NewGatewayClient 创建网关客户端
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GatewayClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// HasSMS 短信通道是否已接入
func (g *GatewayClient) HasSMS() bool { return g.cfg.SMSURL != "" }

// HasShare 分享通道是否已接入
func (g *GatewayClient) HasShare() bool { return g.cfg.ShareURL != "" }

// Send 发送一条短信
func (g *GatewayClient) Send(ctx context.Context, phone, text string) error {
	return g.post(ctx, g.cfg.SMSURL, map[string]string{"phone": phone, "text": text})
}

// Share 推送一条分享消息
func (g *GatewayClient) Share(ctx context.Context, text, subject string) error {
	return g.post(ctx, g.cfg.ShareURL, map[string]string{"text": text, "subject": subject})
}

func (g *GatewayClient) post(ctx context.Context, url string, body map[string]string) error {
	if url == "" {
		return fmt.Errorf("gateway endpoint not configured")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
