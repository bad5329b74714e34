package notification

import (
	"net/http"
	"time"

	"VoyagerGuard/pkg/util"
)

// NetProbe 派发时刻的连通性探测：对探测地址发一次HEAD请求，
// 任何HTTP响应（含非2xx）都说明有网络
type NetProbe struct {
	pingURL string
	hasSMS  bool
	http    *http.Client
}

// NewNetProbe 创建探测器。hasSMS 表示短信类通道是否可用
func NewNetProbe(pingURL string, hasSMS bool, timeout time.Duration) *NetProbe {
	if pingURL == "" {
		pingURL = util.GetEnvDefault("CONNECTIVITY_PING_URL", "https://connectivitycheck.gstatic.com/generate_204")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NetProbe{
		pingURL: pingURL,
		hasSMS:  hasSMS,
		http:    &http.Client{Timeout: timeout},
	}
}

func (p *NetProbe) IsOnline() bool {
	resp, err := p.http.Head(p.pingURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (p *NetProbe) HasDirectMessage() bool { return p.hasSMS }
