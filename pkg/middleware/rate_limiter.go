package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置。
// Rate 形如 "100-M"；PerRouteRates 按路由覆盖；SkipPaths 前缀匹配。
// 紧急端点（/sos/*）必须放进 SkipPaths：限流永远不能挡住求救
type RateLimiterConfig struct {
	Rate          string            `json:"rate"`
	PerRouteRates map[string]string `json:"per_route_rates"`
	Identifier    string            `json:"identifier"` // ip|header|ip+route
	HeaderName    string            `json:"header_name"`
	SkipPaths     []string          `json:"skip_paths"`
	AddHeaders    bool              `json:"add_headers"`
	DenyStatus    int               `json:"deny_status"`
	DenyMessage   string            `json:"deny_message"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route, key string)
	OnDeny(route, key string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

func NewPrometheusObserver() *PrometheusObserver {
	return &PrometheusObserver{
		allow: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route, key string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route, key string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter 面向实例的限流器，按速率字符串缓存 limiter
type RateLimiter struct {
	cfg      RateLimiterConfig
	store    limiter.Store
	observer MetricsObserver

	mu             sync.RWMutex
	limitersByRate map[string]*limiter.Limiter
}

func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	return &RateLimiter{
		cfg:            cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if l.skipped(route) {
			c.Next()
			return
		}

		key := l.buildKey(c, route)
		lim := l.getLimiter(l.pickRate(route))

		lctx, err := lim.Get(c, key)
		if err != nil {
			c.Next()
			return
		}
		if l.cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		}
		if lctx.Reached {
			retry := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			if l.observer != nil {
				l.observer.OnDeny(route, key)
			}
			status := l.cfg.DenyStatus
			if status == 0 {
				status = http.StatusTooManyRequests
			}
			msg := l.cfg.DenyMessage
			if msg == "" {
				msg = "Too Many Requests"
			}
			c.AbortWithStatusJSON(status, gin.H{"code": 1, "message": msg})
			return
		}
		if l.observer != nil {
			l.observer.OnAllow(route, key)
		}
		c.Next()
	}
}

func (l *RateLimiter) skipped(route string) bool {
	for _, prefix := range l.cfg.SkipPaths {
		if prefix != "" && strings.HasPrefix(route, prefix) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) pickRate(route string) string {
	if rate, ok := l.cfg.PerRouteRates[route]; ok && rate != "" {
		return rate
	}
	if l.cfg.Rate != "" {
		return l.cfg.Rate
	}
	return "10-S"
}

func (l *RateLimiter) buildKey(c *gin.Context, route string) string {
	ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
	switch l.cfg.Identifier {
	case "header":
		if v := strings.TrimSpace(c.GetHeader(l.cfg.HeaderName)); v != "" {
			return "hdr:" + l.cfg.HeaderName + ":" + v
		}
		return "ip:" + ip
	case "ip+route":
		return "iprt:" + ip + ":" + route
	default:
		return "ip:" + ip
	}
}

func (l *RateLimiter) getLimiter(rate string) *limiter.Limiter {
	l.mu.RLock()
	lim, ok := l.limitersByRate[rate]
	l.mu.RUnlock()
	if ok {
		return lim
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limitersByRate[rate]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim = limiter.New(l.store, r)
	l.limitersByRate[rate] = lim
	return lim
}
