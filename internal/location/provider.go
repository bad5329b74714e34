package location

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/cache"
	errs "VoyagerGuard/pkg/errors"
	"VoyagerGuard/pkg/logger"

	"go.uber.org/zap"
)

// cacheKey 最后已知位置的缓存键，每次成功定位整体覆盖
const cacheKey = "location:last_known"

// ErrInvalidFix 坐标非法（NaN/越界）
var ErrInvalidFix = errs.New("invalid location fix")

// Geocoder 反向地理编码，可选。实现见 internal/geocode
type Geocoder interface {
	Name(lat, lon float64) string
}

// Provider 位置提供方：客户端上报的定位进内存 + 缓存，
// 派发时先取新鲜的实时定位，不新鲜再回退缓存。
// 订阅接口给 websocket 流用，显式退订，不挂在任何生命周期上
type Provider struct {
	cache      cache.Cache
	geocoder   Geocoder
	maxLiveAge time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	live   *models.LocationFix
	subs   map[uint64]chan models.LocationFix
	nextID uint64
}

// New maxLiveAge 内的上报算实时定位，之外只能当缓存用
func New(c cache.Cache, geocoder Geocoder, maxLiveAge time.Duration) *Provider {
	if maxLiveAge <= 0 {
		maxLiveAge = 2 * time.Minute
	}
	return &Provider{
		cache:      c,
		geocoder:   geocoder,
		maxLiveAge: maxLiveAge,
		now:        time.Now,
		subs:       make(map[uint64]chan models.LocationFix),
	}
}

// Report 接收一次客户端上报：校验、补全地名、写缓存、广播给订阅者
func (p *Provider) Report(ctx context.Context, fix models.LocationFix) (models.LocationFix, error) {
	if !fix.Valid() {
		return models.LocationFix{}, ErrInvalidFix
	}
	if fix.TimestampMs == 0 {
		fix.TimestampMs = p.now().UnixMilli()
	}
	fix.IsStale = false
	if fix.LocationName == "" && p.geocoder != nil {
		fix.LocationName = p.geocoder.Name(fix.Latitude, fix.Longitude)
	}

	p.mu.Lock()
	p.live = &fix
	p.mu.Unlock()

	if body, err := json.Marshal(fix); err == nil {
		// 不设过期：最后已知位置宁可陈旧也不能没有
		if err := p.cache.Set(ctx, cacheKey, string(body), 0); err != nil {
			logger.Warn("location: cache write failed", zap.Error(err))
		}
	}

	p.broadcast(fix)
	return fix, nil
}

// CurrentFix 返回足够新鲜的实时定位，过旧或没有则报错，调用方自行回退缓存
func (p *Provider) CurrentFix(ctx context.Context) (models.LocationFix, error) {
	p.mu.RLock()
	live := p.live
	p.mu.RUnlock()
	if live == nil {
		return models.LocationFix{}, errs.New("no live fix reported yet")
	}
	if live.Age(p.now()) > p.maxLiveAge {
		return models.LocationFix{}, errs.Errorf("live fix too old: %s", live.Age(p.now()))
	}
	return *live, nil
}

// LastKnownFix 读缓存里的最后已知位置；跨进程重启仍然可用（分层缓存的 Redis 层）
func (p *Provider) LastKnownFix(ctx context.Context) (models.LocationFix, error) {
	raw, ok := p.cache.Get(ctx, cacheKey)
	if !ok {
		return models.LocationFix{}, errs.New("no cached fix")
	}
	body, ok := raw.(string)
	if !ok {
		return models.LocationFix{}, errs.Errorf("unexpected cache value type %T", raw)
	}
	var fix models.LocationFix
	if err := json.Unmarshal([]byte(body), &fix); err != nil {
		return models.LocationFix{}, errs.Wrap(err, "decode cached fix")
	}
	if !fix.Valid() {
		return models.LocationFix{}, ErrInvalidFix
	}
	return fix, nil
}

// Subscribe 订阅后续上报。返回的取消函数幂等，关闭通道并移除订阅
func (p *Provider) Subscribe(buffer int) (<-chan models.LocationFix, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan models.LocationFix, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast 慢订阅者丢最新一条而不是阻塞上报路径
func (p *Provider) broadcast(fix models.LocationFix) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- fix:
		default:
		}
	}
}
