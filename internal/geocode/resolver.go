package geocode

import (
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"

	"VoyagerGuard/pkg/logger"

	"go.uber.org/zap"
)

// LookupFunc 外部反向地理编码客户端，(lat, lon) → 地名。网络实现不在本仓库内
type LookupFunc func(lat, lon float64) (string, error)

// Resolver 反向地理编码：外部查询结果用 LRU 记忆，
// 没有外部客户端时退化为空地名；另带 GeoIP 库做基于客户端 IP 的粗粒度兜底
type Resolver struct {
	lookup LookupFunc
	memo   *lru.Cache[string, string]
	geo    *geoip2.Reader
}

// New geoipPath 为空则不启用 IP 兜底；memoSize <=0 用默认 512
func New(lookup LookupFunc, geoipPath string, memoSize int) (*Resolver, error) {
	if memoSize <= 0 {
		memoSize = 512
	}
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, err
	}
	r := &Resolver{lookup: lookup, memo: memo}
	if geoipPath != "" {
		geo, err := geoip2.Open(geoipPath)
		if err != nil {
			return nil, err
		}
		r.geo = geo
	}
	return r, nil
}

// Name 坐标转地名，失败返回空串（报文里的地名本来就是可选项）
func (r *Resolver) Name(lat, lon float64) string {
	if r.lookup == nil {
		return ""
	}
	// 约 11m 精度的记忆键，挨得够近的点不重复查询
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if name, ok := r.memo.Get(key); ok {
		return name
	}
	name, err := r.lookup(lat, lon)
	if err != nil {
		logger.Debug("geocode: lookup failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return ""
	}
	r.memo.Add(key, name)
	return name
}

// CityFromIP 客户端 IP 的粗粒度地名兜底
func (r *Resolver) CityFromIP(ip net.IP) string {
	if r.geo == nil || ip == nil {
		return ""
	}
	record, err := r.geo.City(ip)
	if err != nil {
		return ""
	}
	if name, ok := record.City.Names["en"]; ok {
		return name
	}
	return record.Country.Names["en"]
}

// CountryFromIP 返回 ISO 国家码，用于急救号码查询
func (r *Resolver) CountryFromIP(ip net.IP) string {
	if r.geo == nil || ip == nil {
		return ""
	}
	record, err := r.geo.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (r *Resolver) Close() error {
	if r.geo != nil {
		return r.geo.Close()
	}
	return nil
}
