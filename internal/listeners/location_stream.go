package listeners

import (
	"context"
	"encoding/json"

	"VoyagerGuard/internal/location"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/pkg/websocket"

	errs "VoyagerGuard/pkg/errors"
)

// FixIngestor 将定位流上报的原始数据写入Provider
type FixIngestor struct {
	provider *location.Provider
}

// NewFixIngestor 创建定位上报适配器
func NewFixIngestor(p *location.Provider) *FixIngestor {
	return &FixIngestor{provider: p}
}

// Ingest 解析并上报一条定位
func (f *FixIngestor) Ingest(ctx context.Context, raw []byte) error {
	var fix models.LocationFix
	if err := json.Unmarshal(raw, &fix); err != nil {
		return errs.Errorf("解析定位数据失败: %v", err)
	}
	_, err := f.provider.Report(ctx, fix)
	return err
}

// StreamLocation 订阅Provider的定位更新并广播到定位流，ctx取消后退出
func StreamLocation(ctx context.Context, hub *websocket.Hub, p *location.Provider) {
	ch, cancel := p.Subscribe(16)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-ch:
			if !ok {
				return
			}
			hub.Broadcast(websocket.MessageTypeLocation, fix)
		}
	}
}
