package notification

import (
	"context"
	"errors"
)

// ShareClient 网络分享网关（推送服务、邮件桥、webhook 等），可注入
type ShareClient interface {
	Share(ctx context.Context, text, subject string) error
}

// NetworkShare 依赖数据网络的广播式分享通道
type NetworkShare struct {
	cli ShareClient
}

func NewNetworkShare(cli ShareClient) *NetworkShare {
	return &NetworkShare{cli: cli}
}

func (n *NetworkShare) Share(ctx context.Context, text, subject string) error {
	if n.cli == nil {
		return errors.New("ShareClient not configured")
	}
	return n.cli.Share(ctx, text, subject)
}
