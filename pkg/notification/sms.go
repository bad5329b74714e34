package notification

import (
	"context"
	"errors"
	"fmt"
)

// ErrPartialSend 多段短信只发出去一部分。调用方可据此记 partially_sent
var ErrPartialSend = errors.New("partial send: some chunks were not delivered")

// SMSClient 便于替换/注入的短信网关接口（适配真实 SDK）
type SMSClient interface {
	Send(ctx context.Context, phone, text string) error
}

type SMSConfig struct {
	SenderID string
	// ChunkSize 单段字符上限，默认 153（级联短信段长）
	ChunkSize int
}

// SMSDirectMessage 点对点短信通道，超长文本内部按段发送
type SMSDirectMessage struct {
	cfg SMSConfig
	cli SMSClient
}

func NewSMSDirectMessage(cfg SMSConfig, cli SMSClient) *SMSDirectMessage {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 153
	}
	return &SMSDirectMessage{cfg: cfg, cli: cli}
}

// Send 逐段发送。第一段失败整体算失败；后续段失败返回 ErrPartialSend，
// 接收端至少拿到了开头的位置信息
func (s *SMSDirectMessage) Send(ctx context.Context, phone, text string) error {
	if s.cli == nil {
		return errors.New("SMSClient not configured")
	}
	chunks := chunkText(text, s.cfg.ChunkSize)
	for i, chunk := range chunks {
		if err := s.cli.Send(ctx, phone, chunk); err != nil {
			if i > 0 {
				return fmt.Errorf("%w: %d/%d sent: %v", ErrPartialSend, i, len(chunks), err)
			}
			return err
		}
	}
	return nil
}

// chunkText 按 rune 切段，避免把多字节字符切烂
func chunkText(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
