package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

// Store 对象存储抽象，归档用
type Store interface {
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// PayloadArchiver 终态载荷归档到对象存储，按日期分目录。
// 实现 queue.Archiver
type PayloadArchiver struct {
	store  Store
	prefix string
}

func NewPayloadArchiver(store Store, prefix string) *PayloadArchiver {
	if prefix == "" {
		prefix = "alerts"
	}
	return &PayloadArchiver{store: store, prefix: prefix}
}

func (a *PayloadArchiver) Archive(ctx context.Context, payloadID string, body []byte) error {
	key := fmt.Sprintf("%s/%s/%s.json", a.prefix, time.Now().UTC().Format("2006-01-02"), payloadID)
	return a.store.Write(ctx, key, bytes.NewReader(body), int64(len(body)))
}
