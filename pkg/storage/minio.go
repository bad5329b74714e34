package storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"VoyagerGuard/pkg/util"
)

// MinioStore MinIO/S3 兼容的对象存储
type MinioStore struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStoreFromEnv 从环境变量装配：MINIO_ENDPOINT / MINIO_ACCESS_KEY /
// MINIO_SECRET_KEY / MINIO_BUCKET / MINIO_USE_SSL
func NewMinioStoreFromEnv() *MinioStore {
	return &MinioStore{
		Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
		AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
		SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
		Bucket:    util.GetEnv("MINIO_BUCKET"),
		UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
	}
}

// Configured 必填项齐了才启用归档
func (m *MinioStore) Configured() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

func (m *MinioStore) client() (*minio.Client, error) {
	return minio.New(m.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
		Secure: m.UseSSL,
	})
}

func (m *MinioStore) ensureBucket(ctx context.Context, cli *minio.Client) error {
	exists, err := cli.BucketExists(ctx, m.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return cli.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *MinioStore) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	cli, err := m.client()
	if err != nil {
		return err
	}
	if err := m.ensureBucket(ctx, cli); err != nil {
		return err
	}
	_, err = cli.PutObject(ctx, m.Bucket, key, r, size, minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m *MinioStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	cli, err := m.client()
	if err != nil {
		return nil, 0, err
	}
	obj, err := cli.GetObject(ctx, m.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	st, err := obj.Stat()
	if err != nil {
		return nil, 0, err
	}
	return obj, st.Size, nil
}

func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	cli, err := m.client()
	if err != nil {
		return false, err
	}
	_, err = cli.StatObject(ctx, m.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	cli, err := m.client()
	if err != nil {
		return err
	}
	return cli.RemoveObject(ctx, m.Bucket, key, minio.RemoveObjectOptions{})
}
