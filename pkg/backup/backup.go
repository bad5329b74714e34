package backup

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"VoyagerGuard/pkg/logger"

	"go.uber.org/zap"
)

// Config 队列数据库备份参数。排队中的告警载荷也要防住磁盘级故障
type Config struct {
	Driver string // sqlite / mysql
	DSN    string
	Dir    string
}

// Execute 按驱动执行一次数据库备份，调度见 cmd/server（cron 表达式可配）
func Execute(cfg Config) error {
	stamp := time.Now().Format("20060102_150405")
	switch cfg.Driver {
	case "sqlite", "":
		dst := filepath.Join(cfg.Dir, fmt.Sprintf("queue_backup_%s.db", stamp))
		return copySQLite(cfg.DSN, dst)
	case "mysql":
		dst := filepath.Join(cfg.Dir, fmt.Sprintf("queue_backup_%s.sql", stamp))
		return dumpMySQL(cfg.DSN, dst)
	default:
		return fmt.Errorf("unsupported backup driver: %s", cfg.Driver)
	}
}

func copySQLite(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source db: %w", err)
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return fmt.Errorf("copy db: %w", err)
	}
	logger.Info("backup: sqlite database copied", zap.String("dst", dst))
	return nil
}

func dumpMySQL(dsn, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command("mysqldump", dsn)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mysqldump: %w", err)
	}
	logger.Info("backup: mysql database dumped", zap.String("dst", dst))
	return nil
}
