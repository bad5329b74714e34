package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"VoyagerGuard/internal/models"
	errs "VoyagerGuard/pkg/errors"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPayloadNotFound 队列中不存在该载荷
	ErrPayloadNotFound = errors.New("queued payload not found")
	// ErrRetryExhausted 重试次数用尽。载荷标记终态 failed 后拒绝迟到的投递回执
	ErrRetryExhausted = errs.WithCode(errs.CodeRetryExhausted, "retry attempts exhausted")
)

// Archiver 终态载荷的外部归档（如对象存储），可选
type Archiver interface {
	Archive(ctx context.Context, payloadID string, body []byte) error
}

// Options 重试参数。来源见 config.DispatchConfig
type Options struct {
	// RetryInterval 距上次尝试的退避间隔，默认 60s
	RetryInterval time.Duration
	// MaxRetries 尝试上限，默认 5
	MaxRetries int
}

func (o *Options) normalize() {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 60 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
}

// Queue 持久化投递队列。
// 所有变更都经由 Enqueue/RecordOutcome/Purge，内部加锁，
// 重试扫描和实时触发并发调用不会交错出不一致状态。
type Queue struct {
	db       *gorm.DB
	opts     Options
	archiver Archiver

	mu sync.Mutex
}

func New(db *gorm.DB, opts Options, archiver Archiver) *Queue {
	opts.normalize()
	return &Queue{db: db, opts: opts, archiver: archiver}
}

// Enqueue 持久化载荷及其 per-contact 投递记录，进程重启后仍在
func (q *Queue) Enqueue(ctx context.Context, payload models.AlertPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	row := models.QueuedPayload{
		PayloadID:     payload.ID,
		Body:          string(body),
		Status:        models.DeliveryPending,
		LastAttemptMs: time.Now().UnixMilli(),
	}
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, contact := range payload.Contacts {
			record := models.DeliveryRecord{
				PayloadID: payload.ID,
				ContactID: contact.ID,
				Channel:   models.ChannelQueue,
				Status:    models.DeliveryPending,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	util.Sig().Emit(models.SigPayloadQueued, payload.ID)
	return nil
}

// DequeueDue 取出到期且未超限的载荷并领取本次尝试（推进 retryCount / lastAttemptMs）。
// 超限的载荷转终态 failed 并保留作审计。至少一次语义：
// 成功确认丢失时同一载荷可能被再次取出重发
func (q *Queue) DequeueDue(ctx context.Context, now time.Time) ([]models.AlertPayload, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := now.Add(-q.opts.RetryInterval).UnixMilli()

	var rows []models.QueuedPayload
	var due []models.AlertPayload
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND last_attempt_ms <= ?", models.DeliveryPending, cutoff).
			Order("created_at asc").
			Find(&rows).Error; err != nil {
			return err
		}
		for i := range rows {
			row := &rows[i]
			if row.RetryCount >= q.opts.MaxRetries {
				if err := q.markExhausted(tx, row); err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&models.QueuedPayload{}).
				Where("payload_id = ?", row.PayloadID).
				Updates(map[string]any{
					"retry_count":     row.RetryCount + 1,
					"last_attempt_ms": now.UnixMilli(),
				}).Error; err != nil {
				return err
			}
			var payload models.AlertPayload
			if err := json.Unmarshal([]byte(row.Body), &payload); err != nil {
				logger.Warn("queue: dropping undecodable payload", zap.String("payload_id", row.PayloadID), zap.Error(err))
				continue
			}
			due = append(due, payload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// RecordOutcome 更新单条 (payload, contact) 投递记录；同一记录的更新串行化。
// 全部记录进入终态后载荷随之转终态并触发归档
func (q *Queue) RecordOutcome(ctx context.Context, payloadID string, contactID uint, channel models.Channel, status models.DeliveryStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UnixMilli()
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 重试用尽的载荷已终态 failed，迟到的回执不再改写结果
		var row models.QueuedPayload
		switch err := tx.First(&row, "payload_id = ?", payloadID).Error; {
		case err == nil:
			if row.Status == models.DeliveryFailed {
				return ErrRetryExhausted
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var record models.DeliveryRecord
		err := tx.Where("payload_id = ? AND contact_id = ?", payloadID, contactID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.DeliveryRecord{
				PayloadID:     payloadID,
				ContactID:     contactID,
				Channel:       channel,
				Status:        status,
				LastAttemptMs: now,
			}
			return tx.Create(&record).Error
		}
		if err != nil {
			return err
		}
		updates := map[string]any{
			"channel":         channel,
			"status":          status,
			"last_attempt_ms": now,
			"retry_count":     record.RetryCount + 1,
		}
		return tx.Model(&models.DeliveryRecord{}).Where("id = ?", record.ID).Updates(updates).Error
	})
	if err != nil {
		return err
	}
	return q.settleIfTerminal(ctx, payloadID)
}

// Purge 删除载荷及其投递记录
func (q *Queue) Purge(ctx context.Context, payloadID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.QueuedPayload{}, "payload_id = ?", payloadID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPayloadNotFound
		}
		return tx.Delete(&models.DeliveryRecord{}, "payload_id = ?", payloadID).Error
	})
}

// Records 返回载荷的全部投递记录
func (q *Queue) Records(ctx context.Context, payloadID string) ([]models.DeliveryRecord, error) {
	var records []models.DeliveryRecord
	err := q.db.WithContext(ctx).
		Where("payload_id = ?", payloadID).
		Order("contact_id asc").
		Find(&records).Error
	return records, err
}

// PendingCount 队列深度（供指标）
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&models.QueuedPayload{}).
		Where("status = ?", models.DeliveryPending).
		Count(&count).Error
	return count, err
}

func (q *Queue) markExhausted(tx *gorm.DB, row *models.QueuedPayload) error {
	if err := tx.Model(&models.QueuedPayload{}).
		Where("payload_id = ?", row.PayloadID).
		Update("status", models.DeliveryFailed).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.DeliveryRecord{}).
		Where("payload_id = ? AND status = ?", row.PayloadID, models.DeliveryPending).
		Update("status", models.DeliveryFailed).Error; err != nil {
		return err
	}
	logger.Warn("queue: retry exhausted", zap.String("payload_id", row.PayloadID), zap.Int("attempts", row.RetryCount), zap.Error(ErrRetryExhausted))
	util.Sig().Emit(models.SigPayloadTerminal, row.PayloadID, models.DeliveryFailed)
	return nil
}

// settleIfTerminal 所有记录终态后推进载荷状态并归档
func (q *Queue) settleIfTerminal(ctx context.Context, payloadID string) error {
	var records []models.DeliveryRecord
	if err := q.db.WithContext(ctx).Where("payload_id = ?", payloadID).Find(&records).Error; err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	final := models.DeliveryFailed
	for _, r := range records {
		if !r.Status.Terminal() {
			return nil
		}
		if r.Status.Rank() > final.Rank() {
			final = r.Status
		}
	}
	res := q.db.WithContext(ctx).Model(&models.QueuedPayload{}).
		Where("payload_id = ? AND status = ?", payloadID, models.DeliveryPending).
		Update("status", final)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		util.Sig().Emit(models.SigPayloadTerminal, payloadID, final)
		q.archive(ctx, payloadID, records)
	}
	return nil
}

// archive 终态载荷推到外部存储，失败只记日志不影响主流程
func (q *Queue) archive(ctx context.Context, payloadID string, records []models.DeliveryRecord) {
	if q.archiver == nil {
		return
	}
	var row models.QueuedPayload
	if err := q.db.WithContext(ctx).First(&row, "payload_id = ?", payloadID).Error; err != nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"payload": json.RawMessage(row.Body),
		"records": records,
	})
	if err != nil {
		return
	}
	if err := q.archiver.Archive(ctx, payloadID, body); err != nil {
		logger.Warn("queue: archive failed", zap.String("payload_id", payloadID), zap.Error(err))
	}
}
