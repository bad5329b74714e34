package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"VoyagerGuard/internal/models"
	errs "VoyagerGuard/pkg/errors"
	"VoyagerGuard/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", filepath.Join(t.TempDir(), "queue.db"), false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QueuedPayload{}, &models.DeliveryRecord{}))
	return db
}

func queuedPayload(id string) models.AlertPayload {
	return models.AlertPayload{
		ID:          id,
		UserID:      "user-1",
		CreatedAtMs: time.Now().UnixMilli(),
		Location:    models.LocationFix{Latitude: 22.5726, Longitude: 88.3639, TimestampMs: time.Now().UnixMilli()},
		DangerLevel: models.DangerHigh,
		Contacts: []models.EmergencyContact{
			{ID: 1, Name: "John", Phone: "+15550001", PriorityIndex: 0, Active: true},
			{ID: 2, Name: "Jane", Phone: "+15550002", PriorityIndex: 1, Active: true},
		},
	}
}

func TestQueueEnqueueAndDequeueDue(t *testing.T) {
	q := New(newTestDB(t), Options{RetryInterval: time.Minute, MaxRetries: 3}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedPayload("p-1")))

	// 还没到退避间隔
	due, err := q.DequeueDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// 到期后取出
	due, err = q.DequeueDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "p-1", due[0].ID)
	assert.Len(t, due[0].Contacts, 2)

	// 刚领取过，同一时刻不会重复取出
	due, err = q.DequeueDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestQueueRetryExhausted(t *testing.T) {
	q := New(newTestDB(t), Options{RetryInterval: time.Minute, MaxRetries: 2}, nil)
	ctx := context.Background()
	defer util.Sig().Disconnect(models.SigPayloadTerminal)

	var terminal []string
	util.Sig().Connect(models.SigPayloadTerminal, func(sender any, params ...any) {
		terminal = append(terminal, sender.(string))
	})

	require.NoError(t, q.Enqueue(ctx, queuedPayload("p-2")))

	now := time.Now()
	for i := 1; i <= 2; i++ {
		now = now.Add(2 * time.Minute)
		due, err := q.DequeueDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, due, 1, "attempt %d should be due", i)
	}

	// 第三次扫描时重试用尽，载荷转终态 failed 且保留在库里
	now = now.Add(2 * time.Minute)
	due, err := q.DequeueDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.Equal(t, []string{"p-2"}, terminal)

	var row models.QueuedPayload
	require.NoError(t, q.db.First(&row, "payload_id = ?", "p-2").Error)
	assert.Equal(t, models.DeliveryFailed, row.Status)

	// 终态 failed 后迟到的回执被拒绝，不会改写结果
	err = q.RecordOutcome(ctx, "p-2", 1, models.ChannelDirectMessage, models.DeliverySent)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, errs.CodeRetryExhausted, errs.GetCode(err))

	records, err := q.Records(ctx, "p-2")
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, models.DeliveryFailed, r.Status)
	}
}

func TestQueueRecordOutcomeSettles(t *testing.T) {
	q := New(newTestDB(t), Options{}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedPayload("p-3")))

	require.NoError(t, q.RecordOutcome(ctx, "p-3", 1, models.ChannelDirectMessage, models.DeliveryDelivered))

	var row models.QueuedPayload
	require.NoError(t, q.db.First(&row, "payload_id = ?", "p-3").Error)
	assert.Equal(t, models.DeliveryPending, row.Status, "one contact still pending")

	require.NoError(t, q.RecordOutcome(ctx, "p-3", 2, models.ChannelDirectMessage, models.DeliveryFailed))

	require.NoError(t, q.db.First(&row, "payload_id = ?", "p-3").Error)
	assert.Equal(t, models.DeliveryDelivered, row.Status, "any delivered wins over failed")
}

func TestQueuePurge(t *testing.T) {
	q := New(newTestDB(t), Options{}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedPayload("p-4")))
	require.NoError(t, q.Purge(ctx, "p-4"))

	assert.ErrorIs(t, q.Purge(ctx, "p-4"), ErrPayloadNotFound)

	records, err := q.Records(ctx, "p-4")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQueueConcurrentOutcomes(t *testing.T) {
	q := New(newTestDB(t), Options{}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedPayload("p-5")))

	done := make(chan error, 2)
	go func() { done <- q.RecordOutcome(ctx, "p-5", 1, models.ChannelDirectMessage, models.DeliverySent) }()
	go func() { done <- q.RecordOutcome(ctx, "p-5", 2, models.ChannelDirectMessage, models.DeliveryFailed) }()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	records, err := q.Records(ctx, "p-5")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// 两条记录都到终态，载荷按最优结果汇总
	var row models.QueuedPayload
	require.NoError(t, q.db.First(&row, "payload_id = ?", "p-5").Error)
	assert.Equal(t, models.DeliverySent, row.Status)
}
