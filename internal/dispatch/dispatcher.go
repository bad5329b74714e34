package dispatch

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"VoyagerGuard/internal/compose"
	"VoyagerGuard/internal/geofence"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/internal/queue"
	errs "VoyagerGuard/pkg/errors"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/metrics"
	"VoyagerGuard/pkg/notification"
	"VoyagerGuard/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrLocationUnavailable 无实时定位也无缓存。警报照常触发，由调用方提示用户
	ErrLocationUnavailable = errs.WithCode(errs.CodeLocationUnavailable, "location unavailable: no live fix and no cached fix")
	// ErrNoContacts 没有活跃联系人，派发在任何通道尝试前终止
	ErrNoContacts = errs.WithCode(errs.CodeNoContacts, "no active emergency contacts configured")
	// ErrSessionActive 已有进行中的会话，先取消再触发
	ErrSessionActive = errs.WithCode(errs.CodeSessionActive, "an emergency session is already in progress")
	// ErrSessionInactive 没有可取消的会话
	ErrSessionInactive = errs.WithCode(errs.CodeSessionInactive, "no emergency session in progress")
)

// LocationSource 定位协作方。实现方见 internal/location
type LocationSource interface {
	CurrentFix(ctx context.Context) (models.LocationFix, error)
	LastKnownFix(ctx context.Context) (models.LocationFix, error)
}

// DirectMessageChannel 点对点文本通道（短信类），超长文本由实现方分段
type DirectMessageChannel interface {
	Send(ctx context.Context, phone, text string) error
}

// NetworkShareChannel 网络分享通道，把文本交给外部应用
type NetworkShareChannel interface {
	Share(ctx context.Context, text, subject string) error
}

// ConnectivityProbe 派发时刻的连通性/权限探测
type ConnectivityProbe interface {
	IsOnline() bool
	HasDirectMessage() bool
}

// AlarmSignaler 本地声音/振动警报，与网络无关
type AlarmSignaler interface {
	Start()
	Stop()
}

// Options 派发参数，来源见 config.DispatchConfig
type Options struct {
	// FanOut 并发发送上限，默认 3
	FanOut int
	// LocationTimeout 实时定位等待上限，超时回退缓存，默认 8s
	LocationTimeout time.Duration
}

func (o *Options) normalize() {
	if o.FanOut <= 0 {
		o.FanOut = 3
	}
	if o.LocationTimeout <= 0 {
		o.LocationTimeout = 8 * time.Second
	}
}

// TriggerRequest 一次 SOS 触发的输入
type TriggerRequest struct {
	UserID  string
	Source  models.TriggerSource
	Message string
	Device  *models.DeviceInfo
}

// Result Trigger 的结果，State 为会话去向
type Result struct {
	Session Session
	Plan    []models.Channel
	Sent    int
	Failed  int
}

// Deps Dispatcher 的协作方集合，进程启动时装配一次
type Deps struct {
	DB       *gorm.DB
	Zones    []models.DangerZone
	Composer *compose.Composer
	Queue    *queue.Queue
	Location LocationSource
	Direct   DirectMessageChannel
	Share    NetworkShareChannel
	Probe    ConnectivityProbe
	Alarm    AlarmSignaler
	Metrics  *metrics.Metrics // 可为空
}

// Dispatcher 紧急派发编排：触发警报、取定位、评估危险等级、
// 组装报文、按通道计划逐联系人发送并记录结果，失败走队列重试。
// 会话对象由 Dispatcher 独占持有。
type Dispatcher struct {
	db       *gorm.DB
	zones    []models.DangerZone
	composer *compose.Composer
	queue    *queue.Queue
	location LocationSource
	direct   DirectMessageChannel
	share    NetworkShareChannel
	probe    ConnectivityProbe
	alarm    AlarmSignaler
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	session *Session
}

func New(deps Deps, opts Options) *Dispatcher {
	opts.normalize()
	d := &Dispatcher{
		db:       deps.DB,
		zones:    deps.Zones,
		composer: deps.Composer,
		queue:    deps.Queue,
		location: deps.Location,
		direct:   deps.Direct,
		share:    deps.Share,
		probe:    deps.Probe,
		alarm:    deps.Alarm,
		metrics:  deps.Metrics,
		opts:     opts,
		now:      time.Now,
	}
	util.Sig().Connect(models.SigPayloadTerminal, d.onPayloadTerminal)
	return d
}

// Trigger 执行一次完整派发。警报先于一切同步触发，定位等待不会阻塞它。
// 返回的 Result.Session.State 告诉调用方结局：active（至少一人收到）、
// queued（全部失败已入队）或 failed
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (Result, error) {
	d.mu.Lock()
	if d.session != nil && d.session.State.Live() {
		d.mu.Unlock()
		return Result{Session: *d.session}, ErrSessionActive
	}
	d.session = &Session{
		State:       StateTriggered,
		UserID:      req.UserID,
		Source:      req.Source,
		StartedAtMs: d.now().UnixMilli(),
		UpdatedAtMs: d.now().UnixMilli(),
	}
	d.mu.Unlock()
	started := time.Now()

	// 本地警报无条件先响，不等定位、不等通道
	d.alarm.Start()
	logger.Info("dispatch: triggered", zap.String("user_id", req.UserID), zap.String("source", string(req.Source)))

	contacts, err := models.ListActiveContacts(d.db)
	if err != nil {
		d.transition(StateFailed)
		return d.result(nil, 0, 0), errs.Wrap(err, "list contacts")
	}
	if len(contacts) == 0 {
		d.transition(StateFailed)
		return d.result(nil, 0, 0), ErrNoContacts
	}
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].PriorityIndex < contacts[j].PriorityIndex })

	fix, err := d.resolveLocation(ctx)
	if err != nil {
		d.transition(StateFailed)
		return d.result(nil, 0, 0), err
	}

	level, zone := geofence.Evaluate(fix, d.zones)
	payload := models.NewAlertPayload(req.UserID, fix, level, req.Message, contacts, req.Device)

	d.mu.Lock()
	d.session.PayloadID = payload.ID
	d.session.DangerLevel = level
	if zone != nil {
		d.session.ZoneName = zone.Name
	}
	d.mu.Unlock()
	d.transition(StateDispatching)

	// 先落库再发送：进程中途挂掉载荷也不丢，重试扫描会接手
	if err := d.queue.Enqueue(ctx, payload); err != nil {
		logger.Error("dispatch: enqueue failed, attempting delivery anyway", zap.String("payload_id", payload.ID), zap.Error(err))
	}

	plan := SelectPlan(Capabilities{
		HasDirectMessage: d.probe.HasDirectMessage(),
		IsOnline:         d.probe.IsOnline(),
	})

	var sent, failed int
	switch plan[0] {
	case models.ChannelDirectMessage:
		sent, failed = d.sendDirect(ctx, payload, d.composer.Compose(payload, compose.Compact))
	case models.ChannelNetworkShare:
		sent, failed = d.sendShare(ctx, payload, d.composer.Compose(payload, compose.Detailed))
	}

	outcome := StateQueued
	if sent > 0 {
		outcome = StateActive
	}
	d.transition(outcome)
	d.saveEvent(payload, zone, req.Source, outcome)
	if d.metrics != nil {
		d.metrics.RecordDispatch(string(outcome), time.Since(started))
	}

	logger.Info("dispatch: finished",
		zap.String("payload_id", payload.ID),
		zap.String("outcome", string(outcome)),
		zap.Int("sent", sent),
		zap.Int("failed", failed))
	return d.result(plan, sent, failed), nil
}

// Cancel 尽力而为地终止会话：停警报、翻状态。已发出的消息不撤回，
// 已入队的载荷不清除，在途的发送允许跑完
func (d *Dispatcher) Cancel() (Session, error) {
	d.mu.Lock()
	if d.session == nil || !d.session.State.Live() {
		d.mu.Unlock()
		return Session{State: StateInactive}, ErrSessionInactive
	}
	d.mu.Unlock()

	d.alarm.Stop()
	d.transition(StateCancelled)
	return d.Session(), nil
}

// Session 当前会话快照，无会话时返回 Inactive
func (d *Dispatcher) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return Session{State: StateInactive}
	}
	return *d.session
}

// RetryScan 由定时器周期调用：捞出到期载荷，按当前连通性重发未终态的联系人。
// 仍然离线就什么也不做，等下一轮
func (d *Dispatcher) RetryScan(ctx context.Context) error {
	if d.metrics != nil {
		d.metrics.RecordRetryScan()
		if depth, err := d.queue.PendingCount(ctx); err == nil {
			d.metrics.SetQueueDepth(depth)
		}
	}
	plan := SelectPlan(Capabilities{
		HasDirectMessage: d.probe.HasDirectMessage(),
		IsOnline:         d.probe.IsOnline(),
	})
	if plan[0] == models.ChannelQueue {
		// 仍然离线就不动队列，留着重试次数等信号恢复
		logger.Debug("dispatch: retry scan skipped, still offline")
		return nil
	}
	due, err := d.queue.DequeueDue(ctx, d.now())
	if err != nil {
		return errs.Wrap(err, "retry scan: dequeue")
	}
	for _, payload := range due {
		d.redeliver(ctx, payload, plan[0])
	}
	return nil
}

func (d *Dispatcher) redeliver(ctx context.Context, payload models.AlertPayload, channel models.Channel) {
	records, err := d.queue.Records(ctx, payload.ID)
	if err != nil {
		logger.Warn("dispatch: redeliver skipped", zap.String("payload_id", payload.ID), zap.Error(err))
		return
	}
	settled := make(map[uint]bool, len(records))
	for _, r := range records {
		if r.Status.Terminal() {
			settled[r.ContactID] = true
		}
	}
	var remaining []models.EmergencyContact
	for _, c := range payload.Contacts {
		if !settled[c.ID] {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		return
	}
	attempt := payload
	attempt.Contacts = remaining

	var sent int
	switch channel {
	case models.ChannelDirectMessage:
		sent, _ = d.sendDirect(ctx, attempt, d.composer.Compose(payload, compose.Compact))
	case models.ChannelNetworkShare:
		sent, _ = d.sendShare(ctx, attempt, d.composer.Compose(payload, compose.Detailed))
	}
	if sent > 0 {
		d.promote(payload.ID)
	}
}

// promote 排队中的会话在补投成功后转 Active
func (d *Dispatcher) promote(payloadID string) {
	d.mu.Lock()
	ok := d.session != nil && d.session.PayloadID == payloadID && d.session.State == StateQueued
	d.mu.Unlock()
	if ok {
		d.transition(StateActive)
	}
}

// sendDirect 有界并发地逐联系人发送。单个联系人失败（含 panic）不影响其他人。
// 只要有人收到，失败者就终止为 failed 不再重试；全员失败则记录保持 pending 等队列重试
// sendFailure 给通道错误挂上错误码，保留原始错误链（部分发送哨兵仍可匹配）
func sendFailure(err error) *errs.Error {
	wrapped := errs.Wrap(err, "direct channel send failure")
	wrapped.Code = errs.CodeChannelSendFailure
	return wrapped
}

func (d *Dispatcher) sendDirect(ctx context.Context, payload models.AlertPayload, text string) (sent, failed int) {
	results := make([]error, len(payload.Contacts))
	sem := make(chan struct{}, d.opts.FanOut)
	var wg sync.WaitGroup
	for i, contact := range payload.Contacts {
		wg.Add(1)
		go func(i int, c models.EmergencyContact) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = sendFailure(errs.Errorf("direct channel panic: %v", r))
				}
			}()
			if err := d.direct.Send(ctx, c.Phone, text); err != nil {
				results[i] = sendFailure(err)
			}
		}(i, contact)
	}
	wg.Wait()

	anySuccess := false
	for _, err := range results {
		if err == nil {
			anySuccess = true
			break
		}
	}
	for i, err := range results {
		c := payload.Contacts[i]
		status := models.DeliverySent
		switch {
		case err == nil:
			sent++
		case stderrors.Is(err, notification.ErrPartialSend):
			// 开头的段落（含位置）已送出，算部分成功，不再重试
			status = models.DeliveryPartiallySent
			sent++
		case anySuccess:
			status = models.DeliveryFailed
			failed++
			logger.Warn("dispatch: direct send failed", zap.Uint("contact_id", c.ID), zap.Int("code", errs.GetCode(err)), zap.Error(err))
		default:
			status = models.DeliveryPending
			failed++
		}
		d.recordOutcome(ctx, payload.ID, c.ID, models.ChannelDirectMessage, status)
	}
	return sent, failed
}

// sendShare 一次分享覆盖全部联系人，结果同涨同跌
func (d *Dispatcher) sendShare(ctx context.Context, payload models.AlertPayload, text string) (sent, failed int) {
	err := d.share.Share(ctx, text, "EMERGENCY ALERT")
	status := models.DeliverySent
	if err != nil {
		status = models.DeliveryPending
		logger.Warn("dispatch: network share failed", zap.String("payload_id", payload.ID), zap.Error(err))
	}
	for _, c := range payload.Contacts {
		d.recordOutcome(ctx, payload.ID, c.ID, models.ChannelNetworkShare, status)
		if err == nil {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func (d *Dispatcher) recordOutcome(ctx context.Context, payloadID string, contactID uint, channel models.Channel, status models.DeliveryStatus) {
	if d.metrics != nil {
		d.metrics.RecordDelivery(string(channel), string(status))
	}
	if err := d.queue.RecordOutcome(ctx, payloadID, contactID, channel, status); err != nil {
		logger.Error("dispatch: record outcome failed",
			zap.String("payload_id", payloadID),
			zap.Uint("contact_id", contactID),
			zap.Error(err))
	}
}

// resolveLocation 实时定位限时等待，超时或失败回退缓存并打上 stale 标记
func (d *Dispatcher) resolveLocation(ctx context.Context) (models.LocationFix, error) {
	liveCtx, cancel := context.WithTimeout(ctx, d.opts.LocationTimeout)
	defer cancel()
	fix, err := d.location.CurrentFix(liveCtx)
	if err == nil && fix.Valid() {
		return fix, nil
	}
	if err != nil {
		logger.Warn("dispatch: live fix unavailable, falling back to cache", zap.Error(err))
	}
	cached, err := d.location.LastKnownFix(ctx)
	if err != nil || !cached.Valid() {
		return models.LocationFix{}, ErrLocationUnavailable
	}
	return cached.Stale(), nil
}

// transition 推进会话状态并广播 SigSessionState
func (d *Dispatcher) transition(to SessionState) {
	d.mu.Lock()
	if d.session == nil || d.session.State == to {
		d.mu.Unlock()
		return
	}
	from := d.session.State
	d.session.State = to
	d.session.UpdatedAtMs = d.now().UnixMilli()
	snapshot := *d.session
	d.mu.Unlock()

	logger.Info("dispatch: session state", zap.String("from", string(from)), zap.String("to", string(to)))
	util.Sig().Emit(models.SigSessionState, snapshot, from)
}

// onPayloadTerminal 队列里的载荷到终态后收尾会话：
// 成功 → Resolved，重试用尽 → Failed
func (d *Dispatcher) onPayloadTerminal(sender any, params ...any) {
	payloadID, ok := sender.(string)
	if !ok {
		return
	}
	d.mu.Lock()
	match := d.session != nil && d.session.PayloadID == payloadID &&
		(d.session.State == StateQueued || d.session.State == StateActive)
	d.mu.Unlock()
	if !match {
		return
	}
	final := StateResolved
	if len(params) > 0 {
		if status, ok := params[0].(models.DeliveryStatus); ok && status == models.DeliveryFailed {
			final = StateFailed
		}
	}
	if final == StateFailed {
		d.alarm.Stop()
	}
	d.transition(final)
}

func (d *Dispatcher) saveEvent(payload models.AlertPayload, zone *models.DangerZone, source models.TriggerSource, outcome SessionState) {
	event := &models.AlertEvent{
		PayloadID:   payload.ID,
		UserID:      payload.UserID,
		Latitude:    payload.Location.Latitude,
		Longitude:   payload.Location.Longitude,
		Stale:       payload.Location.IsStale,
		DangerLevel: payload.DangerLevel,
		Source:      source,
		Outcome:     string(outcome),
	}
	if payload.Location.Accuracy != nil {
		event.Accuracy = *payload.Location.Accuracy
	}
	if zone != nil {
		event.ZoneID = zone.ID
		event.ZoneName = zone.Name
	}
	if err := models.SaveAlertEvent(d.db, event); err != nil {
		logger.Warn("dispatch: save alert event failed", zap.String("payload_id", payload.ID), zap.Error(err))
	}
}

func (d *Dispatcher) result(plan []models.Channel, sent, failed int) Result {
	return Result{Session: d.Session(), Plan: plan, Sent: sent, Failed: failed}
}
