package handler

import (
	stderrors "errors"
	"net"
	"net/http"
	"strconv"

	"VoyagerGuard/internal/dispatch"
	"VoyagerGuard/internal/geocode"
	"VoyagerGuard/internal/location"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/internal/queue"
	errs "VoyagerGuard/pkg/errors"
	"VoyagerGuard/pkg/i18n"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/response"
	"VoyagerGuard/pkg/sse"
	"VoyagerGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers HTTP入口，依赖启动时装配一次
type Handlers struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Provider   *location.Provider
	Queue      *queue.Queue
	Zones      []models.DangerZone
	Geo        *geocode.Resolver
	Events     *sse.Hub
	Stream     *websocket.Handler
	I18n       *i18n.I18nSupport

	// TriggerGuards 仅作用于 /sos/trigger 的中间件（幂等保护）
	TriggerGuards []gin.HandlerFunc
}

// Register 注册全部路由
func (h *Handlers) Register(r gin.IRouter) {
	sos := r.Group("/sos")
	{
		trigger := append([]gin.HandlerFunc{}, h.TriggerGuards...)
		trigger = append(trigger, h.TriggerSOS)
		sos.POST("/trigger", trigger...)
		sos.POST("/cancel", h.CancelSOS)
		sos.GET("/status", h.SOSStatus)
	}

	contacts := r.Group("/contacts")
	{
		contacts.GET("", h.ListContacts)
		contacts.POST("", h.AddContact)
		contacts.DELETE("/:id", h.RemoveContact)
		contacts.PUT("/reorder", h.ReorderContacts)
	}

	loc := r.Group("/location")
	{
		loc.POST("/fix", h.ReportFix)
		if h.Stream != nil {
			loc.GET("/stream", h.Stream.Serve)
		}
	}

	r.GET("/zones", h.ListZones)
	r.GET("/events", h.ListEvents)
	r.GET("/emergency-number", h.EmergencyNumber)
	if h.Events != nil {
		r.GET("/events/stream", h.Events.Serve)
	}
	r.GET("/health", h.Health)
}

type triggerBody struct {
	UserID  string             `json:"userId"`
	Source  string             `json:"source"`
	Message string             `json:"message"`
	Device  *models.DeviceInfo `json:"device"`
}

// TriggerSOS 触发一次紧急派发
func (h *Handlers) TriggerSOS(c *gin.Context) {
	var body triggerBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	source := models.TriggerSource(body.Source)
	switch source {
	case models.TriggerManual, models.TriggerAutomatic, models.TriggerGesture:
	case "":
		source = models.TriggerManual
	default:
		response.FailWithStatus(c, http.StatusBadRequest, "unknown trigger source", nil)
		return
	}

	device := body.Device
	if device == nil || device.Model == "" {
		if ua := user_agent.New(c.GetHeader("User-Agent")); ua != nil {
			name, version := ua.Browser()
			if device == nil {
				device = &models.DeviceInfo{}
			}
			if device.Model == "" && name != "" {
				device.Model = name + " " + version
			}
		}
	}

	result, err := h.Dispatcher.Trigger(c.Request.Context(), dispatch.TriggerRequest{
		UserID:  body.UserID,
		Source:  source,
		Message: body.Message,
		Device:  device,
	})
	if err != nil {
		h.failDispatch(c, err, result)
		return
	}
	response.Success(c, h.sessionMessage(c, result.Session.State), result)
}

// CancelSOS 取消进行中的会话。已入队载荷不受影响
func (h *Handlers) CancelSOS(c *gin.Context) {
	session, err := h.Dispatcher.Cancel()
	if err != nil {
		response.FailWithStatus(c, http.StatusConflict, h.errorMessage(c, err), gin.H{"codeDetail": errs.GetCode(err)})
		return
	}
	response.Success(c, h.sessionMessage(c, session.State), session)
}

// SOSStatus 当前会话快照与待重试数量
func (h *Handlers) SOSStatus(c *gin.Context) {
	session := h.Dispatcher.Session()
	pending, err := h.Queue.PendingCount(c.Request.Context())
	if err != nil {
		logger.Warn("查询待重试数量失败", zap.Error(err))
	}
	response.Success(c, h.sessionMessage(c, session.State), gin.H{
		"session":        session,
		"pendingRetries": pending,
	})
}

// ListContacts 按优先级返回活跃联系人
func (h *Handlers) ListContacts(c *gin.Context) {
	contacts, err := models.ListActiveContacts(h.DB)
	if err != nil {
		response.FailWithStatus(c, http.StatusInternalServerError, "list contacts failed", nil)
		return
	}
	response.Success(c, "ok", contacts)
}

type contactBody struct {
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	Relationship string `json:"relationship"`
	IsPrimary    bool   `json:"isPrimary"`
}

// AddContact 追加联系人到末位，超过上限拒绝
func (h *Handlers) AddContact(c *gin.Context) {
	var body contactBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	contact := models.EmergencyContact{
		Name:         body.Name,
		Phone:        body.Phone,
		Relationship: body.Relationship,
		IsPrimary:    body.IsPrimary,
	}
	if err := models.AddContact(h.DB, &contact); err != nil {
		if stderrors.Is(err, models.ErrContactLimit) {
			response.FailWithStatus(c, http.StatusConflict,
				h.t(c, "error.contact_limit"), gin.H{"codeDetail": errs.CodeContactLimit})
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "add contact failed", nil)
		return
	}
	response.Success(c, "ok", contact)
}

// RemoveContact 删除联系人并压实优先级
func (h *Handlers) RemoveContact(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid contact id", nil)
		return
	}
	if err := models.RemoveContact(h.DB, uint(id)); err != nil {
		if stderrors.Is(err, models.ErrContactNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "contact not found", nil)
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "remove contact failed", nil)
		return
	}
	response.Success(c, "ok", nil)
}

type reorderBody struct {
	IDs []uint `json:"ids" binding:"required"`
}

// ReorderContacts 按给定顺序重排优先级
func (h *Handlers) ReorderContacts(c *gin.Context) {
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := models.ReorderContacts(h.DB, body.IDs); err != nil {
		if stderrors.Is(err, models.ErrContactNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "contact not found", nil)
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "reorder contacts failed", nil)
		return
	}
	contacts, _ := models.ListActiveContacts(h.DB)
	response.Success(c, "ok", contacts)
}

// ReportFix 上报一次定位
func (h *Handlers) ReportFix(c *gin.Context) {
	var fix models.LocationFix
	if err := c.ShouldBindJSON(&fix); err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	stored, err := h.Provider.Report(c.Request.Context(), fix)
	if err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid location fix", nil)
		return
	}
	response.Success(c, "ok", stored)
}

// ListZones 返回全部危险区域
func (h *Handlers) ListZones(c *gin.Context) {
	response.Success(c, "ok", h.Zones)
}

// ListEvents 返回SOS触发历史
func (h *Handlers) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := models.ListAlertEvents(h.DB, c.Query("userId"), limit)
	if err != nil {
		response.FailWithStatus(c, http.StatusInternalServerError, "list events failed", nil)
		return
	}
	response.Success(c, "ok", events)
}

// EmergencyNumber 按客户端IP所在国家返回紧急呼叫号码，未知时返回112
func (h *Handlers) EmergencyNumber(c *gin.Context) {
	country := ""
	if h.Geo != nil {
		if ip := net.ParseIP(c.ClientIP()); ip != nil {
			country = h.Geo.CountryFromIP(ip)
		}
	}
	response.Success(c, "ok", gin.H{
		"country": country,
		"number":  geocode.EmergencyNumber(country),
	})
}

// Health 健康检查
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status = "degraded"
	}
	response.Success(c, "ok", gin.H{
		"status":  status,
		"session": h.Dispatcher.Session().State,
	})
}

// failDispatch 将派发错误映射为HTTP状态与本地化消息
func (h *Handlers) failDispatch(c *gin.Context, err error, result dispatch.Result) {
	status := http.StatusInternalServerError
	key := ""
	switch {
	case stderrors.Is(err, dispatch.ErrSessionActive):
		status = http.StatusConflict
		key = "error.session_active"
	case stderrors.Is(err, dispatch.ErrNoContacts):
		status = http.StatusUnprocessableEntity
		key = "error.no_contacts"
	case stderrors.Is(err, dispatch.ErrLocationUnavailable):
		status = http.StatusUnprocessableEntity
		key = "error.location_unavailable"
	}
	message := errs.GetMessage(err)
	if key != "" {
		message = h.t(c, key)
	}
	response.FailWithStatus(c, status, message, gin.H{
		"codeDetail": errs.GetCode(err),
		"session":    result.Session,
	})
}

func (h *Handlers) errorMessage(c *gin.Context, err error) string {
	if stderrors.Is(err, dispatch.ErrSessionInactive) {
		return h.t(c, "error.session_inactive")
	}
	return errs.GetMessage(err)
}

func (h *Handlers) sessionMessage(c *gin.Context, state dispatch.SessionState) string {
	switch state {
	case dispatch.StateActive, dispatch.StateQueued, dispatch.StateFailed,
		dispatch.StateCancelled, dispatch.StateResolved:
		return h.t(c, "session."+string(state))
	}
	return "ok"
}

func (h *Handlers) t(c *gin.Context, key string) string {
	if h.I18n == nil {
		return key
	}
	return h.I18n.T(c.GetString("lang"), key, nil)
}
