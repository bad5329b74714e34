package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"VoyagerGuard/internal/compose"
	"VoyagerGuard/internal/dispatch"
	"VoyagerGuard/internal/location"
	"VoyagerGuard/internal/models"
	"VoyagerGuard/internal/queue"
	"VoyagerGuard/pkg/cache"
	"VoyagerGuard/pkg/response"
	"VoyagerGuard/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubLocation struct{ fix *models.LocationFix }

func (s *stubLocation) CurrentFix(context.Context) (models.LocationFix, error) {
	if s.fix == nil {
		return models.LocationFix{}, errors.New("no fix")
	}
	return *s.fix, nil
}

func (s *stubLocation) LastKnownFix(context.Context) (models.LocationFix, error) {
	return s.CurrentFix(context.Background())
}

type stubDirect struct{ sent int }

func (s *stubDirect) Send(context.Context, string, string) error {
	s.sent++
	return nil
}

type stubShare struct{}

func (stubShare) Share(context.Context, string, string) error { return nil }

type stubProbe struct{}

func (stubProbe) IsOnline() bool         { return true }
func (stubProbe) HasDirectMessage() bool { return true }

type stubAlarm struct{}

func (stubAlarm) Start() {}
func (stubAlarm) Stop()  {}

type apiRig struct {
	db     *gorm.DB
	direct *stubDirect
	router *gin.Engine
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := util.InitDatabase("sqlite", filepath.Join(t.TempDir(), "api.db"), false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.EmergencyContact{},
		&models.QueuedPayload{},
		&models.DeliveryRecord{},
		&models.AlertEvent{},
	))

	fix := &models.LocationFix{Latitude: 22.5726, Longitude: 88.3639, TimestampMs: time.Now().UnixMilli()}
	direct := &stubDirect{}
	q := queue.New(db, queue.Options{RetryInterval: time.Minute, MaxRetries: 3}, nil)
	d := dispatch.New(dispatch.Deps{
		DB:       db,
		Composer: compose.NewComposer(0),
		Queue:    q,
		Location: &stubLocation{fix: fix},
		Direct:   direct,
		Share:    stubShare{},
		Probe:    stubProbe{},
		Alarm:    stubAlarm{},
	}, dispatch.Options{LocationTimeout: 100 * time.Millisecond})

	provider := location.New(cache.NewLocalCache(cache.LocalConfig{}), nil, 2*time.Minute)

	h := &Handlers{
		DB:         db,
		Dispatcher: d,
		Provider:   provider,
		Queue:      q,
		Zones: []models.DangerZone{
			{ID: "z1", Name: "Esplanade", Latitude: 22.5726, Longitude: 88.3639, RadiusMeters: 500, Level: models.DangerHigh},
		},
	}
	r := gin.New()
	h.Register(r.Group("/api/v1"))

	t.Cleanup(func() {
		util.Sig().Disconnect(models.SigPayloadTerminal)
		util.Sig().Disconnect(models.SigSessionState)
	})
	return &apiRig{db: db, direct: direct, router: r}
}

func (rig *apiRig) do(t *testing.T, method, path string, payload any) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	var reader *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)

	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (rig *apiRig) seedContact(t *testing.T, name, phone string) models.EmergencyContact {
	t.Helper()
	contact := models.EmergencyContact{Name: name, Phone: phone}
	require.NoError(t, models.AddContact(rig.db, &contact))
	return contact
}

func TestContactCRUD(t *testing.T) {
	rig := newAPIRig(t)

	w, body := rig.do(t, http.MethodPost, "/api/v1/contacts",
		gin.H{"name": "Asha", "phone": "+15550001", "relationship": "sister"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, body.Code)

	w, body = rig.do(t, http.MethodGet, "/api/v1/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	var contacts []models.EmergencyContact
	require.NoError(t, json.Unmarshal(raw, &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "Asha", contacts[0].Name)

	w, _ = rig.do(t, http.MethodDelete, "/api/v1/contacts/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = rig.do(t, http.MethodDelete, "/api/v1/contacts/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestContactLimitRejected(t *testing.T) {
	rig := newAPIRig(t)
	for i := 0; i < models.MaxActiveContacts; i++ {
		rig.seedContact(t, "c", "+1555000"+string(rune('0'+i)))
	}

	w, _ := rig.do(t, http.MethodPost, "/api/v1/contacts", gin.H{"name": "one too many", "phone": "+15550009"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestContactReorder(t *testing.T) {
	rig := newAPIRig(t)
	a := rig.seedContact(t, "a", "+15550001")
	b := rig.seedContact(t, "b", "+15550002")

	w, body := rig.do(t, http.MethodPut, "/api/v1/contacts/reorder", gin.H{"ids": []uint{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, w.Code)

	raw, _ := json.Marshal(body.Data)
	var contacts []models.EmergencyContact
	require.NoError(t, json.Unmarshal(raw, &contacts))
	require.Len(t, contacts, 2)
	assert.Equal(t, "b", contacts[0].Name)
}

func TestTriggerAndStatusAndCancel(t *testing.T) {
	rig := newAPIRig(t)
	rig.seedContact(t, "Asha", "+15550001")

	w, body := rig.do(t, http.MethodPost, "/api/v1/sos/trigger", gin.H{"userId": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, 1, rig.direct.sent)

	// 重复触发被拒绝
	w, _ = rig.do(t, http.MethodPost, "/api/v1/sos/trigger", gin.H{"userId": "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = rig.do(t, http.MethodGet, "/api/v1/sos/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	assert.Contains(t, string(raw), `"state"`)

	w, _ = rig.do(t, http.MethodPost, "/api/v1/sos/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = rig.do(t, http.MethodPost, "/api/v1/sos/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerWithoutContacts(t *testing.T) {
	rig := newAPIRig(t)

	w, body := rig.do(t, http.MethodPost, "/api/v1/sos/trigger", gin.H{"userId": "u1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, body.Code)
}

func TestTriggerRejectsUnknownSource(t *testing.T) {
	rig := newAPIRig(t)
	rig.seedContact(t, "Asha", "+15550001")

	w, _ := rig.do(t, http.MethodPost, "/api/v1/sos/trigger", gin.H{"userId": "u1", "source": "voice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportFixAndZones(t *testing.T) {
	rig := newAPIRig(t)

	w, _ := rig.do(t, http.MethodPost, "/api/v1/location/fix",
		gin.H{"latitude": 22.5726, "longitude": 88.3639})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = rig.do(t, http.MethodPost, "/api/v1/location/fix", gin.H{"latitude": 91.0, "longitude": 0.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := rig.do(t, http.MethodGet, "/api/v1/zones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	assert.Contains(t, string(raw), "Esplanade")
}

func TestEventsAfterTrigger(t *testing.T) {
	rig := newAPIRig(t)
	rig.seedContact(t, "Asha", "+15550001")
	rig.do(t, http.MethodPost, "/api/v1/sos/trigger", gin.H{"userId": "u1"})

	w, body := rig.do(t, http.MethodGet, "/api/v1/events?userId=u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	var events []models.AlertEvent
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
}

func TestEmergencyNumberDefaults(t *testing.T) {
	rig := newAPIRig(t)

	w, body := rig.do(t, http.MethodGet, "/api/v1/emergency-number", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	assert.Contains(t, string(raw), "112")
}

func TestHealth(t *testing.T) {
	rig := newAPIRig(t)

	w, body := rig.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(body.Data)
	assert.Contains(t, string(raw), `"ok"`)
}
