package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

const testSecret = "test-secret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ShiftEvent
	err    error
}

func (p *recordingPublisher) PublishShiftEvent(_ context.Context, event domain.ShiftEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []domain.ShiftEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.ShiftEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	store     *repository.Memory
	publisher *recordingPublisher
	h         *Handler

	vehicle   *domain.Vehicle
	driver    *domain.Driver
	assistant *domain.Assistant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.Scheduling.MaxListRangeDays = 31
	cfg.Redis.OperationTimeout = 1

	store := repository.NewMemory()
	publisher := &recordingPublisher{}
	h, err := NewHandler(cfg, scheduler.New(store), store, publisher, nil)
	require.NoError(t, err)
	h.RegisterRoutes()

	f := &fixture{store: store, publisher: publisher, h: h}

	f.vehicle = &domain.Vehicle{PlateNumber: "粤A12345", Status: domain.VehicleStatusOperational, Class: domain.VehicleClassSingleDeck}
	require.NoError(t, store.CreateVehicle(f.vehicle))

	e := &domain.Employee{Code: "zs0001", FullName: "张三", Email: "zhangsan@fleet.example.com"}
	require.NoError(t, store.CreateEmployee(e))
	f.driver = &domain.Driver{EmployeeID: e.ID, LicenseClass: "A1", FitToDrive: true, Status: domain.StaffStatusActive}
	require.NoError(t, store.CreateDriver(f.driver))

	e2 := &domain.Employee{Code: "ls0002", FullName: "李四", Email: "lisi@fleet.example.com"}
	require.NoError(t, store.CreateEmployee(e2))
	f.assistant = &domain.Assistant{EmployeeID: e2.ID, Status: domain.StaffStatusActive}
	require.NoError(t, store.CreateAssistant(f.assistant))

	return f
}

func token(t *testing.T, role domain.Role) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	ss, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return ss
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, role domain.Role, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.h.Mux.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (f *fixture) shiftBody(start, end string) map[string]any {
	return map[string]any{
		"vehicleID": f.vehicle.ID,
		"date":      "2025-06-01",
		"startTime": start,
		"endTime":   end,
		"shiftType": "morning",
		"drivers":   []map[string]any{{"driverID": f.driver.ID, "role": "primary"}},
	}
}

func (f *fixture) create(t *testing.T, start, end string) *domain.Shift {
	t.Helper()
	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", f.shiftBody(start, end))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var shift domain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &shift))
	return &shift
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, "", http.MethodGet, "/vehicles", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/vehicles", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.h.Mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// cookie 同样可以携带令牌
	req = httptest.NewRequest(http.MethodGet, "/vehicles", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token(t, domain.RoleViewer)})
	rec = httptest.NewRecorder()
	f.h.Mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, domain.RoleViewer, http.MethodPost, "/shifts", f.shiftBody("08:00", "12:00"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateShift(t *testing.T) {
	f := newFixture(t)

	shift := f.create(t, "08:00", "12:00")
	assert.NotZero(t, shift.ID)
	assert.Equal(t, domain.ShiftStateScheduled, shift.State)
	assert.Equal(t, []domain.ShiftEventType{domain.ShiftEventCreated}, f.publisher.types())

	rec, env := f.do(t, domain.RoleViewer, http.MethodGet, "/shifts/"+strconv.FormatInt(shift.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, []domain.ShiftDriver{{DriverID: f.driver.ID, Role: domain.DriverRolePrimary}}, got.Drivers)
}

func TestCreateShiftBadRequest(t *testing.T) {
	f := newFixture(t)

	body := f.shiftBody("08:00", "12:00")
	body["date"] = "2025/06/01"
	rec, _ := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = f.shiftBody("8 点", "12:00")
	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = f.shiftBody("08:00", "12:00")
	body["shiftType"] = "overtime"
	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = f.shiftBody("08:00", "12:00")
	body["unknown"] = true
	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateShiftValidationErrors(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.CreateLeaveRequest(&domain.LeaveRequest{
		EmployeeID: f.driver.EmployeeID,
		StartDate:  domain.NewDate(2025, time.May, 31),
		EndDate:    domain.NewDate(2025, time.June, 2),
		Status:     domain.LeaveStatusApproved,
	}))

	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", f.shiftBody("08:00", "12:00"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, env.Success)

	var verr struct {
		Drivers map[string][]scheduler.Violation `json:"drivers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	violations := verr.Drivers[strconv.FormatInt(f.driver.ID, 10)]
	require.Len(t, violations, 1)
	assert.Equal(t, scheduler.RuleDriverOnLeave, violations[0].Rule)

	assert.Empty(t, f.publisher.types())
}

func TestCreateShiftWithoutDrivers(t *testing.T) {
	f := newFixture(t)

	body := f.shiftBody("08:00", "12:00")
	delete(body, "drivers")
	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, string(env.Data), string(scheduler.RuleDriverRequired))
}

func TestCreateShiftUnknownVehicle(t *testing.T) {
	f := newFixture(t)

	body := f.shiftBody("08:00", "12:00")
	body["vehicleID"] = 999
	rec, _ := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateShiftTransient(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext(repository.StepInsertShift, scheduler.ErrTransientWrite, scheduler.ErrTransientWrite)

	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts", f.shiftBody("08:00", "12:00"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "系统繁忙，请稍后重试", env.Message)

	rec, env = f.do(t, domain.RoleViewer, http.MethodGet, "/shifts?from=2025-06-01&to=2025-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestValidateShift(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts/validate", f.shiftBody("08:00", "12:00"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, "/shifts/validate", f.shiftBody("12:00", "08:00"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	shifts, err := f.store.ListShifts(context.Background(), domain.ShiftFilter{})
	require.NoError(t, err)
	assert.Empty(t, shifts)
	assert.Empty(t, f.publisher.types())
}

func TestListShifts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "08:00", "12:00")

	rec, _ := f.do(t, domain.RoleViewer, http.MethodGet, "/shifts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, domain.RoleViewer, http.MethodGet, "/shifts?from=2025-06-02&to=2025-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, domain.RoleViewer, http.MethodGet, "/shifts?from=2025-01-01&to=2025-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, domain.RoleViewer, http.MethodGet, "/shifts?from=2025-06-01&to=2025-06-07&state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/shifts?from=2025-06-01&to=2025-06-07&state=scheduled&driverID=" + strconv.FormatInt(f.driver.ID, 10)
	rec, env := f.do(t, domain.RoleViewer, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shifts []domain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &shifts))
	assert.Len(t, shifts, 1)

	path = "/shifts?from=2025-06-01&to=2025-06-07&state=cancelled"
	rec, env = f.do(t, domain.RoleViewer, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &shifts))
	assert.Empty(t, shifts)
}

func TestUpdateShift(t *testing.T) {
	f := newFixture(t)
	shift := f.create(t, "08:00", "12:00")
	path := "/shifts/" + strconv.FormatInt(shift.ID, 10)

	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPatch, path, map[string]any{
		"endTime": "13:30",
		"notes":   "加开班次",
		"assistants": []map[string]any{
			{"assistantID": f.assistant.ID, "position": "general"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, domain.NewTimeOfDay(13, 30, 0), updated.EndTime)
	assert.Equal(t, "加开班次", updated.Notes)
	assert.Len(t, updated.Assistants, 1)

	// 与现有值相同的修改不会写入，也不会发布事件
	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPatch, path, map[string]any{"notes": "加开班次", "endTime": "13:30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPatch, path, map[string]any{"startTime": "14:00"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, []domain.ShiftEventType{domain.ShiftEventCreated, domain.ShiftEventUpdated}, f.publisher.types())
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	shift := f.create(t, "08:00", "12:00")
	path := "/shifts/" + strconv.FormatInt(shift.ID, 10)

	rec, _ := f.do(t, domain.RoleDispatcher, http.MethodPost, path+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env := f.do(t, domain.RoleDispatcher, http.MethodPost, path+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"state":"in_progress"`)

	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, path+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// 已完成的班次不能再修改任何字段
	rec, env = f.do(t, domain.RoleDispatcher, http.MethodPatch, path, map[string]any{"notes": "补记"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "班次已完成，不能再做任何修改", env.Message)

	rec, _ = f.do(t, domain.RoleDispatcher, http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, []domain.ShiftEventType{
		domain.ShiftEventCreated,
		domain.ShiftEventStarted,
		domain.ShiftEventCompleted,
	}, f.publisher.types())
}

func TestDeleteShift(t *testing.T) {
	f := newFixture(t)
	shift := f.create(t, "08:00", "12:00")
	path := "/shifts/" + strconv.FormatInt(shift.ID, 10)

	rec, _ := f.do(t, domain.RoleAdmin, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, domain.RoleViewer, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, domain.RoleAdmin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, domain.RoleAdmin, http.MethodDelete, "/shifts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []domain.ShiftEventType{domain.ShiftEventCreated, domain.ShiftEventDeleted}, f.publisher.types())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("channel closed")

	shift := f.create(t, "08:00", "12:00")
	assert.NotZero(t, shift.ID)
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, domain.RoleViewer, http.MethodGet, "/drivers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var drivers []domain.Driver
	require.NoError(t, json.Unmarshal(env.Data, &drivers))
	require.Len(t, drivers, 1)
	assert.Equal(t, "张三", drivers[0].FullName)

	rec, env = f.do(t, domain.RoleViewer, http.MethodGet, "/vehicles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "粤A12345")

	rec, _ = f.do(t, domain.RoleViewer, http.MethodGet, "/assistants", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
