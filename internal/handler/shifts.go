package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/utils"
)

type shiftDriverRequest struct {
	DriverID int64  `json:"driverID" validate:"required,gt=0"`
	Role     string `json:"role" validate:"required,oneof=primary backup"`
}

type shiftAssistantRequest struct {
	AssistantID int64  `json:"assistantID" validate:"required,gt=0"`
	Position    string `json:"position" validate:"required,oneof=upper_deck lower_deck general"`
}

func toDrivers(req []shiftDriverRequest) []domain.ShiftDriver {
	drivers := make([]domain.ShiftDriver, 0, len(req))
	for _, d := range req {
		drivers = append(drivers, domain.ShiftDriver{DriverID: d.DriverID, Role: domain.DriverRole(d.Role)})
	}
	return drivers
}

func toAssistants(req []shiftAssistantRequest) []domain.ShiftAssistant {
	assistants := make([]domain.ShiftAssistant, 0, len(req))
	for _, a := range req {
		assistants = append(assistants, domain.ShiftAssistant{AssistantID: a.AssistantID, Position: domain.AssistantPosition(a.Position)})
	}
	return assistants
}

// 司机列表为空不在这里拦截，交给排班引擎作为结构化的校验错误返回
type createShiftRequest struct {
	VehicleID  int64                   `json:"vehicleID" validate:"required,gt=0"`
	Date       string                  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string                  `json:"startTime" validate:"required"`
	EndTime    string                  `json:"endTime" validate:"required"`
	ShiftType  string                  `json:"shiftType" validate:"required,oneof=morning afternoon night full"`
	Notes      string                  `json:"notes" validate:"max=500"`
	Drivers    []shiftDriverRequest    `json:"drivers" validate:"dive"`
	Assistants []shiftAssistantRequest `json:"assistants" validate:"dive"`
}

func (req *createShiftRequest) candidate() (*scheduler.Candidate, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	start, err := domain.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, err
	}

	return &scheduler.Candidate{
		VehicleID:  req.VehicleID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Type:       domain.ShiftType(req.ShiftType),
		Notes:      req.Notes,
		Drivers:    toDrivers(req.Drivers),
		Assistants: toAssistants(req.Assistants),
	}, nil
}

func (h *Handler) readCandidate(w http.ResponseWriter, r *http.Request) (*scheduler.Candidate, bool) {
	var req createShiftRequest

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}

	c, err := req.candidate()
	if err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	var filter domain.ShiftFilter
	q := r.URL.Query()

	for key, dst := range map[string]**domain.Date{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(key); v != "" {
			d, err := domain.ParseDate(v)
			if err != nil {
				h.badRequest(w, r, err)
				return
			}
			*dst = &d
		}
	}

	for key, dst := range map[string]**int64{"vehicleID": &filter.VehicleID, "driverID": &filter.DriverID, "assistantID": &filter.AssistantID} {
		if v := q.Get(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				h.errorResponse(w, r, http.StatusBadRequest, key+" 无效", nil)
				return
			}
			*dst = &id
		}
	}

	if v := q.Get("state"); v != "" {
		state, err := domain.ParseShiftState(v)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		filter.State = &state
	}

	if err := utils.ValidateDateRange(filter.From, filter.To, h.config.Scheduling.MaxListRangeDays); err != nil {
		h.badRequest(w, r, err)
		return
	}

	shifts, err := h.scheduler.ListShifts(r.Context(), filter)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取班次列表成功", shifts)
}

func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	c, ok := h.readCandidate(w, r)
	if !ok {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		replayed, ok := h.beginIdempotent(w, r, key)
		if replayed || !ok {
			return
		}
	}

	shift, err := h.scheduler.CreateShift(r.Context(), c)
	if err != nil {
		if key != "" {
			h.abortIdempotent(r, key)
		}
		h.schedulingError(w, r, err)
		return
	}

	if key != "" {
		h.finishIdempotent(r, key, shift)
	}
	h.publish(r, domain.ShiftEventCreated, shift)

	h.successResponse(w, r, "创建班次成功", shift)
}

func (h *Handler) ValidateShift(w http.ResponseWriter, r *http.Request) {
	c, ok := h.readCandidate(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.ValidateShift(r.Context(), c); err != nil {
		h.schedulingError(w, r, err)
		return
	}

	h.successResponse(w, r, "校验通过", nil)
}

func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ShiftIDCtx).(int64)

	shift, err := h.scheduler.GetShift(r.Context(), id)
	if err != nil {
		h.schedulingError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取班次成功", shift)
}

type updateShiftRequest struct {
	VehicleID  *int64                   `json:"vehicleID" validate:"omitempty,gt=0"`
	Date       *string                  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime  *string                  `json:"startTime"`
	EndTime    *string                  `json:"endTime"`
	ShiftType  *string                  `json:"shiftType" validate:"omitempty,oneof=morning afternoon night full"`
	Notes      *string                  `json:"notes" validate:"omitempty,max=500"`
	Drivers    *[]shiftDriverRequest    `json:"drivers" validate:"omitempty,dive"`
	Assistants *[]shiftAssistantRequest `json:"assistants" validate:"omitempty,dive"`
}

func (req *updateShiftRequest) patch() (*scheduler.Patch, error) {
	p := &scheduler.Patch{
		VehicleID: req.VehicleID,
		Notes:     req.Notes,
	}

	if req.Date != nil {
		d, err := domain.ParseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		p.Date = &d
	}
	if req.StartTime != nil {
		t, err := domain.ParseTimeOfDay(*req.StartTime)
		if err != nil {
			return nil, err
		}
		p.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := domain.ParseTimeOfDay(*req.EndTime)
		if err != nil {
			return nil, err
		}
		p.EndTime = &t
	}
	if req.ShiftType != nil {
		t := domain.ShiftType(*req.ShiftType)
		p.Type = &t
	}
	if req.Drivers != nil {
		drivers := toDrivers(*req.Drivers)
		p.Drivers = &drivers
	}
	if req.Assistants != nil {
		assistants := toAssistants(*req.Assistants)
		p.Assistants = &assistants
	}

	return p, nil
}

func (h *Handler) UpdateShift(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ShiftIDCtx).(int64)

	var req updateShiftRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	patch, err := req.patch()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	shift, changed, err := h.scheduler.UpdateShift(r.Context(), id, patch)
	if err != nil {
		h.schedulingError(w, r, err)
		return
	}

	if changed {
		h.publish(r, domain.ShiftEventUpdated, shift)
	}

	h.successResponse(w, r, "更新班次成功", shift)
}

func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	id := r.Context().Value(ShiftIDCtx).(int64)

	shift, err := h.scheduler.DeleteShift(r.Context(), id)
	if err != nil {
		h.schedulingError(w, r, err)
		return
	}

	h.publish(r, domain.ShiftEventDeleted, shift)

	h.successResponse(w, r, "删除班次成功", nil)
}

func (h *Handler) StartShift(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.StartShift, domain.ShiftEventStarted, "班次已开始")
}

func (h *Handler) CompleteShift(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.CompleteShift, domain.ShiftEventCompleted, "班次已完成")
}

func (h *Handler) CancelShift(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.scheduler.CancelShift, domain.ShiftEventCancelled, "班次已取消")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*domain.Shift, error), event domain.ShiftEventType, msg string) {
	id := r.Context().Value(ShiftIDCtx).(int64)

	shift, err := fn(r.Context(), id)
	if err != nil {
		h.schedulingError(w, r, err)
		return
	}

	h.publish(r, event, shift)

	h.successResponse(w, r, msg, shift)
}

// publish 在事务提交之后调用，失败只记录日志，不影响本次请求的结果
func (h *Handler) publish(r *http.Request, t domain.ShiftEventType, shift *domain.Shift) {
	if h.publisher == nil {
		return
	}

	event := domain.NewShiftEvent(t, shift, time.Now())
	if err := h.publisher.PublishShiftEvent(r.Context(), event); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(t)).Inc()
		slog.Error("发布班次事件失败", "type", t, "shiftID", shift.ID, "requestID", requestIDFrom(r), "error", err)
	}
}
