package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "requestID", requestIDFrom(r), "error", err)
}

func (h *Handler) readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
		http.Error(w, "服务器内部错误", http.StatusInternalServerError)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, status int, msg string, data any) {
	h.writeJSON(w, r, status, Response{
		Success: false,
		Message: msg,
		Data:    data,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		h.errorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	h.errorResponse(w, r, http.StatusBadRequest, validationErrors[0].Translate(h.translator), nil)
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.errorResponse(w, r, http.StatusInternalServerError, "服务器内部错误", nil)
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// schedulingError 将排班引擎返回的错误映射为响应，校验失败和状态错误属于正常的业务结果，不记录错误日志
func (h *Handler) schedulingError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *scheduler.ValidationError
		nf   *scheduler.NotFoundError
		ise  *scheduler.IllegalStateError
	)

	switch {
	case errors.As(err, &verr):
		h.errorResponse(w, r, http.StatusUnprocessableEntity, "班次校验未通过", verr)
	case errors.As(err, &nf):
		h.errorResponse(w, r, http.StatusNotFound, nf.Error(), nil)
	case errors.Is(err, scheduler.ErrNotFound):
		h.errorResponse(w, r, http.StatusNotFound, "记录不存在", nil)
	case errors.As(err, &ise):
		msg := ise.Error()
		if ise.Immutable() {
			msg = "班次已完成，不能再做任何修改"
		}
		h.errorResponse(w, r, http.StatusConflict, msg, nil)
	case errors.Is(err, scheduler.ErrTransientWrite):
		// 请求内容本身没有问题，提示客户端稍后重试而不是修改表单
		slog.Warn("写入重试后仍然失败", "method", r.Method, "path", r.URL.Path, "requestID", requestIDFrom(r), "error", err)
		h.errorResponse(w, r, http.StatusServiceUnavailable, "系统繁忙，请稍后重试", nil)
	default:
		h.internalServerError(w, r, err)
	}
}
