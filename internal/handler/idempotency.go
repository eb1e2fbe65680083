package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// 幂等键在创建完成前保存这个占位值，完成后替换为创建出的班次
const idempotencyPending = "pending"

func idempotencyKey(key string) string {
	return fmt.Sprintf("idem_create_shift_%s", key)
}

func (h *Handler) redisContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationTimeout)*time.Second)
}

// beginIdempotent 占用幂等键。replayed 为 true 表示已经返回了之前的结果，ok 为 false 表示已经返回了错误
func (h *Handler) beginIdempotent(w http.ResponseWriter, r *http.Request, key string) (replayed bool, ok bool) {
	if h.redisClient == nil {
		return false, true
	}
	if len(key) > 128 {
		h.errorResponse(w, r, http.StatusBadRequest, "Idempotency-Key 过长", nil)
		return false, false
	}

	ctx, cancel := h.redisContext(r)
	defer cancel()

	ttl := time.Duration(h.config.Scheduling.IdempotencyTTL) * time.Second
	acquired, err := h.redisClient.SetNX(ctx, idempotencyKey(key), idempotencyPending, ttl).Result()
	if err != nil {
		h.internalServerError(w, r, err)
		return false, false
	}
	if acquired {
		return false, true
	}

	stored, err := h.redisClient.Get(ctx, idempotencyKey(key)).Result()
	if err != nil {
		// 占位值恰好过期或被删除，让客户端重新提交
		h.errorResponse(w, r, http.StatusConflict, "相同的请求正在处理中", nil)
		return false, false
	}
	if stored == idempotencyPending {
		h.errorResponse(w, r, http.StatusConflict, "相同的请求正在处理中", nil)
		return false, false
	}

	var shift domain.Shift
	if err := json.Unmarshal([]byte(stored), &shift); err != nil {
		h.internalServerError(w, r, err)
		return false, false
	}

	w.Header().Set("Idempotent-Replayed", "true")
	h.successResponse(w, r, "创建班次成功", &shift)
	return true, true
}

func (h *Handler) finishIdempotent(r *http.Request, key string, shift *domain.Shift) {
	if h.redisClient == nil {
		return
	}

	body, err := json.Marshal(shift)
	if err != nil {
		slog.Error("无法序列化班次", "shiftID", shift.ID, "error", err)
		return
	}

	ctx, cancel := h.redisContext(r)
	defer cancel()

	ttl := time.Duration(h.config.Scheduling.IdempotencyTTL) * time.Second
	if err := h.redisClient.Set(ctx, idempotencyKey(key), body, ttl).Err(); err != nil {
		slog.Error("无法保存幂等结果", "key", key, "requestID", requestIDFrom(r), "error", err)
	}
}

// abortIdempotent 创建失败时释放幂等键，客户端修改后可以用同一个键重新提交
func (h *Handler) abortIdempotent(r *http.Request, key string) {
	if h.redisClient == nil {
		return
	}

	ctx, cancel := h.redisContext(r)
	defer cancel()

	if err := h.redisClient.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		slog.Error("无法释放幂等键", "key", key, "requestID", requestIDFrom(r), "error", err)
	}
}
