package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

// Registry 提供表单下拉框所需的车辆和人员列表
type Registry interface {
	GetAllVehicles() ([]*domain.Vehicle, error)
	GetAllDrivers() ([]*domain.Driver, error)
	GetAllAssistants() ([]*domain.Assistant, error)
}

type ShiftEventPublisher interface {
	PublishShiftEvent(ctx context.Context, event domain.ShiftEvent) error
}

type Handler struct {
	validate    *validator.Validate
	config      *config.Config
	scheduler   *scheduler.Scheduler
	registry    Registry
	translator  ut.Translator
	publisher   ShiftEventPublisher
	redisClient *redis.Client // 为 nil 时不做幂等处理

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, sched *scheduler.Scheduler, registry Registry, publisher ShiftEventPublisher, rdb *redis.Client) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:    validate,
		config:      cfg,
		scheduler:   sched,
		registry:    registry,
		translator:  trans,
		publisher:   publisher,
		redisClient: rdb,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.requestID)
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Get("/healthz", h.Healthz)
	h.Mux.Method("GET", "/metrics", metrics.Handler())

	// 令牌由统一认证服务签发，以下 API 必须携带
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)

		dispatcher := h.RequiredRole([]domain.Role{domain.RoleAdmin, domain.RoleDispatcher})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.With(dispatcher).Post("/", h.CreateShift)
			r.With(dispatcher).Post("/validate", h.ValidateShift)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.shiftID)
				r.Get("/", h.GetShift)
				r.With(dispatcher).Patch("/", h.UpdateShift)
				r.With(dispatcher).Delete("/", h.DeleteShift)
				r.With(dispatcher).Post("/start", h.StartShift)
				r.With(dispatcher).Post("/complete", h.CompleteShift)
				r.With(dispatcher).Post("/cancel", h.CancelShift)
			})
		})

		r.Get("/vehicles", h.GetAllVehicles)
		r.Get("/drivers", h.GetAllDrivers)
		r.Get("/assistants", h.GetAllAssistants)
	})
}
