package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/metrics"
)

type Scheduler struct {
	store     Store
	validator *Validator
	retries   int
	now       func() time.Time
}

type Option func(*Scheduler)

// WithTransientRetries 设置写入因并发冲突失败后的重试次数，默认为 1
func WithTransientRetries(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		validator: NewValidator(),
		retries:   1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShift 在同一个事务中完成加锁、冲突检查、资格校验和写入，任何一步失败都不会留下班次或乘务人员记录
func (s *Scheduler) CreateShift(ctx context.Context, c *Candidate) (*domain.Shift, error) {
	var created *domain.Shift

	err := s.withRetry(ctx, "create", func() error {
		shift := c.shift()
		shift.CreatedAt = s.now()
		shift.UpdatedAt = shift.CreatedAt

		err := s.store.WithinTx(ctx, func(tx Tx) error {
			subj, err := s.lockSubject(ctx, tx, shift, fullScope)
			if err != nil {
				return err
			}

			verr, err := s.validator.validate(ctx, tx, subj, fullScope)
			if err != nil {
				return err
			}
			if verr != nil {
				return verr
			}

			return s.insert(ctx, tx, shift)
		})
		if err != nil {
			return err
		}

		created = shift
		return nil
	})

	s.observe("create", err)
	return created, err
}

// ValidateShift 只做校验不写入，没有问题时返回 nil
func (s *Scheduler) ValidateShift(ctx context.Context, c *Candidate) error {
	shift := c.shift()

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		subj, err := s.lockSubject(ctx, tx, shift, fullScope)
		if err != nil {
			return err
		}

		verr, err := s.validator.validate(ctx, tx, subj, fullScope)
		if err != nil {
			return err
		}
		if verr != nil {
			return verr
		}
		return nil
	})

	s.observe("validate", err)
	return err
}

// UpdateShift 只重新校验发生变化的部分，修改时间窗口时会排除班次自身。
// changed 为 false 表示所有字段与现有值相同，没有写入任何数据
func (s *Scheduler) UpdateShift(ctx context.Context, id int64, patch *Patch) (updated *domain.Shift, changed bool, err error) {

	err = s.withRetry(ctx, "update", func() error {
		changed = false
		return s.store.WithinTx(ctx, func(tx Tx) error {
			current, err := tx.LockShift(ctx, id)
			if err != nil {
				return notFound(err, "shift", id)
			}
			if !current.State.IsEditable() {
				return &IllegalStateError{ShiftID: id, State: current.State, Op: "update"}
			}

			next := current.Clone()
			sc := patch.applyTo(next)
			if !sc.changed() {
				updated = current
				return nil
			}

			if sc.needsValidation() {
				subj, err := s.lockSubject(ctx, tx, next, sc)
				if err != nil {
					return err
				}
				subj.ExcludeShiftID = id

				verr, err := s.validator.validate(ctx, tx, subj, sc)
				if err != nil {
					return err
				}
				if verr != nil {
					return verr
				}
			} else {
				// 只修改了类型或备注，跳过资格检查，但字段本身仍需合法
				verr := newValidationError()
				checkShift(next, verr)
				if !verr.Empty() {
					return verr
				}
			}

			next.UpdatedAt = s.now()
			if err := s.update(ctx, tx, next); err != nil {
				return err
			}
			if sc.drivers || sc.assistants {
				if err := tx.ReplaceCrew(ctx, next); err != nil {
					return err
				}
			}

			updated, changed = next, true
			return nil
		})
	})

	s.observe("update", err)
	if err != nil {
		return nil, false, err
	}
	return updated, changed, nil
}

// DeleteShift 只允许删除尚未开始的班次，返回被删除的班次
func (s *Scheduler) DeleteShift(ctx context.Context, id int64) (*domain.Shift, error) {
	var deleted *domain.Shift

	err := s.withRetry(ctx, "delete", func() error {
		return s.store.WithinTx(ctx, func(tx Tx) error {
			current, err := tx.LockShift(ctx, id)
			if err != nil {
				return notFound(err, "shift", id)
			}
			if !current.State.IsDeletable() {
				return &IllegalStateError{ShiftID: id, State: current.State, Op: "delete"}
			}

			if err := tx.DeleteShift(ctx, id); err != nil {
				return notFound(err, "shift", id)
			}

			deleted = current
			return nil
		})
	})

	s.observe("delete", err)
	return deleted, err
}

func (s *Scheduler) StartShift(ctx context.Context, id int64) (*domain.Shift, error) {
	return s.transition(ctx, id, "start", domain.ShiftStateInProgress)
}

func (s *Scheduler) CompleteShift(ctx context.Context, id int64) (*domain.Shift, error) {
	return s.transition(ctx, id, "complete", domain.ShiftStateCompleted)
}

// CancelShift 之后该班次不再参与时间冲突和同日唯一性检查
func (s *Scheduler) CancelShift(ctx context.Context, id int64) (*domain.Shift, error) {
	return s.transition(ctx, id, "cancel", domain.ShiftStateCancelled)
}

func (s *Scheduler) transition(ctx context.Context, id int64, op string, to domain.ShiftState) (*domain.Shift, error) {
	var result *domain.Shift

	err := s.withRetry(ctx, op, func() error {
		return s.store.WithinTx(ctx, func(tx Tx) error {
			current, err := tx.LockShift(ctx, id)
			if err != nil {
				return notFound(err, "shift", id)
			}
			if !current.State.CanTransitionTo(to) {
				return &IllegalStateError{ShiftID: id, State: current.State, Op: op}
			}

			next := current.Clone()
			next.State = to
			next.UpdatedAt = s.now()
			if err := s.update(ctx, tx, next); err != nil {
				return err
			}

			result = next
			return nil
		})
	})

	s.observe(op, err)
	return result, err
}

func (s *Scheduler) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	shift, err := s.store.GetShift(ctx, id)
	if err != nil {
		return nil, notFound(err, "shift", id)
	}
	return shift, nil
}

// ListShifts 只读，不做任何校验
func (s *Scheduler) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]*domain.Shift, error) {
	return s.store.ListShifts(ctx, filter)
}

// lockSubject 按车辆、司机、乘务员的顺序加锁，保证对同一车辆或人员的校验和写入是串行的
func (s *Scheduler) lockSubject(ctx context.Context, tx Tx, shift *domain.Shift, sc scope) (*Subject, error) {
	subj := &Subject{Shift: shift}

	vehicle, err := tx.LockVehicle(ctx, shift.VehicleID)
	if err != nil {
		return nil, notFound(err, "vehicle", shift.VehicleID)
	}
	subj.Vehicle = vehicle

	if sc.drivers {
		if subj.Drivers, err = tx.LockDrivers(ctx, sortedIDs(shift.DriverIDs())); err != nil {
			return nil, err
		}
	}
	if sc.assistants {
		if subj.Assistants, err = tx.LockAssistants(ctx, sortedIDs(shift.AssistantIDs())); err != nil {
			return nil, err
		}
	}

	return subj, nil
}

func (s *Scheduler) insert(ctx context.Context, tx Tx, shift *domain.Shift) error {
	err := tx.InsertShift(ctx, shift)
	if errors.Is(err, ErrWindowConflict) {
		return windowConflict(shift)
	}
	return err
}

func (s *Scheduler) update(ctx context.Context, tx Tx, shift *domain.Shift) error {
	err := tx.UpdateShift(ctx, shift)
	if errors.Is(err, ErrWindowConflict) {
		return windowConflict(shift)
	}
	return err
}

// windowConflict 对应存储层排他约束兜底拦下的冲突，正常情况下加锁后的检查已经先报告了
func windowConflict(shift *domain.Shift) *ValidationError {
	verr := newValidationError()
	verr.addVehicle(RuleVehicleOverlap, "车辆在 "+shift.Date.String()+" 的时间段 "+WindowOf(shift).String()+" 与已有班次冲突")
	return verr
}

// withRetry 只对 ErrTransientWrite 重试，其他错误（包括校验失败）直接返回
func (s *Scheduler) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	attempts := 0

	for attempts <= s.retries {
		if attempts > 0 {
			slog.Warn("写入因并发冲突失败，正在重试", "op", op, "attempt", attempts+1, "error", err)
			metrics.TransientRetries.WithLabelValues(op).Inc()
		}

		attempts++
		err = fn()
		if !errors.Is(err, ErrTransientWrite) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}

	return &TransientWriteError{Op: op, Attempts: attempts, Err: err}
}

func (s *Scheduler) observe(op string, err error) {
	var verr *ValidationError

	outcome := "ok"
	switch {
	case err == nil:
	case errors.As(err, &verr):
		outcome = "invalid"
		for _, rule := range verr.Rules() {
			metrics.ValidationViolations.WithLabelValues(string(rule)).Inc()
		}
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrIllegalState):
		outcome = "illegal_state"
	case errors.Is(err, ErrTransientWrite):
		outcome = "transient"
	default:
		outcome = "error"
	}

	metrics.ShiftOperations.WithLabelValues(op, outcome).Inc()
}
