package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgExclusionViolation   = "23P01"

	shiftVehicleWindowConstraint = "shifts_vehicle_window_excl"
)

// classifyError 把驱动层错误翻译成 scheduler 包能识别的哨兵错误，其余错误原样返回
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", scheduler.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %w", scheduler.ErrTransientWrite, err)
		case pgExclusionViolation:
			if pgErr.ConstraintName == shiftVehicleWindowConstraint {
				return fmt.Errorf("%w: %w", scheduler.ErrWindowConflict, err)
			}
		}
	}

	return err
}
