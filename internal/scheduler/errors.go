package scheduler

import (
	"errors"
	"fmt"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("记录不存在")
	ErrIllegalState   = errors.New("班次当前状态不允许该操作")
	ErrTransientWrite = errors.New("写入因并发冲突失败")
	// ErrWindowConflict 由存储层在车辆时间窗口的排他约束被触发时返回
	ErrWindowConflict = errors.New("车辆时间窗口冲突")
)

type NotFoundError struct {
	Entity string // shift / vehicle / driver / assistant
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d 不存在", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type IllegalStateError struct {
	ShiftID int64
	State   domain.ShiftState
	Op      string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("班次 %d 处于 %s 状态，不允许 %s", e.ShiftID, e.State, e.Op)
}

func (e *IllegalStateError) Is(target error) bool {
	return target == ErrIllegalState
}

// Immutable 表示班次已完成，任何修改都不会再被接受
func (e *IllegalStateError) Immutable() bool {
	return e.State == domain.ShiftStateCompleted
}

// TransientWriteError 表示校验已经通过，但写入在重试之后仍然失败，客户端不需要修改请求内容
type TransientWriteError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientWriteError) Error() string {
	return fmt.Sprintf("%s 在 %d 次尝试后仍然写入失败: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientWriteError) Unwrap() error {
	return e.Err
}

func (e *TransientWriteError) Is(target error) bool {
	return target == ErrTransientWrite
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nf
		}
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}
