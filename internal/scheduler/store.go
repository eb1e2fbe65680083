package scheduler

import (
	"context"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// Store 由 repository 包实现（Postgres 和内存两种）
type Store interface {
	// WithinTx 在同一个事务中执行 fn，fn 返回错误时回滚
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	GetShift(ctx context.Context, id int64) (*domain.Shift, error)
	ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]*domain.Shift, error)
}

// Reader 是校验阶段在事务中使用的只读查询
type Reader interface {
	// VehicleShiftsOn 返回车辆在指定日期所有未取消的班次
	VehicleShiftsOn(ctx context.Context, vehicleID int64, date domain.Date) ([]*domain.Shift, error)
	DriverShiftIDsOn(ctx context.Context, driverID int64, date domain.Date) ([]int64, error)
	AssistantShiftIDsOn(ctx context.Context, assistantID int64, date domain.Date) ([]int64, error)
	// ApprovedLeaveOn 在没有覆盖该日期的已批准请假时返回 nil, nil
	ApprovedLeaveOn(ctx context.Context, employeeID int64, date domain.Date) (*domain.LeaveRequest, error)
}

// Tx 中的 Lock* 方法会对行加锁，直到事务结束
type Tx interface {
	Reader

	LockVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	// LockDrivers 只返回存在的司机，调用方负责判断缺失的 id
	LockDrivers(ctx context.Context, ids []int64) (map[int64]*domain.Driver, error)
	LockAssistants(ctx context.Context, ids []int64) (map[int64]*domain.Assistant, error)
	LockShift(ctx context.Context, id int64) (*domain.Shift, error)

	InsertShift(ctx context.Context, shift *domain.Shift) error
	// UpdateShift 按 version 乐观更新班次行（不含乘务人员）
	UpdateShift(ctx context.Context, shift *domain.Shift) error
	ReplaceCrew(ctx context.Context, shift *domain.Shift) error
	DeleteShift(ctx context.Context, id int64) error
}
