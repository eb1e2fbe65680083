package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// evaluation 是一次校验过程中所有规则共享的上下文
type evaluation struct {
	reader    Reader
	shift     *domain.Shift
	excludeID int64
}

// check 是一条独立的校验规则，返回空字符串表示通过
type check[T any] struct {
	rule    Rule
	applies func(sc scope) bool // 为 nil 时表示所在分组被校验时总是执行
	eval    func(ctx context.Context, ev *evaluation, subject T) (string, error)
}

func (c check[T]) enabled(sc scope) bool {
	return c.applies == nil || c.applies(sc)
}

func vehicleChecks() []check[*domain.Vehicle] {
	vehicleScope := func(sc scope) bool { return sc.vehicle }

	return []check[*domain.Vehicle]{
		{
			rule:    RuleVehicleNotOperational,
			applies: vehicleScope,
			eval: func(_ context.Context, _ *evaluation, v *domain.Vehicle) (string, error) {
				if v.Status != domain.VehicleStatusOperational {
					return fmt.Sprintf("车辆 %s 当前状态为 %s，不能排班", v.PlateNumber, v.Status), nil
				}
				return "", nil
			},
		},
		{
			rule:    RuleVehicleInsuranceExpired,
			applies: vehicleScope,
			eval: func(_ context.Context, ev *evaluation, v *domain.Vehicle) (string, error) {
				if expired(v.InsuranceExpiresOn, ev.shift.Date) {
					return fmt.Sprintf("车辆 %s 的强制险已于 %s 到期", v.PlateNumber, v.InsuranceExpiresOn), nil
				}
				return "", nil
			},
		},
		{
			rule:    RuleVehicleInspectionExpired,
			applies: vehicleScope,
			eval: func(_ context.Context, ev *evaluation, v *domain.Vehicle) (string, error) {
				if expired(v.InspectionExpiresOn, ev.shift.Date) {
					return fmt.Sprintf("车辆 %s 的年检已于 %s 到期", v.PlateNumber, v.InspectionExpiresOn), nil
				}
				return "", nil
			},
		},
		{
			rule:    RuleVehicleOverlap,
			applies: func(sc scope) bool { return sc.overlap },
			eval: func(ctx context.Context, ev *evaluation, v *domain.Vehicle) (string, error) {
				window := WindowOf(ev.shift)
				if !window.Valid() {
					// 时间窗口本身不合法时由 shift_window 报告
					return "", nil
				}

				conflicts, err := overlapping(ctx, ev.reader, v.ID, ev.shift.Date, window, ev.excludeID)
				if err != nil {
					return "", err
				}
				if len(conflicts) == 0 {
					return "", nil
				}

				windows := make([]string, len(conflicts))
				for i, c := range conflicts {
					windows[i] = fmt.Sprintf("#%d %s", c.ID, WindowOf(c))
				}
				return fmt.Sprintf("车辆 %s 在 %s 的时间段 %s 与已有班次冲突: %s", v.PlateNumber, ev.shift.Date, window, strings.Join(windows, ", ")), nil
			},
		},
		{
			rule:    RuleVehicleRequiresAssistant,
			applies: func(sc scope) bool { return sc.vehicle || sc.assistants },
			eval: func(_ context.Context, ev *evaluation, v *domain.Vehicle) (string, error) {
				if v.RequiresAssistant() && len(ev.shift.Assistants) == 0 {
					return fmt.Sprintf("车辆 %s 是双层巴士，至少需要一名乘务员", v.PlateNumber), nil
				}
				return "", nil
			},
		},
	}
}

// 请假检查排在状态检查之前：人员状态可能还没有随请假审批同步
func driverChecks() []check[*domain.Driver] {
	return []check[*domain.Driver]{
		{
			rule: RuleDriverOnLeave,
			eval: func(ctx context.Context, ev *evaluation, d *domain.Driver) (string, error) {
				return leaveConflict(ctx, ev, "司机", d.FullName, d.EmployeeID)
			},
		},
		{
			rule: RuleDriverInactive,
			eval: func(_ context.Context, _ *evaluation, d *domain.Driver) (string, error) {
				if d.Status != domain.StaffStatusActive {
					return fmt.Sprintf("司机 %s 当前状态为 %s", d.FullName, d.Status), nil
				}
				return "", nil
			},
		},
		{
			rule: RuleDriverUnfit,
			eval: func(_ context.Context, _ *evaluation, d *domain.Driver) (string, error) {
				if !d.FitToDrive {
					return fmt.Sprintf("司机 %s 未通过驾驶适任评估", d.FullName), nil
				}
				return "", nil
			},
		},
		{
			rule: RuleDriverLicenseExpired,
			eval: func(_ context.Context, ev *evaluation, d *domain.Driver) (string, error) {
				if expired(d.LicenseExpiresOn, ev.shift.Date) {
					return fmt.Sprintf("司机 %s 的驾驶证已于 %s 到期", d.FullName, d.LicenseExpiresOn), nil
				}
				return "", nil
			},
		},
		{
			rule: RuleDriverDoubleBooked,
			eval: func(ctx context.Context, ev *evaluation, d *domain.Driver) (string, error) {
				ids, err := ev.reader.DriverShiftIDsOn(ctx, d.ID, ev.shift.Date)
				if err != nil {
					return "", err
				}
				return doubleBooked(ids, ev, "司机", d.FullName), nil
			},
		},
	}
}

func assistantChecks() []check[*domain.Assistant] {
	return []check[*domain.Assistant]{
		{
			rule: RuleAssistantOnLeave,
			eval: func(ctx context.Context, ev *evaluation, a *domain.Assistant) (string, error) {
				return leaveConflict(ctx, ev, "乘务员", a.FullName, a.EmployeeID)
			},
		},
		{
			rule: RuleAssistantInactive,
			eval: func(_ context.Context, _ *evaluation, a *domain.Assistant) (string, error) {
				if a.Status != domain.StaffStatusActive {
					return fmt.Sprintf("乘务员 %s 当前状态为 %s", a.FullName, a.Status), nil
				}
				return "", nil
			},
		},
		{
			rule: RuleAssistantDoubleBooked,
			eval: func(ctx context.Context, ev *evaluation, a *domain.Assistant) (string, error) {
				ids, err := ev.reader.AssistantShiftIDsOn(ctx, a.ID, ev.shift.Date)
				if err != nil {
					return "", err
				}
				return doubleBooked(ids, ev, "乘务员", a.FullName), nil
			},
		},
	}
}

// expired 到期日当天仍然有效，为 nil 表示没有登记到期日
func expired(expiresOn *domain.Date, on domain.Date) bool {
	return expiresOn != nil && expiresOn.Before(on)
}

func leaveConflict(ctx context.Context, ev *evaluation, kind, name string, employeeID int64) (string, error) {
	leave, err := ev.reader.ApprovedLeaveOn(ctx, employeeID, ev.shift.Date)
	if err != nil {
		return "", err
	}
	if leave == nil || !leave.Blocks(ev.shift.Date) {
		return "", nil
	}
	return fmt.Sprintf("%s %s 在 %s 至 %s 已批准请假", kind, name, leave.StartDate, leave.EndDate), nil
}

func doubleBooked(shiftIDs []int64, ev *evaluation, kind, name string) string {
	others := make([]string, 0, len(shiftIDs))
	for _, id := range shiftIDs {
		if id != ev.excludeID {
			others = append(others, fmt.Sprintf("#%d", id))
		}
	}
	if len(others) == 0 {
		return ""
	}
	return fmt.Sprintf("%s %s 在 %s 已被安排到班次 %s", kind, name, ev.shift.Date, strings.Join(others, ", "))
}
