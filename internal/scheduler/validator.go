package scheduler

import (
	"context"
	"fmt"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// Subject 是一次校验的全部输入，Drivers / Assistants 中缺失的 id 视为不存在
type Subject struct {
	Shift          *domain.Shift
	Vehicle        *domain.Vehicle
	Drivers        map[int64]*domain.Driver
	Assistants     map[int64]*domain.Assistant
	ExcludeShiftID int64
}

type Validator struct {
	vehicle   []check[*domain.Vehicle]
	driver    []check[*domain.Driver]
	assistant []check[*domain.Assistant]
}

func NewValidator() *Validator {
	return &Validator{
		vehicle:   vehicleChecks(),
		driver:    driverChecks(),
		assistant: assistantChecks(),
	}
}

// Validate 执行全部规则并收集所有失败项，没有失败项时返回 nil
func (v *Validator) Validate(ctx context.Context, r Reader, subj *Subject) (*ValidationError, error) {
	return v.validate(ctx, r, subj, fullScope)
}

func (v *Validator) validate(ctx context.Context, r Reader, subj *Subject, sc scope) (*ValidationError, error) {
	ev := &evaluation{reader: r, shift: subj.Shift, excludeID: subj.ExcludeShiftID}
	verr := newValidationError()

	checkShift(subj.Shift, verr)

	if subj.Vehicle != nil {
		for _, c := range v.vehicle {
			if !c.enabled(sc) {
				continue
			}
			msg, err := c.eval(ctx, ev, subj.Vehicle)
			if err != nil {
				return nil, fmt.Errorf("规则 %s 执行失败: %w", c.rule, err)
			}
			if msg != "" {
				verr.addVehicle(c.rule, msg)
			}
		}
	}

	if sc.drivers {
		for _, id := range uniqueIDs(subj.Shift.DriverIDs()) {
			d, ok := subj.Drivers[id]
			if !ok {
				verr.addDriver(id, RuleDriverNotFound, fmt.Sprintf("司机 %d 不存在", id))
				continue
			}
			if err := runChecks(ctx, ev, v.driver, d, func(rule Rule, msg string) { verr.addDriver(id, rule, msg) }); err != nil {
				return nil, err
			}
		}
	}

	if sc.assistants {
		for _, id := range uniqueIDs(subj.Shift.AssistantIDs()) {
			a, ok := subj.Assistants[id]
			if !ok {
				verr.addAssistant(id, RuleAssistantNotFound, fmt.Sprintf("乘务员 %d 不存在", id))
				continue
			}
			if err := runChecks(ctx, ev, v.assistant, a, func(rule Rule, msg string) { verr.addAssistant(id, rule, msg) }); err != nil {
				return nil, err
			}
		}
	}

	if verr.Empty() {
		return nil, nil
	}
	return verr, nil
}

func runChecks[T any](ctx context.Context, ev *evaluation, checks []check[T], subject T, report func(Rule, string)) error {
	for _, c := range checks {
		msg, err := c.eval(ctx, ev, subject)
		if err != nil {
			return fmt.Errorf("规则 %s 执行失败: %w", c.rule, err)
		}
		if msg != "" {
			report(c.rule, msg)
		}
	}
	return nil
}

// checkShift 只检查班次本身的字段，不需要读取存储
func checkShift(s *domain.Shift, verr *ValidationError) {
	if s.Date.IsZero() {
		verr.addShift(RuleInvalidValue, "班次日期不能为空")
	}
	if !s.Type.IsValid() {
		verr.addShift(RuleInvalidValue, fmt.Sprintf("班次类型 %q 不合法", s.Type))
	}
	if w := WindowOf(s); !w.Valid() {
		verr.addShift(RuleShiftWindow, fmt.Sprintf("时间段 %s 不合法，开始时间必须早于结束时间且不能跨天", w))
	}

	if len(s.Drivers) == 0 {
		verr.addShift(RuleDriverRequired, "每个班次至少需要一名司机")
	}
	for _, d := range s.Drivers {
		if !d.Role.IsValid() {
			verr.addShift(RuleInvalidValue, fmt.Sprintf("司机 %d 的角色 %q 不合法", d.DriverID, d.Role))
		}
	}
	for _, a := range s.Assistants {
		if !a.Position.IsValid() {
			verr.addShift(RuleInvalidValue, fmt.Sprintf("乘务员 %d 的岗位 %q 不合法", a.AssistantID, a.Position))
		}
	}

	for _, id := range duplicates(s.DriverIDs()) {
		verr.addShift(RuleDuplicateCrewMember, fmt.Sprintf("司机 %d 被重复指派", id))
	}
	for _, id := range duplicates(s.AssistantIDs()) {
		verr.addShift(RuleDuplicateCrewMember, fmt.Sprintf("乘务员 %d 被重复指派", id))
	}
}
