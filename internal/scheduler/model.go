package scheduler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

type Rule string

const (
	// 班次本身
	RuleShiftWindow         Rule = "shift_window"
	RuleDriverRequired      Rule = "driver_required"
	RuleDuplicateCrewMember Rule = "duplicate_crew_member"
	RuleInvalidValue        Rule = "invalid_value"

	// 车辆
	RuleVehicleNotOperational    Rule = "vehicle_not_operational"
	RuleVehicleInsuranceExpired  Rule = "vehicle_insurance_expired"
	RuleVehicleInspectionExpired Rule = "vehicle_inspection_expired"
	RuleVehicleOverlap           Rule = "vehicle_overlap"
	RuleVehicleRequiresAssistant Rule = "vehicle_requires_assistant"

	// 司机
	RuleDriverNotFound       Rule = "driver_not_found"
	RuleDriverOnLeave        Rule = "driver_on_leave"
	RuleDriverInactive       Rule = "driver_inactive"
	RuleDriverUnfit          Rule = "driver_unfit"
	RuleDriverLicenseExpired Rule = "driver_license_expired"
	RuleDriverDoubleBooked   Rule = "driver_double_booked"

	// 乘务员
	RuleAssistantNotFound     Rule = "assistant_not_found"
	RuleAssistantOnLeave      Rule = "assistant_on_leave"
	RuleAssistantInactive     Rule = "assistant_inactive"
	RuleAssistantDoubleBooked Rule = "assistant_double_booked"
)

type Violation struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// ValidationError 按目标（班次 / 车辆 / 具体的司机 / 具体的乘务员）和规则组织全部校验失败项
type ValidationError struct {
	Shift      []Violation           `json:"shift,omitempty"`
	Vehicle    []Violation           `json:"vehicle,omitempty"`
	Drivers    map[int64][]Violation `json:"drivers,omitempty"`
	Assistants map[int64][]Violation `json:"assistants,omitempty"`
}

func newValidationError() *ValidationError {
	return &ValidationError{
		Drivers:    map[int64][]Violation{},
		Assistants: map[int64][]Violation{},
	}
}

func (e *ValidationError) Error() string {
	rules := e.Rules()
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = string(r)
	}
	return fmt.Sprintf("班次校验未通过（%d 项）: %s", e.Count(), strings.Join(parts, ", "))
}

func (e *ValidationError) Count() int {
	n := len(e.Shift) + len(e.Vehicle)
	for _, vs := range e.Drivers {
		n += len(vs)
	}
	for _, vs := range e.Assistants {
		n += len(vs)
	}
	return n
}

func (e *ValidationError) Empty() bool {
	return e.Count() == 0
}

func (e *ValidationError) Has(rule Rule) bool {
	return slices.Contains(e.Rules(), rule)
}

// Rules 返回去重并排序后的规则列表
func (e *ValidationError) Rules() []Rule {
	seen := map[Rule]struct{}{}
	add := func(vs []Violation) {
		for _, v := range vs {
			seen[v.Rule] = struct{}{}
		}
	}
	add(e.Shift)
	add(e.Vehicle)
	for _, vs := range e.Drivers {
		add(vs)
	}
	for _, vs := range e.Assistants {
		add(vs)
	}

	rules := make([]Rule, 0, len(seen))
	for r := range seen {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })
	return rules
}

func (e *ValidationError) addShift(rule Rule, msg string) {
	e.Shift = append(e.Shift, Violation{Rule: rule, Message: msg})
}

func (e *ValidationError) addVehicle(rule Rule, msg string) {
	e.Vehicle = append(e.Vehicle, Violation{Rule: rule, Message: msg})
}

func (e *ValidationError) addDriver(id int64, rule Rule, msg string) {
	e.Drivers[id] = append(e.Drivers[id], Violation{Rule: rule, Message: msg})
}

func (e *ValidationError) addAssistant(id int64, rule Rule, msg string) {
	e.Assistants[id] = append(e.Assistants[id], Violation{Rule: rule, Message: msg})
}

// Window 是同一天之内的半开区间 [Start, End)
type Window struct {
	Start domain.TimeOfDay
	End   domain.TimeOfDay
}

func WindowOf(s *domain.Shift) Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

func (w Window) Valid() bool {
	return w.Start >= 0 && w.End <= domain.EndOfDay && w.Start < w.End
}

// Overlaps 端点相接不算重叠
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && other.Start < w.End
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start, w.End)
}

type Candidate struct {
	VehicleID  int64
	Date       domain.Date
	StartTime  domain.TimeOfDay
	EndTime    domain.TimeOfDay
	Type       domain.ShiftType
	Notes      string
	Drivers    []domain.ShiftDriver
	Assistants []domain.ShiftAssistant
}

func (c *Candidate) shift() *domain.Shift {
	return &domain.Shift{
		VehicleID:  c.VehicleID,
		Date:       c.Date,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		Type:       c.Type,
		State:      domain.ShiftStateScheduled,
		Notes:      c.Notes,
		Drivers:    slices.Clone(c.Drivers),
		Assistants: slices.Clone(c.Assistants),
	}
}

// Patch 中为 nil 的字段保持不变
type Patch struct {
	VehicleID  *int64
	Date       *domain.Date
	StartTime  *domain.TimeOfDay
	EndTime    *domain.TimeOfDay
	Type       *domain.ShiftType
	Notes      *string
	Drivers    *[]domain.ShiftDriver
	Assistants *[]domain.ShiftAssistant
}

// scope 决定一次校验需要重新检查哪些部分
type scope struct {
	vehicle    bool // 车辆本身的状态和证件
	overlap    bool
	drivers    bool
	assistants bool
	fields     bool // 只涉及备注、班次类型等不需要校验的字段
}

var fullScope = scope{vehicle: true, overlap: true, drivers: true, assistants: true}

func (s scope) needsValidation() bool {
	return s.vehicle || s.overlap || s.drivers || s.assistants
}

func (s scope) changed() bool {
	return s.needsValidation() || s.fields
}

// applyTo 将修改写入 shift，并返回实际发生变化的部分
func (p *Patch) applyTo(shift *domain.Shift) scope {
	var sc scope

	if p.VehicleID != nil && *p.VehicleID != shift.VehicleID {
		shift.VehicleID = *p.VehicleID
		sc.vehicle, sc.overlap, sc.assistants = true, true, true
	}
	if p.Date != nil && *p.Date != shift.Date {
		// 日期变化会影响证件有效期、请假和同日唯一性，需要全部重新校验
		shift.Date = *p.Date
		sc = fullScope
	}
	if p.StartTime != nil && *p.StartTime != shift.StartTime {
		shift.StartTime = *p.StartTime
		sc.overlap = true
	}
	if p.EndTime != nil && *p.EndTime != shift.EndTime {
		shift.EndTime = *p.EndTime
		sc.overlap = true
	}
	if p.Drivers != nil && !slices.Equal(*p.Drivers, shift.Drivers) {
		shift.Drivers = slices.Clone(*p.Drivers)
		sc.drivers = true
	}
	if p.Assistants != nil && !slices.Equal(*p.Assistants, shift.Assistants) {
		shift.Assistants = slices.Clone(*p.Assistants)
		sc.assistants = true
	}
	if p.Type != nil && *p.Type != shift.Type {
		shift.Type = *p.Type
		sc.fields = true
	}
	if p.Notes != nil && *p.Notes != shift.Notes {
		shift.Notes = *p.Notes
		sc.fields = true
	}

	return sc
}
