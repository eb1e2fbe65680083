package domain

import "slices"

type ShiftState string

const (
	ShiftStateScheduled  ShiftState = "scheduled"
	ShiftStateInProgress ShiftState = "in_progress"
	ShiftStateCompleted  ShiftState = "completed"
	ShiftStateCancelled  ShiftState = "cancelled"
)

func (s ShiftState) IsValid() bool {
	switch s {
	case ShiftStateScheduled, ShiftStateInProgress, ShiftStateCompleted, ShiftStateCancelled:
		return true
	}
	return false
}

func (s *ShiftState) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "班次状态")
}

func ParseShiftState(s string) (ShiftState, error) {
	return parseEnum[ShiftState]("班次状态", s)
}

// 班次状态机：scheduled -> in_progress -> completed，scheduled / in_progress -> cancelled
var shiftTransitions = map[ShiftState][]ShiftState{
	ShiftStateScheduled:  {ShiftStateInProgress, ShiftStateCancelled},
	ShiftStateInProgress: {ShiftStateCompleted, ShiftStateCancelled},
}

func (s ShiftState) CanTransitionTo(next ShiftState) bool {
	return slices.Contains(shiftTransitions[s], next)
}

func (s ShiftState) IsTerminal() bool {
	return len(shiftTransitions[s]) == 0
}

// 只有尚未开始的班次允许修改车辆、时间窗口、乘务人员或其他字段
func (s ShiftState) IsEditable() bool {
	return s == ShiftStateScheduled
}

func (s ShiftState) IsDeletable() bool {
	return s == ShiftStateScheduled
}

// 已取消的班次不再占用车辆和人员
func (s ShiftState) OccupiesResources() bool {
	return s != ShiftStateCancelled
}
