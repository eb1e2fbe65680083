package domain

import (
	"slices"
	"time"
)

type ShiftType string

const (
	ShiftTypeMorning   ShiftType = "morning"
	ShiftTypeAfternoon ShiftType = "afternoon"
	ShiftTypeNight     ShiftType = "night"
	ShiftTypeFull      ShiftType = "full"
)

func (t ShiftType) IsValid() bool {
	switch t {
	case ShiftTypeMorning, ShiftTypeAfternoon, ShiftTypeNight, ShiftTypeFull:
		return true
	}
	return false
}

func (t *ShiftType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, t, "班次类型")
}

func ParseShiftType(s string) (ShiftType, error) {
	return parseEnum[ShiftType]("班次类型", s)
}

type DriverRole string

const (
	DriverRolePrimary DriverRole = "primary"
	DriverRoleBackup  DriverRole = "backup"
)

func (r DriverRole) IsValid() bool {
	switch r {
	case DriverRolePrimary, DriverRoleBackup:
		return true
	}
	return false
}

func (r *DriverRole) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, r, "司机角色")
}

func ParseDriverRole(s string) (DriverRole, error) {
	return parseEnum[DriverRole]("司机角色", s)
}

type AssistantPosition string

const (
	AssistantPositionUpperDeck AssistantPosition = "upper_deck"
	AssistantPositionLowerDeck AssistantPosition = "lower_deck"
	AssistantPositionGeneral   AssistantPosition = "general"
)

func (p AssistantPosition) IsValid() bool {
	switch p {
	case AssistantPositionUpperDeck, AssistantPositionLowerDeck, AssistantPositionGeneral:
		return true
	}
	return false
}

func (p *AssistantPosition) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, p, "乘务员岗位")
}

func ParseAssistantPosition(s string) (AssistantPosition, error) {
	return parseEnum[AssistantPosition]("乘务员岗位", s)
}

type ShiftDriver struct {
	DriverID int64      `json:"driverID"`
	Role     DriverRole `json:"role"`
}

type ShiftAssistant struct {
	AssistantID int64             `json:"assistantID"`
	Position    AssistantPosition `json:"position"`
}

type Shift struct {
	ID         int64            `json:"id"`
	VehicleID  int64            `json:"vehicleID"`
	Date       Date             `json:"date"`
	StartTime  TimeOfDay        `json:"startTime"`
	EndTime    TimeOfDay        `json:"endTime"`
	Type       ShiftType        `json:"shiftType"`
	State      ShiftState       `json:"state"`
	Notes      string           `json:"notes"`
	Drivers    []ShiftDriver    `json:"drivers"`
	Assistants []ShiftAssistant `json:"assistants"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	Version    int32            `json:"-"`
}

func (s *Shift) DriverIDs() []int64 {
	ids := make([]int64, 0, len(s.Drivers))
	for _, d := range s.Drivers {
		ids = append(ids, d.DriverID)
	}
	return ids
}

func (s *Shift) AssistantIDs() []int64 {
	ids := make([]int64, 0, len(s.Assistants))
	for _, a := range s.Assistants {
		ids = append(ids, a.AssistantID)
	}
	return ids
}

func (s *Shift) HasDriver(driverID int64) bool {
	return slices.Contains(s.DriverIDs(), driverID)
}

func (s *Shift) HasAssistant(assistantID int64) bool {
	return slices.Contains(s.AssistantIDs(), assistantID)
}

// Clone 返回一份不与原班次共享乘务人员切片的副本
func (s *Shift) Clone() *Shift {
	c := *s
	c.Drivers = slices.Clone(s.Drivers)
	c.Assistants = slices.Clone(s.Assistants)
	return &c
}

// ShiftFilter 中为 nil 的字段表示不过滤
type ShiftFilter struct {
	From        *Date
	To          *Date
	VehicleID   *int64
	DriverID    *int64
	AssistantID *int64
	State       *ShiftState
}

func (f *ShiftFilter) Match(s *Shift) bool {
	if f.From != nil && s.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && s.Date.After(*f.To) {
		return false
	}
	if f.VehicleID != nil && s.VehicleID != *f.VehicleID {
		return false
	}
	if f.DriverID != nil && !s.HasDriver(*f.DriverID) {
		return false
	}
	if f.AssistantID != nil && !s.HasAssistant(*f.AssistantID) {
		return false
	}
	if f.State != nil && s.State != *f.State {
		return false
	}
	return true
}
