package domain

import "time"

type ShiftEventType string

const (
	ShiftEventCreated   ShiftEventType = "shift.created"
	ShiftEventUpdated   ShiftEventType = "shift.updated"
	ShiftEventDeleted   ShiftEventType = "shift.deleted"
	ShiftEventStarted   ShiftEventType = "shift.started"
	ShiftEventCompleted ShiftEventType = "shift.completed"
	ShiftEventCancelled ShiftEventType = "shift.cancelled"
)

// ShiftEvent 发布给告警、通知、报表等下游服务，下游以此为线索重新读取班次
type ShiftEvent struct {
	Type         ShiftEventType `json:"type"`
	ShiftID      int64          `json:"shiftID"`
	VehicleID    int64          `json:"vehicleID"`
	Date         Date           `json:"date"`
	State        ShiftState     `json:"state"`
	DriverIDs    []int64        `json:"driverIDs"`
	AssistantIDs []int64        `json:"assistantIDs"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

func NewShiftEvent(t ShiftEventType, s *Shift, at time.Time) ShiftEvent {
	return ShiftEvent{
		Type:         t,
		ShiftID:      s.ID,
		VehicleID:    s.VehicleID,
		Date:         s.Date,
		State:        s.State,
		DriverIDs:    s.DriverIDs(),
		AssistantIDs: s.AssistantIDs(),
		OccurredAt:   at,
	}
}
