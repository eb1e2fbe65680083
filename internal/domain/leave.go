package domain

import "time"

type LeaveStatus string

const (
	LeaveStatusRequested LeaveStatus = "requested"
	LeaveStatusApproved  LeaveStatus = "approved"
	LeaveStatusRejected  LeaveStatus = "rejected"
)

func (s LeaveStatus) IsValid() bool {
	switch s {
	case LeaveStatusRequested, LeaveStatusApproved, LeaveStatusRejected:
		return true
	}
	return false
}

func (s *LeaveStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "请假状态")
}

type LeaveRequest struct {
	ID         int64       `json:"id"`
	EmployeeID int64       `json:"employeeID"`
	StartDate  Date        `json:"startDate"`
	EndDate    Date        `json:"endDate"`
	Status     LeaveStatus `json:"status"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"createdAt"`
	Version    int32       `json:"-"`
}

// Covers 判断请假区间（闭区间）是否包含指定日期
func (l *LeaveRequest) Covers(d Date) bool {
	return !d.Before(l.StartDate) && !d.After(l.EndDate)
}

// Blocks 只有已批准的请假才会阻止排班
func (l *LeaveRequest) Blocks(d Date) bool {
	return l.Status == LeaveStatusApproved && l.Covers(d)
}
