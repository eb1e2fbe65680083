package domain

import "time"

type StaffStatus string

const (
	StaffStatusActive     StaffStatus = "active"
	StaffStatusOnLeave    StaffStatus = "on_leave"
	StaffStatusSuspended  StaffStatus = "suspended"
	StaffStatusTerminated StaffStatus = "terminated"
)

func (s StaffStatus) IsValid() bool {
	switch s {
	case StaffStatusActive, StaffStatusOnLeave, StaffStatusSuspended, StaffStatusTerminated:
		return true
	}
	return false
}

func (s *StaffStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "人员状态")
}

func ParseStaffStatus(s string) (StaffStatus, error) {
	return parseEnum[StaffStatus]("人员状态", s)
}

type Employee struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int32     `json:"-"`
}

type Driver struct {
	ID               int64       `json:"id"`
	EmployeeID       int64       `json:"employeeID"`
	FullName         string      `json:"fullName"` // 来自关联的员工记录
	LicenseClass     string      `json:"licenseClass"`
	LicenseExpiresOn *Date       `json:"licenseExpiresOn"`
	FitToDrive       bool        `json:"fitToDrive"`
	Status           StaffStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
	Version          int32       `json:"-"`
}

type Assistant struct {
	ID         int64       `json:"id"`
	EmployeeID int64       `json:"employeeID"`
	FullName   string      `json:"fullName"`
	Status     StaffStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	Version    int32       `json:"-"`
}
