package domain

import "time"

type VehicleStatus string

const (
	VehicleStatusOperational    VehicleStatus = "operational"
	VehicleStatusInMaintenance  VehicleStatus = "in_maintenance"
	VehicleStatusDecommissioned VehicleStatus = "decommissioned"
	VehicleStatusInactive       VehicleStatus = "inactive"
)

func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleStatusOperational, VehicleStatusInMaintenance, VehicleStatusDecommissioned, VehicleStatusInactive:
		return true
	}
	return false
}

func (s *VehicleStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, s, "车辆状态")
}

func ParseVehicleStatus(s string) (VehicleStatus, error) {
	return parseEnum[VehicleStatus]("车辆状态", s)
}

type VehicleClass string

const (
	VehicleClassSingleDeck VehicleClass = "single_deck"
	VehicleClassDoubleDeck VehicleClass = "double_deck"
)

func (c VehicleClass) IsValid() bool {
	switch c {
	case VehicleClassSingleDeck, VehicleClassDoubleDeck:
		return true
	}
	return false
}

func (c *VehicleClass) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, c, "车辆类型")
}

func ParseVehicleClass(s string) (VehicleClass, error) {
	return parseEnum[VehicleClass]("车辆类型", s)
}

type Vehicle struct {
	ID                  int64         `json:"id"`
	PlateNumber         string        `json:"plateNumber"`
	Status              VehicleStatus `json:"status"`
	Class               VehicleClass  `json:"class"`
	InsuranceExpiresOn  *Date         `json:"insuranceExpiresOn"`  // 强制险到期日
	InspectionExpiresOn *Date         `json:"inspectionExpiresOn"` // 年检到期日
	PolicyExpiresOn     *Date         `json:"policyExpiresOn"`     // 商业险到期日
	CreatedAt           time.Time     `json:"createdAt"`
	Version             int32         `json:"-"`
}

// 双层巴士的每个班次都至少需要一名乘务员
func (v *Vehicle) RequiresAssistant() bool {
	return v.Class == VehicleClassDoubleDeck
}
