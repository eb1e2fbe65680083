package utils

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "庆",
	"建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

// GenerateEmployeeCode 取姓名拼音的首字母加上四位数字，例如 "zw0421"
func GenerateEmployeeCode(chineseName string) string {
	var sb strings.Builder
	for _, p := range pinyin.LazyConvert(chineseName, nil) {
		sb.WriteByte(p[0])
	}
	for i := 0; i < 4; i++ {
		sb.WriteByte(digits[rand.Intn(len(digits))])
	}
	return sb.String()
}

// GenerateEmailLocalPart 使用完整拼音，重名时依靠员工编号区分
func GenerateEmailLocalPart(chineseName, code string) string {
	return strings.Join(pinyin.LazyConvert(chineseName, nil), "") + "." + code
}

func GenerateRandomEmployee(emailDomainName string) *domain.Employee {
	fullName := GenerateRandomChineseName()
	code := GenerateEmployeeCode(fullName)

	return &domain.Employee{
		Code:     code,
		FullName: fullName,
		Email:    GenerateEmailLocalPart(fullName, code) + "@" + emailDomainName,
	}
}

var plateProvinces = []string{"粤", "京", "沪", "苏", "浙"}
var plateLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ" // 车牌不使用 I 和 O

func GenerateRandomPlateNumber() string {
	plate := plateProvinces[rand.Intn(len(plateProvinces))] + string(plateLetters[rand.Intn(len(plateLetters))])
	for i := 0; i < 5; i++ {
		if rand.Intn(4) == 0 {
			plate += string(plateLetters[rand.Intn(len(plateLetters))])
		} else {
			plate += string(digits[rand.Intn(len(digits))])
		}
	}
	return plate
}

// randomExpiry 大部分证件在未来一年内有效，少量已经过期
func randomExpiry(today domain.Date) *domain.Date {
	offset := rand.Intn(365) + 1
	if rand.Intn(10) == 0 {
		offset = -rand.Intn(30) - 1
	}
	d := today.AddDays(offset)
	return &d
}

func GenerateRandomVehicle(today domain.Date) *domain.Vehicle {
	v := &domain.Vehicle{
		PlateNumber:         GenerateRandomPlateNumber(),
		Status:              domain.VehicleStatusOperational,
		Class:               domain.VehicleClassSingleDeck,
		InsuranceExpiresOn:  randomExpiry(today),
		InspectionExpiresOn: randomExpiry(today),
		PolicyExpiresOn:     randomExpiry(today),
	}

	if rand.Intn(3) == 0 {
		v.Class = domain.VehicleClassDoubleDeck
	}
	switch rand.Intn(10) {
	case 0:
		v.Status = domain.VehicleStatusInMaintenance
	case 1:
		v.Status = domain.VehicleStatusInactive
	}

	return v
}

var licenseClasses = []string{"A1", "A3", "B1"}

func randomStaffStatus() domain.StaffStatus {
	switch rand.Intn(20) {
	case 0:
		return domain.StaffStatusOnLeave
	case 1:
		return domain.StaffStatusSuspended
	}
	return domain.StaffStatusActive
}

// GenerateRandomDriver 不设置 EmployeeID，由插入员工时一并填写
func GenerateRandomDriver(today domain.Date) *domain.Driver {
	return &domain.Driver{
		LicenseClass:     licenseClasses[rand.Intn(len(licenseClasses))],
		LicenseExpiresOn: randomExpiry(today),
		FitToDrive:       rand.Intn(15) != 0,
		Status:           randomStaffStatus(),
	}
}

func GenerateRandomAssistant() *domain.Assistant {
	return &domain.Assistant{
		Status: randomStaffStatus(),
	}
}

var leaveReasons = []string{"年假", "病假", "事假", "培训"}

// GenerateRandomLeave 在 [from, from+days) 内随机生成一段请假，约三分之二已批准
func GenerateRandomLeave(employeeID int64, from domain.Date, days int) *domain.LeaveRequest {
	start := from.AddDays(rand.Intn(days))
	l := &domain.LeaveRequest{
		EmployeeID: employeeID,
		StartDate:  start,
		EndDate:    start.AddDays(rand.Intn(3)),
		Status:     domain.LeaveStatusApproved,
		Reason:     leaveReasons[rand.Intn(len(leaveReasons))],
	}

	switch rand.Intn(6) {
	case 0:
		l.Status = domain.LeaveStatusRequested
	case 1:
		l.Status = domain.LeaveStatusRejected
	}

	return l
}

type shiftSlot struct {
	shiftType domain.ShiftType
	start     domain.TimeOfDay
	end       domain.TimeOfDay
}

var shiftSlots = []shiftSlot{
	{domain.ShiftTypeMorning, domain.NewTimeOfDay(6, 0, 0), domain.NewTimeOfDay(12, 0, 0)},
	{domain.ShiftTypeAfternoon, domain.NewTimeOfDay(12, 0, 0), domain.NewTimeOfDay(18, 0, 0)},
	{domain.ShiftTypeNight, domain.NewTimeOfDay(18, 0, 0), domain.EndOfDay},
	{domain.ShiftTypeFull, domain.NewTimeOfDay(7, 0, 0), domain.NewTimeOfDay(19, 0, 0)},
}

// GenerateRandomShiftSlot 返回一个常用的班次类型及其时间段
func GenerateRandomShiftSlot() (domain.ShiftType, domain.TimeOfDay, domain.TimeOfDay) {
	s := shiftSlots[rand.Intn(len(shiftSlots))]
	return s.shiftType, s.start, s.end
}

func GenerateShiftNotes(plate string, t domain.ShiftType) string {
	return fmt.Sprintf("%s %s 班", plate, t)
}
