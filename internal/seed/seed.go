package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strings"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/utils"
)

// Store 由 repository.Repository 和 repository.Memory 实现
type Store interface {
	CreateVehicle(v *domain.Vehicle) error
	CreateDriverWithEmployee(e *domain.Employee, d *domain.Driver) error
	CreateAssistantWithEmployee(e *domain.Employee, a *domain.Assistant) error
	CreateLeaveRequest(l *domain.LeaveRequest) error
	GetAllVehicles() ([]*domain.Vehicle, error)
	GetAllDrivers() ([]*domain.Driver, error)
	GetAllAssistants() ([]*domain.Assistant, error)
}

func Vehicles(s Store, n int, today domain.Date) int {
	cnt := 0
	for i := 0; i < n; i++ {
		v := utils.GenerateRandomVehicle(today)
		if err := s.CreateVehicle(v); err != nil {
			slog.Error("无法插入车辆", "plateNumber", v.PlateNumber, "error", err)
			continue
		}
		cnt++
	}
	return cnt
}

// Staff 随机插入 n 名员工，大约三分之二是司机，其余是乘务员
func Staff(s Store, n int, emailDomain string, today domain.Date) (drivers int, assistants int) {
	for i := 0; i < n; i++ {
		e := utils.GenerateRandomEmployee(emailDomain)

		if rand.Intn(3) != 0 {
			if err := s.CreateDriverWithEmployee(e, utils.GenerateRandomDriver(today)); err != nil {
				slog.Error("无法插入司机", "code", e.Code, "error", err)
				continue
			}
			drivers++
		} else {
			if err := s.CreateAssistantWithEmployee(e, utils.GenerateRandomAssistant()); err != nil {
				slog.Error("无法插入乘务员", "code", e.Code, "error", err)
				continue
			}
			assistants++
		}
	}
	return drivers, assistants
}

// Leaves 为随机挑选的司机和乘务员插入 n 条请假记录
func Leaves(s Store, n int, from domain.Date, days int) (int, error) {
	drivers, err := s.GetAllDrivers()
	if err != nil {
		return 0, err
	}
	assistants, err := s.GetAllAssistants()
	if err != nil {
		return 0, err
	}

	employees := make([]int64, 0, len(drivers)+len(assistants))
	for _, d := range drivers {
		employees = append(employees, d.EmployeeID)
	}
	for _, a := range assistants {
		employees = append(employees, a.EmployeeID)
	}
	if len(employees) == 0 {
		return 0, errors.New("没有可以请假的员工")
	}

	cnt := 0
	for i := 0; i < n; i++ {
		l := utils.GenerateRandomLeave(employees[rand.Intn(len(employees))], from, days)
		if err := s.CreateLeaveRequest(l); err != nil {
			slog.Error("无法插入请假记录", "employeeID", l.EmployeeID, "error", err)
			continue
		}
		cnt++
	}
	return cnt, nil
}

// Shifts 通过排班引擎为每辆车每天尝试安排一个班次，未通过校验的候选班次只计数不插入
func Shifts(ctx context.Context, s Store, sched *scheduler.Scheduler, from domain.Date, days int) (created int, rejected int, err error) {
	vehicles, err := s.GetAllVehicles()
	if err != nil {
		return 0, 0, err
	}
	drivers, err := s.GetAllDrivers()
	if err != nil {
		return 0, 0, err
	}
	assistants, err := s.GetAllAssistants()
	if err != nil {
		return 0, 0, err
	}
	if len(vehicles) == 0 || len(drivers) == 0 {
		return 0, 0, errors.New("请先插入车辆和司机")
	}

	for day := 0; day < days; day++ {
		date := from.AddDays(day)
		// 同一天内不重复使用同一名司机或乘务员
		driverPool := shuffled(drivers)
		assistantPool := shuffled(assistants)

		for _, v := range vehicles {
			if len(driverPool) == 0 {
				break
			}

			shiftType, start, end := utils.GenerateRandomShiftSlot()
			c := &scheduler.Candidate{
				VehicleID: v.ID,
				Date:      date,
				StartTime: start,
				EndTime:   end,
				Type:      shiftType,
				Notes:     utils.GenerateShiftNotes(v.PlateNumber, shiftType),
				Drivers:   []domain.ShiftDriver{{DriverID: driverPool[0].ID, Role: domain.DriverRolePrimary}},
			}
			driverPool = driverPool[1:]

			if v.RequiresAssistant() && len(assistantPool) > 0 {
				c.Assistants = []domain.ShiftAssistant{{AssistantID: assistantPool[0].ID, Position: domain.AssistantPositionUpperDeck}}
				assistantPool = assistantPool[1:]
			}

			if _, err := sched.CreateShift(ctx, c); err != nil {
				var verr *scheduler.ValidationError
				if !errors.As(err, &verr) {
					return created, rejected, err
				}
				slog.Debug("候选班次未通过校验", "vehicleID", v.ID, "date", date, "rules", verr.Rules())
				rejected++
				continue
			}
			created++
		}
	}

	return created, rejected, nil
}

func shuffled[T any](src []T) []T {
	dst := slices.Clone(src)
	rand.Shuffle(len(dst), func(i, j int) { dst[i], dst[j] = dst[j], dst[i] })
	return dst
}

var rosterHeaders = []string{"类型", "姓名", "工号", "邮箱", "车牌", "车型", "驾照类型", "到期日"}

// ImportRoster 导入人事系统导出的花名册，每一行是一辆车、一名司机或一名乘务员
func ImportRoster(s Store, r io.Reader, emailDomain string) (int, error) {
	reader := csv.NewReader(r)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("读取表头失败: %w", err)
	}
	for _, h := range rosterHeaders {
		if !slices.Contains(headers, h) {
			return 0, fmt.Errorf("没有找到列 %s", h)
		}
	}

	cnt := 0
	line := 1
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return cnt, fmt.Errorf("读取文件失败: %w", err)
		}
		line++

		record := make(map[string]string)
		for i, value := range row {
			record[headers[i]] = strings.TrimSpace(value)
		}

		if err := importRecord(s, record, emailDomain); err != nil {
			slog.Error("导入花名册记录失败", "line", line, "error", err)
			continue
		}
		cnt++
	}

	return cnt, nil
}

func importRecord(s Store, record map[string]string, emailDomain string) error {
	var expiresOn *domain.Date
	if v := record["到期日"]; v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			return err
		}
		expiresOn = &d
	}

	switch record["类型"] {
	case "车辆":
		class, err := domain.ParseVehicleClass(record["车型"])
		if err != nil {
			return err
		}
		return s.CreateVehicle(&domain.Vehicle{
			PlateNumber:         record["车牌"],
			Status:              domain.VehicleStatusOperational,
			Class:               class,
			InsuranceExpiresOn:  expiresOn,
			InspectionExpiresOn: expiresOn,
		})
	case "司机", "乘务员":
		e := &domain.Employee{
			Code:     record["工号"],
			FullName: record["姓名"],
			Email:    record["邮箱"],
		}
		if e.Code == "" {
			e.Code = utils.GenerateEmployeeCode(e.FullName)
		}
		if e.Email == "" {
			e.Email = utils.GenerateEmailLocalPart(e.FullName, e.Code) + "@" + emailDomain
		}
		// 员工和司机/乘务员在同一个事务中插入
		if record["类型"] == "乘务员" {
			return s.CreateAssistantWithEmployee(e, &domain.Assistant{Status: domain.StaffStatusActive})
		}
		return s.CreateDriverWithEmployee(e, &domain.Driver{
			LicenseClass:     record["驾照类型"],
			LicenseExpiresOn: expiresOn,
			FitToDrive:       true,
			Status:           domain.StaffStatusActive,
		})
	default:
		return fmt.Errorf("未知的类型 %q", record["类型"])
	}
}
