package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

var today = domain.NewDate(2025, time.June, 1)

func TestRandomSeeding(t *testing.T) {
	store := repository.NewMemory()

	assert.Equal(t, 5, Vehicles(store, 5, today))
	drivers, assistants := Staff(store, 12, "fleet.example.com", today)
	assert.Equal(t, 12, drivers+assistants)

	if drivers+assistants > 0 {
		n, err := Leaves(store, 4, today, 7)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	}

	if drivers == 0 {
		t.Skip("没有生成司机")
	}

	created, rejected, err := Shifts(context.Background(), store, scheduler.New(store), today, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, created+rejected, 15)

	shifts, err := store.ListShifts(context.Background(), domain.ShiftFilter{})
	require.NoError(t, err)
	assert.Len(t, shifts, created)

	// 同一名司机同一天最多只有一个班次
	seen := map[string]bool{}
	for _, s := range shifts {
		for _, id := range s.DriverIDs() {
			key := fmt.Sprintf("%s/%d", s.Date, id)
			assert.False(t, seen[key])
			seen[key] = true
		}
	}
}

func TestShiftsRequiresVehiclesAndDrivers(t *testing.T) {
	store := repository.NewMemory()
	_, _, err := Shifts(context.Background(), store, scheduler.New(store), today, 1)
	assert.Error(t, err)

	_, err = Leaves(store, 1, today, 1)
	assert.Error(t, err)
}

const roster = `类型,姓名,工号,邮箱,车牌,车型,驾照类型,到期日
车辆,,,,粤A10001,double_deck,,2026-01-31
司机,王伟,ww0001,wangwei@fleet.example.com,,,A1,2027-05-01
乘务员,李芳,,,,,,
司机,赵敏,zm0003,,,,B1,不是日期
未知,,,,,,,
`

func TestImportRoster(t *testing.T) {
	store := repository.NewMemory()

	n, err := ImportRoster(store, strings.NewReader(roster), "fleet.example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	vehicles, err := store.GetAllVehicles()
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, domain.VehicleClassDoubleDeck, vehicles[0].Class)
	assert.Equal(t, "2026-01-31", vehicles[0].InsuranceExpiresOn.String())

	drivers, err := store.GetAllDrivers()
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "王伟", drivers[0].FullName)
	assert.Equal(t, "A1", drivers[0].LicenseClass)

	assistants, err := store.GetAllAssistants()
	require.NoError(t, err)
	require.Len(t, assistants, 1)
	assert.Equal(t, "李芳", assistants[0].FullName)
}

func TestImportRosterLeavesNoOrphanEmployee(t *testing.T) {
	store := repository.NewMemory()
	const rows = `类型,姓名,工号,邮箱,车牌,车型,驾照类型,到期日
司机,王伟,ww0001,wangwei@fleet.example.com,,,A1,
`

	store.FailNext(repository.StepInsertStaff, errors.New("connection reset"))
	n, err := ImportRoster(store, strings.NewReader(rows), "fleet.example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// 上一次失败没有留下员工记录，相同工号可以再次导入
	n, err = ImportRoster(store, strings.NewReader(rows), "fleet.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	drivers, err := store.GetAllDrivers()
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "王伟", drivers[0].FullName)
}

func TestImportRosterMissingColumn(t *testing.T) {
	_, err := ImportRoster(repository.NewMemory(), strings.NewReader("类型,姓名\n"), "fleet.example.com")
	assert.Error(t, err)
}
