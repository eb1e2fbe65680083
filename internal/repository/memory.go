package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

// Memory 是没有数据库时使用的内存存储，事务期间持有全局锁，fn 出错时恢复到事务开始前的快照
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	data     memData
	failures map[string][]error // 写入步骤 -> 待注入的错误
}

type memData struct {
	vehicles   map[int64]*domain.Vehicle
	employees  map[int64]*domain.Employee
	drivers    map[int64]*domain.Driver
	assistants map[int64]*domain.Assistant
	leaves     map[int64]*domain.LeaveRequest
	shifts     map[int64]*domain.Shift
}

// 可以注入错误的写入步骤
const (
	StepInsertShift = "insert_shift"
	StepInsertCrew  = "insert_crew"
	StepUpdateShift = "update_shift"
	StepReplaceCrew = "replace_crew"
	StepDeleteShift = "delete_shift"
	StepInsertStaff = "insert_staff" // 插入司机或乘务员
)

func NewMemory() *Memory {
	return &Memory{
		data: memData{
			vehicles:   map[int64]*domain.Vehicle{},
			employees:  map[int64]*domain.Employee{},
			drivers:    map[int64]*domain.Driver{},
			assistants: map[int64]*domain.Assistant{},
			leaves:     map[int64]*domain.LeaveRequest{},
			shifts:     map[int64]*domain.Shift{},
		},
		failures: map[string][]error{},
	}
}

// FailNext 让接下来对 step 的几次写入依次返回 errs
func (m *Memory) FailNext(step string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[step] = append(m.failures[step], errs...)
}

func (m *Memory) fail(step string) error {
	queue := m.failures[step]
	if len(queue) == 0 {
		return nil
	}
	m.failures[step] = queue[1:]
	return queue[0]
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) WithinTx(ctx context.Context, fn func(tx scheduler.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 只有班次会在事务中被修改
	snapshot := make(map[int64]*domain.Shift, len(m.data.shifts))
	for id, s := range m.data.shifts {
		snapshot[id] = s.Clone()
	}
	nextID := m.nextID

	if err := fn(&memTx{m: m}); err != nil {
		m.data.shifts = snapshot
		m.nextID = nextID
		return err
	}

	return nil
}

func (m *Memory) GetShift(_ context.Context, id int64) (*domain.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.data.shifts[id]
	if !ok {
		return nil, scheduler.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) ListShifts(_ context.Context, filter domain.ShiftFilter) ([]*domain.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shifts := []*domain.Shift{}
	for _, s := range m.data.shifts {
		if filter.Match(s) {
			shifts = append(shifts, s.Clone())
		}
	}

	sort.Slice(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})

	return shifts, nil
}

func (m *Memory) GetAllVehicles() ([]*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedCopies(m.data.vehicles, func(v *domain.Vehicle) int64 { return v.ID }), nil
}

func (m *Memory) GetAllDrivers() ([]*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedCopies(m.data.drivers, func(d *domain.Driver) int64 { return d.ID }), nil
}

func (m *Memory) GetAllAssistants() ([]*domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedCopies(m.data.assistants, func(a *domain.Assistant) int64 { return a.ID }), nil
}

func sortedCopies[T any](src map[int64]*T, id func(*T) int64) []*T {
	out := make([]*T, 0, len(src))
	for _, v := range src {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func (m *Memory) CreateVehicle(v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.data.vehicles {
		if existing.PlateNumber == v.PlateNumber {
			return fmt.Errorf("车牌号 %s 已存在", v.PlateNumber)
		}
	}

	v.ID, v.CreatedAt, v.Version = m.id(), time.Now(), 1
	c := *v
	m.data.vehicles[v.ID] = &c
	return nil
}

func (m *Memory) CreateEmployee(e *domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertEmployee(e)
}

func (m *Memory) insertEmployee(e *domain.Employee) error {
	for _, existing := range m.data.employees {
		if existing.Code == e.Code {
			return fmt.Errorf("工号 %s 已存在", e.Code)
		}
		if existing.Email == e.Email {
			return fmt.Errorf("邮箱 %s 已存在", e.Email)
		}
	}

	e.ID, e.CreatedAt, e.Version = m.id(), time.Now(), 1
	c := *e
	m.data.employees[e.ID] = &c
	return nil
}

// CreateDriverWithEmployee 插入司机失败时撤销员工记录
func (m *Memory) CreateDriverWithEmployee(e *domain.Employee, d *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.insertEmployee(e); err != nil {
		return err
	}
	d.EmployeeID = e.ID
	if err := m.insertDriver(d); err != nil {
		delete(m.data.employees, e.ID)
		return err
	}
	return nil
}

func (m *Memory) CreateAssistantWithEmployee(e *domain.Employee, a *domain.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.insertEmployee(e); err != nil {
		return err
	}
	a.EmployeeID = e.ID
	if err := m.insertAssistant(a); err != nil {
		delete(m.data.employees, e.ID)
		return err
	}
	return nil
}

func (m *Memory) CreateDriver(d *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertDriver(d)
}

func (m *Memory) insertDriver(d *domain.Driver) error {
	if err := m.fail(StepInsertStaff); err != nil {
		return err
	}
	e, ok := m.data.employees[d.EmployeeID]
	if !ok {
		return fmt.Errorf("员工 %d 不存在", d.EmployeeID)
	}

	d.ID, d.FullName, d.CreatedAt, d.Version = m.id(), e.FullName, time.Now(), 1
	c := *d
	m.data.drivers[d.ID] = &c
	return nil
}

func (m *Memory) CreateAssistant(a *domain.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertAssistant(a)
}

func (m *Memory) insertAssistant(a *domain.Assistant) error {
	if err := m.fail(StepInsertStaff); err != nil {
		return err
	}
	e, ok := m.data.employees[a.EmployeeID]
	if !ok {
		return fmt.Errorf("员工 %d 不存在", a.EmployeeID)
	}

	a.ID, a.FullName, a.CreatedAt, a.Version = m.id(), e.FullName, time.Now(), 1
	c := *a
	m.data.assistants[a.ID] = &c
	return nil
}

func (m *Memory) CreateLeaveRequest(l *domain.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.employees[l.EmployeeID]; !ok {
		return fmt.Errorf("员工 %d 不存在", l.EmployeeID)
	}

	l.ID, l.CreatedAt, l.Version = m.id(), time.Now(), 1
	c := *l
	m.data.leaves[l.ID] = &c
	return nil
}

// memTx 的方法在 Memory.mu 已被持有时调用
type memTx struct {
	m *Memory
}

func (t *memTx) LockVehicle(_ context.Context, id int64) (*domain.Vehicle, error) {
	v, ok := t.m.data.vehicles[id]
	if !ok {
		return nil, scheduler.ErrNotFound
	}
	c := *v
	return &c, nil
}

func (t *memTx) LockDrivers(_ context.Context, ids []int64) (map[int64]*domain.Driver, error) {
	out := make(map[int64]*domain.Driver, len(ids))
	for _, id := range ids {
		if d, ok := t.m.data.drivers[id]; ok {
			c := *d
			out[id] = &c
		}
	}
	return out, nil
}

func (t *memTx) LockAssistants(_ context.Context, ids []int64) (map[int64]*domain.Assistant, error) {
	out := make(map[int64]*domain.Assistant, len(ids))
	for _, id := range ids {
		if a, ok := t.m.data.assistants[id]; ok {
			c := *a
			out[id] = &c
		}
	}
	return out, nil
}

func (t *memTx) LockShift(_ context.Context, id int64) (*domain.Shift, error) {
	s, ok := t.m.data.shifts[id]
	if !ok {
		return nil, scheduler.ErrNotFound
	}
	return s.Clone(), nil
}

func (t *memTx) VehicleShiftsOn(_ context.Context, vehicleID int64, date domain.Date) ([]*domain.Shift, error) {
	out := []*domain.Shift{}
	for _, s := range t.m.data.shifts {
		if s.VehicleID == vehicleID && s.Date == date && s.State.OccupiesResources() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (t *memTx) DriverShiftIDsOn(_ context.Context, driverID int64, date domain.Date) ([]int64, error) {
	return t.shiftIDsOn(date, func(s *domain.Shift) bool { return s.HasDriver(driverID) }), nil
}

func (t *memTx) AssistantShiftIDsOn(_ context.Context, assistantID int64, date domain.Date) ([]int64, error) {
	return t.shiftIDsOn(date, func(s *domain.Shift) bool { return s.HasAssistant(assistantID) }), nil
}

func (t *memTx) shiftIDsOn(date domain.Date, match func(*domain.Shift) bool) []int64 {
	ids := []int64{}
	for _, s := range t.m.data.shifts {
		if s.Date == date && s.State.OccupiesResources() && match(s) {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTx) ApprovedLeaveOn(_ context.Context, employeeID int64, date domain.Date) (*domain.LeaveRequest, error) {
	var found *domain.LeaveRequest
	for _, l := range t.m.data.leaves {
		if l.EmployeeID != employeeID || !l.Blocks(date) {
			continue
		}
		if found == nil || l.StartDate.Before(found.StartDate) {
			found = l
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

func (t *memTx) InsertShift(_ context.Context, shift *domain.Shift) error {
	if err := t.m.fail(StepInsertShift); err != nil {
		return err
	}

	shift.ID = t.m.id()
	shift.Version = 1
	t.m.data.shifts[shift.ID] = &domain.Shift{
		ID:        shift.ID,
		VehicleID: shift.VehicleID,
		Date:      shift.Date,
		StartTime: shift.StartTime,
		EndTime:   shift.EndTime,
		Type:      shift.Type,
		State:     shift.State,
		Notes:     shift.Notes,
		CreatedAt: shift.CreatedAt,
		UpdatedAt: shift.UpdatedAt,
		Version:   shift.Version,
	}

	// 和 Postgres 一样，班次行和乘务人员分两步写入
	if err := t.m.fail(StepInsertCrew); err != nil {
		return err
	}
	t.setCrew(shift)
	return nil
}

func (t *memTx) UpdateShift(_ context.Context, shift *domain.Shift) error {
	if err := t.m.fail(StepUpdateShift); err != nil {
		return err
	}

	stored, ok := t.m.data.shifts[shift.ID]
	if !ok {
		return scheduler.ErrNotFound
	}
	if stored.Version != shift.Version {
		return fmt.Errorf("%w: 班次 %d 的版本 %d 已过期", scheduler.ErrTransientWrite, shift.ID, shift.Version)
	}

	shift.Version++
	next := shift.Clone()
	next.Drivers, next.Assistants = stored.Drivers, stored.Assistants
	t.m.data.shifts[shift.ID] = next
	return nil
}

func (t *memTx) ReplaceCrew(_ context.Context, shift *domain.Shift) error {
	if err := t.m.fail(StepReplaceCrew); err != nil {
		return err
	}
	if _, ok := t.m.data.shifts[shift.ID]; !ok {
		return scheduler.ErrNotFound
	}

	t.setCrew(shift)
	return nil
}

func (t *memTx) setCrew(shift *domain.Shift) {
	stored := t.m.data.shifts[shift.ID]
	c := shift.Clone()
	stored.Drivers, stored.Assistants = c.Drivers, c.Assistants
}

func (t *memTx) DeleteShift(_ context.Context, id int64) error {
	if err := t.m.fail(StepDeleteShift); err != nil {
		return err
	}
	if _, ok := t.m.data.shifts[id]; !ok {
		return scheduler.ErrNotFound
	}

	delete(t.m.data.shifts, id)
	return nil
}
