package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

// TIME 列统一转成文本读取，24:00:00 也能被正确解析
const shiftColumns = `
	s.id,
	s.vehicle_id,
	s.shift_date,
	s.start_time::text,
	s.end_time::text,
	s.shift_type,
	s.state,
	s.notes,
	s.created_at,
	s.updated_at,
	s.version
`

func scanShift(row interface{ Scan(dest ...any) error }) (*domain.Shift, error) {
	shift := &domain.Shift{
		Drivers:    []domain.ShiftDriver{},
		Assistants: []domain.ShiftAssistant{},
	}
	dst := []any{
		&shift.ID,
		&shift.VehicleID,
		&shift.Date,
		&shift.StartTime,
		&shift.EndTime,
		&shift.Type,
		&shift.State,
		&shift.Notes,
		&shift.CreatedAt,
		&shift.UpdatedAt,
		&shift.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return shift, nil
}

// loadCrew 为一批班次填充司机和乘务员
func loadCrew(ctx context.Context, q querier, shifts []*domain.Shift) error {
	if len(shifts) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Shift, len(shifts))
	ids := make([]int64, 0, len(shifts))
	for _, s := range shifts {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT shift_id, driver_id, role FROM shift_drivers
		WHERE shift_id = ANY($1)
		ORDER BY shift_id, role DESC, driver_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		var d domain.ShiftDriver
		if err := rows.Scan(&shiftID, &d.DriverID, &d.Role); err != nil {
			return err
		}
		byID[shiftID].Drivers = append(byID[shiftID].Drivers, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT shift_id, assistant_id, position FROM shift_assistants
		WHERE shift_id = ANY($1)
		ORDER BY shift_id, assistant_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		var a domain.ShiftAssistant
		if err := rows.Scan(&shiftID, &a.AssistantID, &a.Position); err != nil {
			return err
		}
		byID[shiftID].Assistants = append(byID[shiftID].Assistants, a)
	}

	return rows.Err()
}

func getShift(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts s WHERE s.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	shift, err := scanShift(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classifyError(err)
	}

	if err := loadCrew(ctx, q, []*domain.Shift{shift}); err != nil {
		return nil, err
	}

	return shift, nil
}

func (r *Repository) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	return getShift(ctx, r.dbpool, id, false)
}

func (r *Repository) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]*domain.Shift, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	conds := []string{}
	args := []any{}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.From != nil {
		add("s.shift_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("s.shift_date <= $%d", *filter.To)
	}
	if filter.VehicleID != nil {
		add("s.vehicle_id = $%d", *filter.VehicleID)
	}
	if filter.DriverID != nil {
		add("EXISTS (SELECT 1 FROM shift_drivers sd WHERE sd.shift_id = s.id AND sd.driver_id = $%d)", *filter.DriverID)
	}
	if filter.AssistantID != nil {
		add("EXISTS (SELECT 1 FROM shift_assistants sa WHERE sa.shift_id = s.id AND sa.assistant_id = $%d)", *filter.AssistantID)
	}
	if filter.State != nil {
		add("s.state = $%d", *filter.State)
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts s`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY s.shift_date, s.start_time, s.id`

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := []*domain.Shift{}
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadCrew(ctx, r.dbpool, shifts); err != nil {
		return nil, err
	}

	return shifts, nil
}

// pgTx 实现 scheduler.Tx，所有查询都在同一个数据库事务中执行
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockShift(ctx context.Context, id int64) (*domain.Shift, error) {
	return getShift(ctx, t.tx, id, true)
}

func (t *pgTx) LockVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles v WHERE v.id = $1 FOR UPDATE`

	vehicle, err := scanVehicle(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classifyError(err)
	}
	return vehicle, nil
}

func (t *pgTx) LockDrivers(ctx context.Context, ids []int64) (map[int64]*domain.Driver, error) {
	drivers := make(map[int64]*domain.Driver, len(ids))
	if len(ids) == 0 {
		return drivers, nil
	}

	query := `SELECT ` + driverColumns + `
		FROM drivers d JOIN employees e ON e.id = d.employee_id
		WHERE d.id = ANY($1)
		ORDER BY d.id
		FOR UPDATE OF d
	`
	rows, err := t.tx.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers[d.ID] = d
	}

	return drivers, classifyError(rows.Err())
}

func (t *pgTx) LockAssistants(ctx context.Context, ids []int64) (map[int64]*domain.Assistant, error) {
	assistants := make(map[int64]*domain.Assistant, len(ids))
	if len(ids) == 0 {
		return assistants, nil
	}

	query := `SELECT ` + assistantColumns + `
		FROM assistants a JOIN employees e ON e.id = a.employee_id
		WHERE a.id = ANY($1)
		ORDER BY a.id
		FOR UPDATE OF a
	`
	rows, err := t.tx.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		assistants[a.ID] = a
	}

	return assistants, classifyError(rows.Err())
}

func (t *pgTx) VehicleShiftsOn(ctx context.Context, vehicleID int64, date domain.Date) ([]*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + `
		FROM shifts s
		WHERE s.vehicle_id = $1 AND s.shift_date = $2 AND s.state <> 'cancelled'
		ORDER BY s.start_time
	`
	rows, err := t.tx.QueryContext(ctx, query, vehicleID, date)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	shifts := []*domain.Shift{}
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}

	return shifts, classifyError(rows.Err())
}

func (t *pgTx) DriverShiftIDsOn(ctx context.Context, driverID int64, date domain.Date) ([]int64, error) {
	query := `
		SELECT s.id FROM shifts s
		JOIN shift_drivers sd ON sd.shift_id = s.id
		WHERE sd.driver_id = $1 AND s.shift_date = $2 AND s.state <> 'cancelled'
		ORDER BY s.id
	`
	return t.queryIDs(ctx, query, driverID, date)
}

func (t *pgTx) AssistantShiftIDsOn(ctx context.Context, assistantID int64, date domain.Date) ([]int64, error) {
	query := `
		SELECT s.id FROM shifts s
		JOIN shift_assistants sa ON sa.shift_id = s.id
		WHERE sa.assistant_id = $1 AND s.shift_date = $2 AND s.state <> 'cancelled'
		ORDER BY s.id
	`
	return t.queryIDs(ctx, query, assistantID, date)
}

func (t *pgTx) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, classifyError(rows.Err())
}

func (t *pgTx) ApprovedLeaveOn(ctx context.Context, employeeID int64, date domain.Date) (*domain.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + `
		FROM leave_requests l
		WHERE l.employee_id = $1 AND l.status = 'approved' AND l.start_date <= $2 AND l.end_date >= $2
		ORDER BY l.start_date
		LIMIT 1
	`

	leave, err := scanLeave(t.tx.QueryRowContext(ctx, query, employeeID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyError(err)
	}
	return leave, nil
}

func (t *pgTx) InsertShift(ctx context.Context, shift *domain.Shift) error {
	query := `
		INSERT INTO shifts (
			vehicle_id,
			shift_date,
			start_time,
			end_time,
			shift_type,
			state,
			notes,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, version
	`
	params := []any{
		shift.VehicleID,
		shift.Date,
		shift.StartTime,
		shift.EndTime,
		shift.Type,
		shift.State,
		shift.Notes,
		shift.CreatedAt,
		shift.UpdatedAt,
	}
	if err := t.tx.QueryRowContext(ctx, query, params...).Scan(&shift.ID, &shift.Version); err != nil {
		return classifyError(err)
	}

	return t.insertCrew(ctx, shift)
}

func (t *pgTx) UpdateShift(ctx context.Context, shift *domain.Shift) error {
	query := `
		UPDATE shifts
		SET
			vehicle_id = $1,
			shift_date = $2,
			start_time = $3,
			end_time = $4,
			shift_type = $5,
			state = $6,
			notes = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10
		RETURNING version
	`
	params := []any{
		shift.VehicleID,
		shift.Date,
		shift.StartTime,
		shift.EndTime,
		shift.Type,
		shift.State,
		shift.Notes,
		shift.UpdatedAt,
		shift.ID,
		shift.Version,
	}

	err := t.tx.QueryRowContext(ctx, query, params...).Scan(&shift.Version)
	if errors.Is(err, sql.ErrNoRows) {
		// 行已被锁定，版本不一致只可能来自并发写入
		return fmt.Errorf("%w: 班次 %d 的版本 %d 已过期", scheduler.ErrTransientWrite, shift.ID, shift.Version)
	}
	return classifyError(err)
}

func (t *pgTx) ReplaceCrew(ctx context.Context, shift *domain.Shift) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM shift_drivers WHERE shift_id = $1`, shift.ID); err != nil {
		return classifyError(err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM shift_assistants WHERE shift_id = $1`, shift.ID); err != nil {
		return classifyError(err)
	}

	return t.insertCrew(ctx, shift)
}

func (t *pgTx) insertCrew(ctx context.Context, shift *domain.Shift) error {
	for _, d := range shift.Drivers {
		query := `INSERT INTO shift_drivers (shift_id, driver_id, role) VALUES ($1, $2, $3)`
		if _, err := t.tx.ExecContext(ctx, query, shift.ID, d.DriverID, d.Role); err != nil {
			return classifyError(err)
		}
	}

	for _, a := range shift.Assistants {
		query := `INSERT INTO shift_assistants (shift_id, assistant_id, position) VALUES ($1, $2, $3)`
		if _, err := t.tx.ExecContext(ctx, query, shift.ID, a.AssistantID, a.Position); err != nil {
			return classifyError(err)
		}
	}

	return nil
}

func (t *pgTx) DeleteShift(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return classifyError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return scheduler.ErrNotFound
	}

	return nil
}
