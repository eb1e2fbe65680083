package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

const leaveColumns = `
	l.id,
	l.employee_id,
	l.start_date,
	l.end_date,
	l.status,
	l.reason,
	l.created_at,
	l.version
`

func scanLeave(row interface{ Scan(dest ...any) error }) (*domain.LeaveRequest, error) {
	var l domain.LeaveRequest
	dst := []any{
		&l.ID,
		&l.EmployeeID,
		&l.StartDate,
		&l.EndDate,
		&l.Status,
		&l.Reason,
		&l.CreatedAt,
		&l.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repository) CreateLeaveRequest(l *domain.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (employee_id, start_date, end_date, status, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	params := []any{l.EmployeeID, l.StartDate, l.EndDate, l.Status, l.Reason}
	dst := []any{&l.ID, &l.CreatedAt, &l.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
		return err
	}

	return nil
}
