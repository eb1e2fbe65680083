package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

const driverColumns = `
	d.id,
	d.employee_id,
	e.full_name,
	d.license_class,
	d.license_expires_on,
	d.fit_to_drive,
	d.status,
	d.created_at,
	d.version
`

const assistantColumns = `
	a.id,
	a.employee_id,
	e.full_name,
	a.status,
	a.created_at,
	a.version
`

func scanDriver(row interface{ Scan(dest ...any) error }) (*domain.Driver, error) {
	var d domain.Driver
	dst := []any{
		&d.ID,
		&d.EmployeeID,
		&d.FullName,
		&d.LicenseClass,
		&d.LicenseExpiresOn,
		&d.FitToDrive,
		&d.Status,
		&d.CreatedAt,
		&d.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanAssistant(row interface{ Scan(dest ...any) error }) (*domain.Assistant, error) {
	var a domain.Assistant
	dst := []any{
		&a.ID,
		&a.EmployeeID,
		&a.FullName,
		&a.Status,
		&a.CreatedAt,
		&a.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAllDrivers() ([]*domain.Driver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	query := `SELECT ` + driverColumns + ` FROM drivers d JOIN employees e ON e.id = d.employee_id ORDER BY d.id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drivers := []*domain.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return drivers, nil
}

func (r *Repository) GetAllAssistants() ([]*domain.Assistant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	query := `SELECT ` + assistantColumns + ` FROM assistants a JOIN employees e ON e.id = a.employee_id ORDER BY a.id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assistants := []*domain.Assistant{}
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		assistants = append(assistants, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assistants, nil
}

// rowQuerier 由 *sql.DB 和 *sql.Tx 实现，插入语句可以在事务内外复用
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertEmployee(ctx context.Context, q rowQuerier, e *domain.Employee) error {
	query := `
		INSERT INTO employees (code, full_name, email)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, version
	`

	dst := []any{&e.ID, &e.CreatedAt, &e.Version}
	return q.QueryRowContext(ctx, query, e.Code, e.FullName, e.Email).Scan(dst...)
}

func insertDriver(ctx context.Context, q rowQuerier, d *domain.Driver) error {
	query := `
		INSERT INTO drivers (
			employee_id,
			license_class,
			license_expires_on,
			fit_to_drive,
			status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, version
	`

	params := []any{
		d.EmployeeID,
		d.LicenseClass,
		d.LicenseExpiresOn,
		d.FitToDrive,
		d.Status,
	}
	dst := []any{&d.ID, &d.CreatedAt, &d.Version}
	return q.QueryRowContext(ctx, query, params...).Scan(dst...)
}

func insertAssistant(ctx context.Context, q rowQuerier, a *domain.Assistant) error {
	query := `
		INSERT INTO assistants (employee_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at, version
	`

	dst := []any{&a.ID, &a.CreatedAt, &a.Version}
	return q.QueryRowContext(ctx, query, a.EmployeeID, a.Status).Scan(dst...)
}

func (r *Repository) CreateEmployee(e *domain.Employee) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	return insertEmployee(ctx, r.dbpool, e)
}

// CreateDriver 要求对应的员工已经存在，FullName 不会被写入 drivers 表
func (r *Repository) CreateDriver(d *domain.Driver) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	return insertDriver(ctx, r.dbpool, d)
}

func (r *Repository) CreateAssistant(a *domain.Assistant) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	return insertAssistant(ctx, r.dbpool, a)
}

// CreateDriverWithEmployee 在同一个事务中插入员工和司机，任何一步失败都不会留下员工记录
func (r *Repository) CreateDriverWithEmployee(e *domain.Employee, d *domain.Driver) error {
	return r.withEmployee(e, func(ctx context.Context, tx *sql.Tx) error {
		d.EmployeeID = e.ID
		d.FullName = e.FullName
		return insertDriver(ctx, tx, d)
	})
}

func (r *Repository) CreateAssistantWithEmployee(e *domain.Employee, a *domain.Assistant) error {
	return r.withEmployee(e, func(ctx context.Context, tx *sql.Tx) error {
		a.EmployeeID = e.ID
		a.FullName = e.FullName
		return insertAssistant(ctx, tx, a)
	})
}

func (r *Repository) withEmployee(e *domain.Employee, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertEmployee(ctx, tx, e); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}
