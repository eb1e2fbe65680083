package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

const vehicleColumns = `
	v.id,
	v.plate_number,
	v.status,
	v.class,
	v.insurance_expires_on,
	v.inspection_expires_on,
	v.policy_expires_on,
	v.created_at,
	v.version
`

func scanVehicle(row interface{ Scan(dest ...any) error }) (*domain.Vehicle, error) {
	var v domain.Vehicle
	dst := []any{
		&v.ID,
		&v.PlateNumber,
		&v.Status,
		&v.Class,
		&v.InsuranceExpiresOn,
		&v.InspectionExpiresOn,
		&v.PolicyExpiresOn,
		&v.CreatedAt,
		&v.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetAllVehicles() ([]*domain.Vehicle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	query := `SELECT ` + vehicleColumns + ` FROM vehicles v ORDER BY v.id`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := []*domain.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return vehicles, nil
}

func (r *Repository) CreateVehicle(v *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (
			plate_number,
			status,
			class,
			insurance_expires_on,
			inspection_expires_on,
			policy_expires_on
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout())
	defer cancel()

	params := []any{
		v.PlateNumber,
		v.Status,
		v.Class,
		v.InsuranceExpiresOn,
		v.InspectionExpiresOn,
		v.PolicyExpiresOn,
	}
	dst := []any{&v.ID, &v.CreatedAt, &v.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
		return err
	}

	return nil
}
