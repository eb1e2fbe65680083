//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
)

func startPostgres(t *testing.T) *Repository {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fleet",
			"POSTGRES_PASSWORD": "fleet",
			"POSTGRES_DB":       "fleet",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://fleet:fleet@%s:%s/fleet?sslmode=disable", host, port.Port())
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 10
	cfg.Database.TransactionTimeout = 20

	repo := NewRepository(cfg, db)
	require.NoError(t, repo.Migrate())
	// 重复执行应当什么都不做
	require.NoError(t, repo.Migrate())

	return repo
}

type fixture struct {
	vehicle    *domain.Vehicle
	drivers    []*domain.Driver
	assistants []*domain.Assistant
}

func seedFixture(t *testing.T, repo *Repository, drivers int) *fixture {
	t.Helper()

	f := &fixture{vehicle: &domain.Vehicle{
		PlateNumber: "粤A12345",
		Status:      domain.VehicleStatusOperational,
		Class:       domain.VehicleClassDoubleDeck,
	}}
	require.NoError(t, repo.CreateVehicle(f.vehicle))

	for i := 0; i < drivers; i++ {
		emp := &domain.Employee{Code: fmt.Sprintf("D%03d", i), FullName: fmt.Sprintf("司机%d", i), Email: fmt.Sprintf("d%d@fleet.example.com", i)}
		require.NoError(t, repo.CreateEmployee(emp))
		d := &domain.Driver{EmployeeID: emp.ID, LicenseClass: "A1", FitToDrive: true, Status: domain.StaffStatusActive}
		require.NoError(t, repo.CreateDriver(d))
		f.drivers = append(f.drivers, d)

		emp = &domain.Employee{Code: fmt.Sprintf("A%03d", i), FullName: fmt.Sprintf("乘务员%d", i), Email: fmt.Sprintf("a%d@fleet.example.com", i)}
		require.NoError(t, repo.CreateEmployee(emp))
		a := &domain.Assistant{EmployeeID: emp.ID, Status: domain.StaffStatusActive}
		require.NoError(t, repo.CreateAssistant(a))
		f.assistants = append(f.assistants, a)
	}

	return f
}

func candidate(f *fixture, i int, start, end domain.TimeOfDay) *scheduler.Candidate {
	return &scheduler.Candidate{
		VehicleID:  f.vehicle.ID,
		Date:       domain.NewDate(2025, time.June, 1),
		StartTime:  start,
		EndTime:    end,
		Type:       domain.ShiftTypeMorning,
		Drivers:    []domain.ShiftDriver{{DriverID: f.drivers[i].ID, Role: domain.DriverRolePrimary}},
		Assistants: []domain.ShiftAssistant{{AssistantID: f.assistants[i].ID, Position: domain.AssistantPositionUpperDeck}},
	}
}

func TestPostgresShiftLifecycle(t *testing.T) {
	repo := startPostgres(t)
	f := seedFixture(t, repo, 2)
	sched := scheduler.New(repo)
	ctx := context.Background()

	created, err := sched.CreateShift(ctx, candidate(f, 0, domain.NewTimeOfDay(8, 0, 0), domain.NewTimeOfDay(12, 0, 0)))
	require.NoError(t, err)

	got, err := sched.GetShift(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewTimeOfDay(12, 0, 0), got.EndTime)
	assert.Len(t, got.Drivers, 1)
	assert.Len(t, got.Assistants, 1)

	_, err = sched.CreateShift(ctx, candidate(f, 1, domain.NewTimeOfDay(11, 0, 0), domain.NewTimeOfDay(14, 0, 0)))
	var verr *scheduler.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(scheduler.RuleVehicleOverlap))

	_, err = sched.CancelShift(ctx, created.ID)
	require.NoError(t, err)

	_, err = sched.CreateShift(ctx, candidate(f, 1, domain.NewTimeOfDay(11, 0, 0), domain.NewTimeOfDay(24, 0, 0)))
	require.NoError(t, err)

	vehicleID := f.vehicle.ID
	shifts, err := sched.ListShifts(ctx, domain.ShiftFilter{VehicleID: &vehicleID})
	require.NoError(t, err)
	assert.Len(t, shifts, 2)

	_, err = sched.DeleteShift(ctx, created.ID)
	assert.ErrorIs(t, err, scheduler.ErrIllegalState)
}

func TestPostgresConcurrentCreateIsSerialized(t *testing.T) {
	repo := startPostgres(t)
	const n = 5
	f := seedFixture(t, repo, n)
	sched := scheduler.New(repo)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sched.CreateShift(context.Background(), candidate(f, i, domain.NewTimeOfDay(8, 0, 0), domain.NewTimeOfDay(12, 0, 0)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var verr *scheduler.ValidationError
		require.True(t, errors.As(err, &verr), "unexpected error: %v", err)
		assert.True(t, verr.Has(scheduler.RuleVehicleOverlap))
	}
	assert.Equal(t, 1, succeeded)
}

func TestPostgresExclusionConstraintBackstop(t *testing.T) {
	repo := startPostgres(t)
	f := seedFixture(t, repo, 2)
	ctx := context.Background()

	insert := func(i int, start, end domain.TimeOfDay) error {
		return repo.WithinTx(ctx, func(tx scheduler.Tx) error {
			return tx.InsertShift(ctx, &domain.Shift{
				VehicleID: f.vehicle.ID,
				Date:      domain.NewDate(2025, time.June, 1),
				StartTime: start,
				EndTime:   end,
				Type:      domain.ShiftTypeMorning,
				State:     domain.ShiftStateScheduled,
				Drivers:   []domain.ShiftDriver{{DriverID: f.drivers[i].ID, Role: domain.DriverRolePrimary}},
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			})
		})
	}

	require.NoError(t, insert(0, domain.NewTimeOfDay(8, 0, 0), domain.NewTimeOfDay(12, 0, 0)))
	assert.ErrorIs(t, insert(1, domain.NewTimeOfDay(11, 0, 0), domain.NewTimeOfDay(13, 0, 0)), scheduler.ErrWindowConflict)
	// 端点相接不算冲突
	assert.NoError(t, insert(1, domain.NewTimeOfDay(12, 0, 0), domain.NewTimeOfDay(13, 0, 0)))
}

func TestPostgresCreateDriverWithEmployeeRollsBack(t *testing.T) {
	repo := startPostgres(t)

	emp := &domain.Employee{Code: "ww0001", FullName: "王伟", Email: "wangwei@fleet.example.com"}
	// status 违反 CHECK 约束，司机插入失败后员工也不应保留
	err := repo.CreateDriverWithEmployee(emp, &domain.Driver{LicenseClass: "A1", Status: "retired"})
	require.Error(t, err)

	emp = &domain.Employee{Code: "ww0001", FullName: "王伟", Email: "wangwei@fleet.example.com"}
	driver := &domain.Driver{LicenseClass: "A1", FitToDrive: true, Status: domain.StaffStatusActive}
	require.NoError(t, repo.CreateDriverWithEmployee(emp, driver))
	assert.Equal(t, emp.ID, driver.EmployeeID)

	drivers, err := repo.GetAllDrivers()
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "王伟", drivers[0].FullName)
}
