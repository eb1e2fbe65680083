package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/seed"
)

var rosterFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		return e.repo.Migrate()
	},
}

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "插入随机车辆",
	RunE: func(cmd *cobra.Command, args []string) error {
		if n <= 0 {
			return errors.New("请输入合法的车辆数量")
		}
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		cnt := seed.Vehicles(e.repo, n, domain.DateOf(time.Now()))
		slog.Info("插入车辆成功", slog.Int("count", cnt))
		return nil
	},
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "插入随机司机和乘务员",
	RunE: func(cmd *cobra.Command, args []string) error {
		if n <= 0 {
			return errors.New("请输入合法的人员数量")
		}
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		drivers, assistants := seed.Staff(e.repo, n, e.cfg.Seed.EmailDomain, domain.DateOf(time.Now()))
		slog.Info("插入人员成功", slog.Int("drivers", drivers), slog.Int("assistants", assistants))
		return nil
	},
}

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "插入随机请假记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		if n <= 0 {
			return errors.New("请输入合法的请假记录数量")
		}
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		cnt, err := seed.Leaves(e.repo, n, domain.DateOf(time.Now()), e.cfg.Seed.Days)
		if err != nil {
			return err
		}
		slog.Info("插入请假记录成功", slog.Int("count", cnt))
		return nil
	},
}

var shiftsCmd = &cobra.Command{
	Use:   "shifts",
	Short: "通过排班引擎为未来几天安排班次",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		sched := scheduler.New(e.repo, scheduler.WithTransientRetries(e.cfg.Scheduling.TransientRetries))
		created, rejected, err := seed.Shifts(cmd.Context(), e.repo, sched, domain.DateOf(time.Now()), e.cfg.Seed.Days)
		if err != nil {
			return err
		}
		slog.Info("插入班次成功", slog.Int("created", created), slog.Int("rejected", rejected))
		return nil
	},
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "导入花名册 CSV 文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(rosterFile)
		if err != nil {
			return err
		}
		defer file.Close()

		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		cnt, err := seed.ImportRoster(e.repo, file, e.cfg.Seed.EmailDomain)
		if err != nil {
			return err
		}
		slog.Info("导入花名册完成", slog.Int("count", cnt))
		return nil
	},
}

// demoCmd 依次执行迁移和所有随机数据的插入
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "迁移数据库并插入一整套演示数据",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.repo.Migrate(); err != nil {
			return err
		}

		today := domain.DateOf(time.Now())
		vehicles := seed.Vehicles(e.repo, n, today)
		drivers, assistants := seed.Staff(e.repo, n*3, e.cfg.Seed.EmailDomain, today)
		leaves, err := seed.Leaves(e.repo, n, today, e.cfg.Seed.Days)
		if err != nil {
			return err
		}

		sched := scheduler.New(e.repo, scheduler.WithTransientRetries(e.cfg.Scheduling.TransientRetries))
		created, rejected, err := seed.Shifts(cmd.Context(), e.repo, sched, today, e.cfg.Seed.Days)
		if err != nil {
			return err
		}

		slog.Info("插入演示数据成功",
			slog.Int("vehicles", vehicles),
			slog.Int("drivers", drivers),
			slog.Int("assistants", assistants),
			slog.Int("leaves", leaves),
			slog.Int("shifts", created),
			slog.Int("rejected", rejected),
		)
		return nil
	},
}

func init() {
	rosterCmd.Flags().StringVarP(&rosterFile, "file", "f", "./internal/seed/data/roster.csv", "花名册文件路径")

	rootCmd.AddCommand(migrateCmd, vehiclesCmd, staffCmd, leavesCmd, shiftsCmd, rosterCmd, demoCmd)
}
