package scheduler

import (
	"context"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// HasOverlap 判断车辆在 date 当天是否已有未取消的班次与 window 相交，excludeShiftID 为 0 时不排除任何班次
func HasOverlap(ctx context.Context, r Reader, vehicleID int64, date domain.Date, window Window, excludeShiftID int64) (bool, error) {
	conflicts, err := overlapping(ctx, r, vehicleID, date, window, excludeShiftID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

func overlapping(ctx context.Context, r Reader, vehicleID int64, date domain.Date, window Window, excludeShiftID int64) ([]*domain.Shift, error) {
	existing, err := r.VehicleShiftsOn(ctx, vehicleID, date)
	if err != nil {
		return nil, err
	}

	conflicts := []*domain.Shift{}
	for _, s := range existing {
		if s.ID == excludeShiftID || !s.State.OccupiesResources() {
			continue
		}
		if window.Overlaps(WindowOf(s)) {
			conflicts = append(conflicts, s)
		}
	}

	return conflicts, nil
}
