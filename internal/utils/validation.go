package utils

import (
	"fmt"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// ValidateDateRange 检查查询区间，maxDays 为 0 时不限制跨度
func ValidateDateRange(from, to *domain.Date, maxDays int) error {
	if from == nil || to == nil {
		if maxDays > 0 {
			return fmt.Errorf("查询班次时必须同时指定开始和结束日期")
		}
		return nil
	}

	if from.After(*to) {
		return fmt.Errorf("开始日期 %s 不能晚于结束日期 %s", from, to)
	}

	if maxDays > 0 && from.AddDays(maxDays).Before(*to) {
		return fmt.Errorf("查询区间不能超过 %d 天", maxDays)
	}

	return nil
}
