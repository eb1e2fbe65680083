package utils

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

func TestValidateDateRange(t *testing.T) {
	d := func(day int) *domain.Date {
		v := domain.NewDate(2025, time.June, day)
		return &v
	}

	assert.NoError(t, ValidateDateRange(d(1), d(7), 31))
	assert.NoError(t, ValidateDateRange(d(1), d(1), 31))
	assert.NoError(t, ValidateDateRange(nil, nil, 0))
	assert.NoError(t, ValidateDateRange(d(1), d(30), 29))

	assert.Error(t, ValidateDateRange(d(7), d(1), 31))
	assert.Error(t, ValidateDateRange(d(1), d(30), 28))
	assert.Error(t, ValidateDateRange(nil, d(1), 31))
	assert.Error(t, ValidateDateRange(nil, nil, 31))
}

func TestGenerateEmployee(t *testing.T) {
	code := GenerateEmployeeCode("王伟")
	assert.Regexp(t, regexp.MustCompile(`^ww\d{4}$`), code)

	e := GenerateRandomEmployee("fleet.example.com")
	assert.NotEmpty(t, e.FullName)
	assert.True(t, strings.HasSuffix(e.Email, "."+e.Code+"@fleet.example.com"))
}

func TestGenerateRandomVehicle(t *testing.T) {
	today := domain.NewDate(2025, time.June, 1)
	for i := 0; i < 20; i++ {
		v := GenerateRandomVehicle(today)
		assert.True(t, v.Class.IsValid())
		assert.True(t, v.Status.IsValid())
		assert.Len(t, []rune(v.PlateNumber), 7)
		assert.NotNil(t, v.InsuranceExpiresOn)
	}
}

func TestGenerateRandomLeave(t *testing.T) {
	from := domain.NewDate(2025, time.June, 1)
	for i := 0; i < 20; i++ {
		l := GenerateRandomLeave(1, from, 7)
		assert.False(t, l.StartDate.Before(from))
		assert.False(t, l.EndDate.Before(l.StartDate))
		assert.True(t, l.Status.IsValid())
	}
}

func TestShiftSlotsAreValidWindows(t *testing.T) {
	for _, s := range shiftSlots {
		assert.True(t, s.shiftType.IsValid())
		assert.Less(t, s.start, s.end)
		assert.LessOrEqual(t, s.end, domain.EndOfDay)
	}
}
