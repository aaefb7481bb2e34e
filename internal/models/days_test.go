package models

import (
	"testing"
	"time"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysInYear(t *testing.T) {
	tests := []struct {
		name      string
		intervals []DateInterval
		year      int
		want      int
	}{
		{"fully inside the year", []DateInterval{{day(2024, time.March, 1), day(2024, time.March, 31)}}, 2024, 31},
		{"single day counts once", []DateInterval{{day(2024, time.June, 15), day(2024, time.June, 15)}}, 2024, 1},
		{"clamped at year start", []DateInterval{{day(2023, time.November, 1), day(2024, time.January, 10)}}, 2024, 10},
		{"clamped at year end", []DateInterval{{day(2024, time.December, 25), day(2025, time.February, 1)}}, 2024, 7},
		{"outside the year", []DateInterval{{day(2023, time.January, 1), day(2023, time.December, 31)}}, 2024, 0},
		{"multiple intervals summed", []DateInterval{
			{day(2024, time.January, 1), day(2024, time.January, 31)},
			{day(2024, time.July, 1), day(2024, time.July, 31)},
		}, 2024, 62},
		{"whole leap year", []DateInterval{{day(2024, time.January, 1), day(2024, time.December, 31)}}, 2024, 366},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysInYear(tt.intervals, tt.year); got != tt.want {
				t.Errorf("DaysInYear() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContractDaysInYear(t *testing.T) {
	start := day(2024, time.February, 1)
	plannedEnd := day(2024, time.December, 31)

	contract := EmployeeContract{StartAt: start, PlannedEndAt: plannedEnd}
	if got := ContractDaysInYear(contract, 2024); got != 335 {
		t.Errorf("ContractDaysInYear() = %d, want 335", got)
	}

	// An actual end date overrides the planned one
	actualEnd := day(2024, time.April, 30)
	contract.EndAt = &actualEnd
	if got := ContractDaysInYear(contract, 2024); got != 90 {
		t.Errorf("ContractDaysInYear() with actual end = %d, want 90", got)
	}
}

func TestAllowanceRequestedByDefault(t *testing.T) {
	// The boundary is strict: exactly 90 days does not qualify
	if AllowanceRequestedByDefault(90) {
		t.Error("90 days should not qualify for an allowance")
	}
	if !AllowanceRequestedByDefault(91) {
		t.Error("91 days should qualify for an allowance")
	}
	if AllowanceRequestedByDefault(0) {
		t.Error("0 days should not qualify for an allowance")
	}
}
