package models

import "time"

// MinDaysInYearForAllowance is the minimum presence in the campaign year for
// an allowance to be requested by default. A contract spanning exactly this
// many days does not qualify.
const MinDaysInYearForAllowance = 90

// Annual allowance amounts in euros. The higher amount applies to employees
// with at least one prior qualification on record.
const (
	AllowanceAmountDefault              = 814
	AllowanceAmountWithPrequalification = 1400
)

// DateInterval is a closed [Start, End] date range
type DateInterval struct {
	Start time.Time
	End   time.Time
}

// DaysInYear counts the days (inclusive on both ends) the given intervals
// overlap the calendar year. Overlapping input intervals are counted once
// per interval, matching how contract periods are reported by the registry.
func DaysInYear(intervals []DateInterval, year int) int {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	days := 0
	for _, interval := range intervals {
		start := truncateToDay(interval.Start)
		end := truncateToDay(interval.End)
		if start.Before(yearStart) {
			start = yearStart
		}
		if end.After(yearEnd) {
			end = yearEnd
		}
		if end.Before(start) {
			continue
		}
		days += int(end.Sub(start).Hours()/24) + 1
	}

	return days
}

// ContractDaysInYear computes the campaign-year presence of a contract. An
// open-ended contract counts until the end of the year.
func ContractDaysInYear(contract EmployeeContract, year int) int {
	end := contract.PlannedEndAt
	if contract.EndAt != nil {
		end = *contract.EndAt
	}
	return DaysInYear([]DateInterval{{Start: contract.StartAt, End: end}}, year)
}

// AllowanceRequestedByDefault reports whether a contract with the given
// campaign-year presence defaults to a requested allowance. Strictly more
// than MinDaysInYearForAllowance days are required.
func AllowanceRequestedByDefault(daysInYear int) bool {
	return daysInYear > MinDaysInYearForAllowance
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
