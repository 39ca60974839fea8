// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
)

// FindEntry finds the schedule row for month.
// Returns a pointer to the entry if found, nil otherwise.
func FindEntry(schedule []installment.ScheduleEntry, month int) *installment.ScheduleEntry {
	for i := range schedule {
		if schedule[i].Month == month {
			return &schedule[i]
		}
	}
	return nil
}

// FindYear finds the forecast record for year.
// Returns a pointer to the record if found, nil otherwise.
func FindYear(records []growth.YearRecord, year int) *growth.YearRecord {
	for i := range records {
		if records[i].Year == year {
			return &records[i]
		}
	}
	return nil
}
