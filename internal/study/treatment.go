package study

import (
	"fmt"
	"sort"
	"time"

	"psorcast/internal/services"
)

// TreatmentRange is one contiguous period with a fixed set of self-reported
// treatments. A nil EndDate marks the current range.
type TreatmentRange struct {
	ID         int64      `json:"id,omitempty"`
	Treatments []string   `json:"treatments" validate:"required,min=1,dive,required"`
	StartDate  time.Time  `json:"start_date" validate:"required"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// Current reports whether the range is still open.
func (r TreatmentRange) Current() bool {
	return r.EndDate == nil
}

// Range returns the closed interval covered by the range. Open ranges end at now.
func (r TreatmentRange) Range(now time.Time) (time.Time, time.Time) {
	if r.EndDate != nil {
		return r.StartDate, *r.EndDate
	}
	return r.StartDate, now
}

// Contains reports whether t falls inside the range, both ends inclusive.
func (r TreatmentRange) Contains(t, now time.Time) bool {
	start, end := r.Range(now)
	return !t.Before(start) && !t.After(end)
}

// DateRangeString renders the range for captions. Month precision is used for
// long ranges, day precision when both ends fall within a month, and minute
// precision when they share a day. Open ranges end in "Today".
func (r TreatmentRange) DateRangeString(now time.Time) string {
	end := now
	if r.EndDate != nil {
		end = *r.EndDate
	}
	layout := "Jan 2006"
	sameYear := r.StartDate.Year() == end.Year()
	sameMonth := r.StartDate.Month() == end.Month()
	days := DaysBetween(r.StartDate, end)
	if days < 0 {
		days = -days
	}
	sameDay := days == 0
	if (sameMonth && sameYear) || days < 30 {
		layout = "Jan 2 2006"
		if sameDay {
			layout = "Jan 2 2006 15:4"
		}
	}
	endStr := "Today"
	if r.EndDate != nil {
		endStr = end.Format(layout)
	}
	return fmt.Sprintf("%s to %s", r.StartDate.Format(layout), endStr)
}

// ValidateRanges checks that at most one range is open and that closed ranges
// do not overlap each other or the open range.
func ValidateRanges(ranges []TreatmentRange) error {
	sorted := append([]TreatmentRange(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})
	open := 0
	for i, r := range sorted {
		if err := ValidateStruct(r); err != nil {
			return err
		}
		if r.EndDate == nil {
			open++
			if open > 1 {
				return services.Wrap(services.ErrValidation, "study", "validate treatments", "more than one open treatment range", nil)
			}
			if i != len(sorted)-1 {
				return services.Wrap(services.ErrValidation, "study", "validate treatments", "open treatment range must be the latest", nil)
			}
			continue
		}
		if r.EndDate.Before(r.StartDate) {
			return services.Wrap(services.ErrValidation, "study", "validate treatments",
				fmt.Sprintf("range starting %s ends before it starts", r.StartDate.Format(time.DateOnly)), nil)
		}
		if i+1 < len(sorted) && sorted[i+1].StartDate.Before(*r.EndDate) {
			return services.Wrap(services.ErrValidation, "study", "validate treatments",
				fmt.Sprintf("range starting %s overlaps the next range", r.StartDate.Format(time.DateOnly)), nil)
		}
	}
	return nil
}
