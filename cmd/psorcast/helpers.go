package main

import (
	"fmt"
	"strings"
	"time"

	"psorcast/internal/services"
)

const displayDateLayout = "2006-01-02 15:04"

var timeFlagLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeFlag accepts RFC3339 or a local date/time. Empty means now.
func parseTimeFlag(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now, nil
	}
	for _, layout := range timeFlagLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, services.Wrap(services.ErrValidation, "cli", "parse time",
		fmt.Sprintf("%q is not a date (use YYYY-MM-DD or RFC3339)", value), nil)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(displayDateLayout)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
