package schedule

import (
	"time"

	"psorcast/internal/study"
)

// ActivityStatus describes one activity for the current week.
type ActivityStatus struct {
	Identifier study.ActivityID `json:"identifier"`
	Title      string           `json:"title"`
	Timing     Timing           `json:"timing"`
	Due        bool             `json:"due"`
	Scheduled  bool             `json:"scheduled"`
	Complete   bool             `json:"complete"`
	FinishedOn *time.Time       `json:"finished_on,omitempty"`
}

// WeekSummary is a snapshot of the schedule for reporting.
type WeekSummary struct {
	Week        int              `json:"week"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Activities  []ActivityStatus `json:"activities"`
	Scheduled   int              `json:"scheduled"`
	Completed   int              `json:"completed"`
	AllComplete bool             `json:"all_complete"`
}

// Remaining is the number of scheduled activities not yet finished.
func (s WeekSummary) Remaining() int {
	return s.Scheduled - s.Completed
}

// Summary builds a WeekSummary covering every known activity.
func (e *Engine) Summary() WeekSummary {
	week := e.BaseStudyWeek()
	start, end := e.CompletionRange(week)
	summary := WeekSummary{Week: week, WindowStart: start, WindowEnd: end}

	due := make(map[study.ActivityID]bool)
	for _, id := range e.FilterList() {
		due[id] = true
	}
	var raw []study.ScheduledActivity
	if e.source != nil {
		raw = e.source.Activities()
	}
	scheduled := make(map[study.ActivityID]study.ScheduledActivity)
	for _, activity := range raw {
		if _, seen := scheduled[activity.Identifier]; !seen {
			scheduled[activity.Identifier] = activity
		}
	}

	for _, id := range study.AllActivities() {
		status := ActivityStatus{
			Identifier: id,
			Title:      id.Title(),
			Timing:     e.ScheduleFrequency(id),
			Due:        due[id],
		}
		if activity, ok := scheduled[id]; ok {
			status.Scheduled = true
			status.FinishedOn = activity.FinishedOn
			status.Complete = e.IsComplete(activity)
		}
		summary.Activities = append(summary.Activities, status)
	}
	summary.Scheduled = e.SortedScheduleCount()
	summary.Completed = e.CompletedActivitiesCount()
	summary.AllComplete = summary.Scheduled > 0 && summary.Completed == summary.Scheduled
	return summary
}
