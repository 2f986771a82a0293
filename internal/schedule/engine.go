package schedule

import (
	"log/slog"
	"sort"
	"time"

	"psorcast/internal/logging"
	"psorcast/internal/study"
)

// ClinicalState exposes the participant answers the schedule depends on.
type ClinicalState interface {
	Diagnosis() (string, bool)
	Symptoms() (string, bool)
	StudyStartDate() (time.Time, bool)
}

// ActivitySource supplies the raw schedule for the current week.
type ActivitySource interface {
	Activities() []study.ScheduledActivity
}

// Clock returns the current time.
type Clock func() time.Time

// Options tune the monthly recurrence.
type Options struct {
	MonthlyStartWeek     int
	MonthlyIntervalWeeks int
}

// DefaultOptions matches the study protocol: monthly activities start in
// week 2 and recur every 4 weeks.
func DefaultOptions() Options {
	return Options{MonthlyStartWeek: 2, MonthlyIntervalWeeks: 4}
}

// Engine computes the weekly schedule. It holds no state of its own; every
// answer is read from the injected collaborators on each call.
type Engine struct {
	state  ClinicalState
	source ActivitySource
	clock  Clock
	opts   Options
	logger *slog.Logger
}

// New constructs an Engine. A nil clock uses time.Now and a nil logger
// discards output.
func New(state ClinicalState, source ActivitySource, clock Clock, opts Options, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if opts.MonthlyStartWeek < 1 {
		opts.MonthlyStartWeek = DefaultOptions().MonthlyStartWeek
	}
	if opts.MonthlyIntervalWeeks < 1 {
		opts.MonthlyIntervalWeeks = DefaultOptions().MonthlyIntervalWeeks
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		state:  state,
		source: source,
		clock:  clock,
		opts:   opts,
		logger: logger.With(logging.String("component", "schedule")),
	}
}

// ScheduleFrequency returns the timing of id for the current answers.
func (e *Engine) ScheduleFrequency(id study.ActivityID) Timing {
	diagnosis, hasDiagnosis := e.state.Diagnosis()
	symptoms, hasSymptoms := e.state.Symptoms()
	return frequencyFor(id, diagnosis, symptoms, hasDiagnosis, hasSymptoms, e.opts.MonthlyStartWeek)
}

// FilterList returns the activities due this study week in priority order.
func (e *Engine) FilterList() []study.ActivityID {
	week := e.BaseStudyWeek()
	due := make([]study.ActivityID, 0, len(study.AllActivities()))
	for _, id := range study.AllActivities() {
		if e.ScheduleFrequency(id).DueInWeek(week, e.opts.MonthlyIntervalWeeks) {
			due = append(due, id)
		}
	}
	return due
}

// SortActivities drops activities that are not due this week and orders the
// rest by priority. It returns nil when nothing remains.
func (e *Engine) SortActivities(raw []study.ScheduledActivity) []study.ScheduledActivity {
	if len(raw) == 0 {
		return nil
	}
	due := make(map[study.ActivityID]bool)
	for _, id := range e.FilterList() {
		due[id] = true
	}
	filtered := make([]study.ScheduledActivity, 0, len(raw))
	for _, activity := range raw {
		if due[activity.Identifier] {
			filtered = append(filtered, activity)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Identifier.Priority() < filtered[j].Identifier.Priority()
	})
	return filtered
}

// BaseStudyWeek returns the one-based study week for now. Weeks are counted
// in whole civil days from the start of the study start day so clock changes
// do not shift the boundary.
func (e *Engine) BaseStudyWeek() int {
	start, ok := e.state.StudyStartDate()
	if !ok {
		return 1
	}
	days := study.DaysBetween(study.StartOfDay(start), e.clock())
	if days < 0 {
		return 1
	}
	return days/7 + 1
}

// CompletionRange returns the inclusive window for week counted from date.
func CompletionRange(date time.Time, week int) (time.Time, time.Time) {
	base := study.StartOfDay(date)
	return study.AddDays(base, 7*(week-1)), study.AddDays(base, 7*week)
}

// CompletionRange returns the window for week relative to the study start.
// Without a start date the window is anchored at the start of today.
func (e *Engine) CompletionRange(week int) (time.Time, time.Time) {
	start, ok := e.state.StudyStartDate()
	if !ok {
		start = e.clock()
	}
	return CompletionRange(start, week)
}

// IsComplete reports whether activity was finished inside this week's window.
func (e *Engine) IsComplete(activity study.ScheduledActivity) bool {
	if activity.FinishedOn == nil {
		return false
	}
	start, ok := e.state.StudyStartDate()
	if !ok {
		return false
	}
	lower, upper := CompletionRange(start, e.BaseStudyWeek())
	finished := *activity.FinishedOn
	return !finished.Before(lower) && !finished.After(upper)
}

func (e *Engine) sorted() []study.ScheduledActivity {
	if e.source == nil {
		return nil
	}
	return e.SortActivities(e.source.Activities())
}

// SortedScheduleCount is the number of activities due this week.
func (e *Engine) SortedScheduleCount() int {
	return len(e.sorted())
}

// CompletedActivitiesCount is the number of due activities already finished.
func (e *Engine) CompletedActivitiesCount() int {
	count := 0
	for _, activity := range e.sorted() {
		if e.IsComplete(activity) {
			count++
		}
	}
	return count
}

// AreAllActivitiesCompletedThisWeek is false when nothing is scheduled.
func (e *Engine) AreAllActivitiesCompletedThisWeek() bool {
	total := e.SortedScheduleCount()
	if total == 0 {
		return false
	}
	done := e.CompletedActivitiesCount()
	e.logger.Debug("weekly completion",
		logging.Int("week", e.BaseStudyWeek()),
		logging.Int("completed", done),
		logging.Int("scheduled", total),
	)
	return done == total
}
