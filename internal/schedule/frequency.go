package schedule

import (
	"psorcast/internal/study"
)

// Frequency is how often an activity recurs.
type Frequency int

const (
	Weekly Frequency = iota
	Monthly
)

func (f Frequency) String() string {
	switch f {
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// Timing pairs a frequency with the first study week it applies.
type Timing struct {
	Frequency Frequency `json:"frequency"`
	StartWeek int       `json:"start_week"`
}

func weekly() Timing { return Timing{Frequency: Weekly, StartWeek: 1} }

// DueInWeek reports whether an activity with this timing is scheduled in
// week, given the recurrence interval for monthly activities.
func (t Timing) DueInWeek(week, interval int) bool {
	if t.Frequency == Weekly {
		return true
	}
	if interval < 1 {
		interval = 1
	}
	return week >= t.StartWeek && (week-t.StartWeek)%interval == 0
}

var jointActivities = map[study.ActivityID]bool{
	study.JointCounting:  true,
	study.HandImaging:    true,
	study.FootImaging:    true,
	study.Walking:        true,
	study.DigitalJarOpen: true,
}

var skinActivities = map[study.ActivityID]bool{
	study.PsoriasisDraw:      true,
	study.PsoriasisAreaPhoto: true,
}

// frequencyFor derives the timing of id from the participant's answers.
// Participants whose answers point at only joints or only skin see the other
// group monthly. Anyone else sees everything weekly.
func frequencyFor(id study.ActivityID, diagnosis, symptoms string, hasDiagnosis, hasSymptoms bool, monthlyStart int) Timing {
	if !hasDiagnosis || !hasSymptoms {
		return weekly()
	}
	monthly := Timing{Frequency: Monthly, StartWeek: monthlyStart}

	joint := symptoms == study.SymptomsJoints || diagnosis == study.DiagnosisArthritis
	skin := symptoms == study.SymptomsSkin || diagnosis == study.DiagnosisPsoriasis

	switch {
	case joint && !skin:
		if jointActivities[id] {
			return weekly()
		}
		return monthly
	case skin && !joint:
		if skinActivities[id] {
			return weekly()
		}
		return monthly
	case joint && skin:
		return weekly()
	default:
		return weekly()
	}
}
