package history

import (
	"context"
	"time"

	"psorcast/internal/study"
)

// Snapshot is a point-in-time copy of the clinical answers and schedule. It
// satisfies schedule.ClinicalState and schedule.ActivitySource.
type Snapshot struct {
	diagnosis    string
	hasDiagnosis bool
	symptoms     string
	hasSymptoms  bool
	start        time.Time
	hasStart     bool
	activities   []study.ScheduledActivity
}

func (s *Snapshot) Diagnosis() (string, bool)         { return s.diagnosis, s.hasDiagnosis }
func (s *Snapshot) Symptoms() (string, bool)          { return s.symptoms, s.hasSymptoms }
func (s *Snapshot) StudyStartDate() (time.Time, bool) { return s.start, s.hasStart }

func (s *Snapshot) Activities() []study.ScheduledActivity {
	return append([]study.ScheduledActivity(nil), s.activities...)
}

// ClinicalSnapshot loads everything the schedule engine reads.
func (s *Store) ClinicalSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if snap.diagnosis, snap.hasDiagnosis, err = s.Diagnosis(ctx); err != nil {
		return nil, err
	}
	if snap.symptoms, snap.hasSymptoms, err = s.Symptoms(ctx); err != nil {
		return nil, err
	}
	if snap.start, snap.hasStart, err = s.BaseStudyStartDate(ctx); err != nil {
		return nil, err
	}
	if snap.activities, err = s.Activities(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}
