package study

import (
	"time"
)

// ScheduledActivity is one recurring activity instance as supplied by the
// scheduling backend.
type ScheduledActivity struct {
	Identifier ActivityID `json:"identifier"`
	FinishedOn *time.Time `json:"finished_on,omitempty"`
}

// JarRotations holds the digital jar open rotation angles in degrees.
type JarRotations struct {
	LeftClockwise  int `json:"left_clockwise" validate:"gte=0,lte=360"`
	LeftCounter    int `json:"left_counter" validate:"gte=0,lte=360"`
	RightClockwise int `json:"right_clockwise" validate:"gte=0,lte=360"`
	RightCounter   int `json:"right_counter" validate:"gte=0,lte=360"`
}

// HistoryItem is one completed measurement. Items are never edited after
// creation, only deleted.
type HistoryItem struct {
	ID               int64         `json:"id,omitempty"`
	TaskIdentifier   ActivityID    `json:"task_identifier" validate:"required,activity"`
	ReportIdentifier string        `json:"report_identifier,omitempty"`
	Date             time.Time     `json:"date" validate:"required"`
	ImageName        string        `json:"image_name,omitempty" validate:"omitempty,endswith=.jpg"`
	Coverage         *float64      `json:"coverage,omitempty" validate:"omitempty,gte=0,lte=1"`
	JointCount       *int          `json:"joint_count,omitempty" validate:"omitempty,gte=0"`
	SelectedZone     string        `json:"selected_zone,omitempty"`
	Rotations        *JarRotations `json:"rotations,omitempty"`
}

// HasImage reports whether the item carries a cached frame.
func (h HistoryItem) HasImage() bool {
	return h.ImageName != ""
}
