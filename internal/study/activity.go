package study

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"psorcast/internal/services"
)

// ActivityID identifies one of the recurring measurement activities.
type ActivityID string

const (
	PsoriasisDraw      ActivityID = "psoriasisDrawTask"
	PsoriasisAreaPhoto ActivityID = "psoriasisAreaPhotoTask"
	DigitalJarOpen     ActivityID = "digitalJarOpenTask"
	HandImaging        ActivityID = "handImagingTask"
	FootImaging        ActivityID = "footImagingTask"
	Walking            ActivityID = "walkingTask"
	JointCounting      ActivityID = "jointCountingTask"
)

// activityOrder is the canonical priority order used for filtering and sorting.
var activityOrder = []ActivityID{
	PsoriasisDraw,
	PsoriasisAreaPhoto,
	DigitalJarOpen,
	HandImaging,
	FootImaging,
	Walking,
	JointCounting,
}

// AllActivities returns every activity in canonical priority order.
func AllActivities() []ActivityID {
	return append([]ActivityID(nil), activityOrder...)
}

// Priority returns the position of id in the canonical order. Unknown
// identifiers return len(AllActivities()) so they sort last.
func (id ActivityID) Priority() int {
	for i, candidate := range activityOrder {
		if candidate == id {
			return i
		}
	}
	return len(activityOrder)
}

// Known reports whether id is one of the fixed activity identifiers.
func (id ActivityID) Known() bool {
	return id.Priority() < len(activityOrder)
}

func (id ActivityID) String() string { return string(id) }

var titleCaser = cases.Title(language.English)

// Title returns a display caption, e.g. "Psoriasis Area Photo".
func (id ActivityID) Title() string {
	raw := strings.TrimSuffix(string(id), "Task")
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return titleCaser.String(strings.ToLower(b.String()))
}

// ParseActivityID validates value against the known activity identifiers.
func ParseActivityID(value string) (ActivityID, error) {
	id := ActivityID(strings.TrimSpace(value))
	if !id.Known() {
		return "", services.Wrap(services.ErrValidation, "study", "parse activity",
			fmt.Sprintf("unknown activity %q", value), nil)
	}
	return id, nil
}
