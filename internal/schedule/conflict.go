// Package schedule decides whether weekly course time slots overlap.
package schedule

import (
	"fmt"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// Conflict names the proposed slot and the existing slot it collides with
type Conflict struct {
	Proposed types.CourseTimeSlot
	Existing types.CourseTimeSlot
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s %s-%s overlaps existing %s %s-%s",
		c.Proposed.Day, types.FormatTimeOfDay(c.Proposed.Start), types.FormatTimeOfDay(c.Proposed.End),
		c.Existing.Day, types.FormatTimeOfDay(c.Existing.Start), types.FormatTimeOfDay(c.Existing.End))
}

// Overlaps uses half-open ranges: [s1,e1) and [s2,e2) intersect iff s1 < e2 && s2 < e1.
// Degenerate ranges never overlap anything.
func Overlaps(a, b types.CourseTimeSlot) bool {
	if a.Day != b.Day {
		return false
	}
	if a.Start >= a.End || b.Start >= b.End {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

// FindConflict returns the first colliding pair, scanning proposed slots in order
func FindConflict(existing, proposed []types.CourseTimeSlot) (Conflict, bool) {
	for _, p := range proposed {
		for _, e := range existing {
			if Overlaps(p, e) {
				return Conflict{Proposed: p, Existing: e}, true
			}
		}
	}
	return Conflict{}, false
}

// HasConflict reports whether any proposed slot overlaps any existing slot
func HasConflict(existing, proposed []types.CourseTimeSlot) bool {
	_, found := FindConflict(existing, proposed)
	return found
}

// FindSelfConflict checks proposed slots against each other
func FindSelfConflict(proposed []types.CourseTimeSlot) (Conflict, bool) {
	for i := range proposed {
		for j := i + 1; j < len(proposed); j++ {
			if Overlaps(proposed[i], proposed[j]) {
				return Conflict{Proposed: proposed[j], Existing: proposed[i]}, true
			}
		}
	}
	return Conflict{}, false
}

// Check adapts the detector to a store transaction callback
func Check(proposed []types.CourseTimeSlot) interfaces.SlotCheck {
	return func(existing []types.CourseTimeSlot) error {
		if c, found := FindConflict(existing, proposed); found {
			return fmt.Errorf("%w: %s", interfaces.ErrScheduleConflict, c.Error())
		}
		return nil
	}
}
