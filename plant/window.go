package plant

import (
	"fmt"
	"time"
)

// parseHHMM parses an "HH:MM" string into minutes since midnight.
func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid HH:MM time %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t's wall-clock time-of-day falls within the
// window, wrapping midnight when Start > End (e.g. 22:00-06:00).
func (w TimeWindow) Contains(t time.Time) (bool, error) {
	startMin, err := parseHHMM(w.Start)
	if err != nil {
		return false, err
	}
	endMin, err := parseHHMM(w.End)
	if err != nil {
		return false, err
	}
	nowMin := t.Hour()*60 + t.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin, nil
	}
	// Wraps midnight.
	return nowMin >= startMin || nowMin < endMin, nil
}

// AnyContains reports whether any window in windows contains t.
// An empty window list means "always allowed" (no restriction).
func AnyContains(windows []TimeWindow, t time.Time) (bool, error) {
	if len(windows) == 0 {
		return true, nil
	}
	for _, w := range windows {
		ok, err := w.Contains(t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
