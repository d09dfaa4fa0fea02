package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a pentabarf-style "H:MM" duration string. Hours may
// exceed 24 and carry no upper bound; minutes must be two digits below 60.
func ParseDuration(text string) (time.Duration, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return 0, &FormatError{Input: text, Reason: "expected H:MM"}
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, &FormatError{Input: text, Reason: "hours are not a non-negative number"}
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || minutes < 0 || minutes > 59 {
		return 0, &FormatError{Input: text, Reason: "minutes are not two digits below 60"}
	}

	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// FormatDuration renders a duration as "H:MM" with zero-padded minutes.
// Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// parseFlexibleTime accepts the timestamp spellings seen in schedule
// documents: full RFC 3339, a zone-less timestamp, or a bare date. Zone-less
// forms are interpreted in loc.
func parseFlexibleTime(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", text, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, loc); err == nil {
		return t, nil
	}
	return time.Time{}, &FormatError{Input: text, Reason: "not an ISO 8601 timestamp or date"}
}
