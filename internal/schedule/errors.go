package schedule

import (
	"fmt"
	"time"
)

// The merge pipeline distinguishes recoverable per-item failures from
// conditions that abort a whole source. Per-item failures (ValidationError,
// RangeError) are collected into a MergeReport; SchemaError and AlignmentError
// abort ingestion of the source that caused them.

// ValidationError reports a raw event record missing a required field.
// It fails the individual event, never the whole merge.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "event record is missing required field " + e.Field
}

// RangeError reports an event whose start does not fall into any conference
// day window. The event is rejected, not silently placed in a default day.
type RangeError struct {
	Start time.Time
}

func (e *RangeError) Error() string {
	return "illegal start time: " + e.Start.Format(time.RFC3339)
}

// SchemaError reports an external schedule document that matches none of the
// tolerated shapes. It aborts ingestion of that one source.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schedule document does not match any known shape: " + e.Reason
}

// AlignmentError reports that two schedules' day calendar dates disagree at
// the computed day offset. Day alignment is an all-or-nothing precondition of
// a merge, so this aborts the entire merge for the offending source.
type AlignmentError struct {
	TargetDay int
	Want      string
	Got       string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("day %d of the other schedule (%s) does not match the primary schedule (%s)",
		e.TargetDay, e.Got, e.Want)
}

// FormatError reports malformed duration or timestamp text.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}
