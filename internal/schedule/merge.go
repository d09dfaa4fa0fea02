package schedule

import (
	"fmt"
	"strconv"
	"time"

	appLog "confsched/internal/log"
)

// MergeOptions carries the per-source policies applied while merging one
// schedule into another.
type MergeOptions struct {
	// IDOffset is added to every local event id to keep the id spaces of
	// independently numbered sources apart.
	IDOffset int

	// RoomMap renames rooms on the way in; it wins over RoomPrefix.
	RoomMap map[string]string

	// RoomPrefix is prepended to every room name that RoomMap leaves alone.
	RoomPrefix string

	// Track overrides the track of every merged event.
	Track string

	// DoNotRecord overrides the recording optout of every merged event.
	DoNotRecord *bool

	// RemoveTitleAdditions re-splits composite titles into title, subtitle
	// and type.
	RemoveTitleAdditions bool

	// IDFromAnswer takes the event id from the answer to the given custom
	// form question instead of applying IDOffset. Used for form-based
	// registration sources.
	IDFromAnswer int

	// RandomizeSmallIDs rederives suspiciously small ids (a sign of a
	// freshly reset source numbering) deterministically from the guid.
	RandomizeSmallIDs bool

	// OverwriteSlug regenerates the slug from acronym, id and title.
	OverwriteSlug bool

	// PrefixPersonIDs namespaces every person id with the given prefix so
	// person identity spaces of different sources cannot collide.
	PrefixPersonIDs string
}

// smallIDThreshold is the largest id still considered "freshly reset" by the
// RandomizeSmallIDs option.
const smallIDThreshold = 100

// RejectedEvent records one event that failed validation during a merge.
type RejectedEvent struct {
	GUID  string
	Title string
	Err   error
}

// MergeReport summarizes one AddEventsFrom call. Event-level failures land
// here instead of aborting the merge.
type MergeReport struct {
	Source      string
	DayOffset   int
	SkippedDays []string
	EventsAdded int
	Rejected    []RejectedEvent
}

// AddEventsFrom merges another schedule's events into this one, applying the
// given per-source options. Day alignment is validated for every day before
// anything is copied, so a misaligned source leaves the target untouched.
//
// Days mapping to before day 1 of this schedule are skipped with a warning.
// Rooms are registered idempotently; events accumulate, so merging the same
// source twice duplicates its events.
func (s *Schedule) AddEventsFrom(other *Schedule, source string, opts MergeOptions) (*MergeReport, error) {
	report := &MergeReport{Source: source}

	offset, err := s.dayOffsetTo(other)
	if err != nil {
		return report, err
	}
	report.DayOffset = offset
	if offset != 0 {
		appLog.Info("calculated conference start day offset", "source", source, "offset", offset)
	}

	// Alignment is an all-or-nothing precondition: validate every day up
	// front so an abort cannot leave a half-merged tree behind.
	for _, day := range other.days {
		target := day.Index + offset
		if target < 1 {
			continue
		}
		targetDay := s.Day(target)
		if targetDay == nil {
			return report, &AlignmentError{TargetDay: target, Want: "(no such day)", Got: day.Date}
		}
		if targetDay.Date != day.Date {
			return report, &AlignmentError{TargetDay: target, Want: targetDay.Date, Got: day.Date}
		}
	}

	// Provenance accumulates across merges.
	if other.Version != "" {
		s.Version += " " + other.Version
	}

	// Register the other schedule's rooms first so room ordering in the
	// output reflects registration order.
	for _, room := range other.Conference.rooms {
		room.Name = opts.targetRoomName(room.Name)
		s.AddRoom(RoomRecord(room))
	}

	usedGUIDs := make(map[string]bool)
	usedIDs := make(map[int]string)
	s.ForeachEvent(func(ev *Event) {
		usedGUIDs[ev.GUID] = true
		usedIDs[ev.ID] = ev.GUID
	})

	for _, day := range other.days {
		target := day.Index + offset
		if target < 1 {
			appLog.Warn("ignoring day before conference start",
				"source", source, "date", day.Date, "conference_start", s.Conference.Start)
			report.SkippedDays = append(report.SkippedDays, day.Date)
			continue
		}

		for _, room := range day.roomOrder {
			targetRoom := opts.targetRoomName(room)

			var incoming []*Event
			for _, src := range day.rooms[room] {
				ev := src.Copy()
				ev.Room = targetRoom
				if ev.Origin == "" {
					ev.Origin = source
				}

				if err := opts.apply(ev, s.Conference.Acronym); err != nil {
					appLog.Warn("rejecting event", "source", source, "guid", ev.GUID, "title", ev.Title, "err", err)
					report.Rejected = append(report.Rejected, RejectedEvent{GUID: ev.GUID, Title: ev.Title, Err: err})
					continue
				}

				s.reconcileGUID(ev, source, usedGUIDs)
				if holder, clash := usedIDs[ev.ID]; clash && holder != ev.GUID {
					appLog.Warn("event id collision after offsetting",
						"source", source, "id", ev.ID, "guid", ev.GUID, "holder", holder)
				}
				usedGUIDs[ev.GUID] = true
				usedIDs[ev.ID] = ev.GUID

				incoming = append(incoming, ev)
			}

			s.AddRoomWithEvents(target, targetRoom, incoming)
			report.EventsAdded += len(incoming)
		}
	}

	return report, nil
}

// dayOffsetTo computes the whole-day offset between this schedule's start
// and the other's, adjusted when the other schedule counts days from 0.
func (s *Schedule) dayOffsetTo(other *Schedule) (int, error) {
	primary, err := parseFlexibleTime(s.Conference.Start, s.Location())
	if err != nil {
		return 0, &SchemaError{Reason: "primary schedule has no parsable conference start"}
	}
	theirs, err := parseFlexibleTime(other.Conference.Start, other.Location())
	if err != nil {
		return 0, &SchemaError{Reason: "other schedule has no parsable conference start"}
	}
	pd := time.Date(primary.Year(), primary.Month(), primary.Day(), 0, 0, 0, 0, time.UTC)
	od := time.Date(theirs.Year(), theirs.Month(), theirs.Day(), 0, 0, 0, 0, time.UTC)
	offset := int(od.Sub(pd).Hours() / 24)

	if len(other.days) > 0 && other.days[0].Index == 0 {
		// zero-based day numbering: index 0 is their first day
		offset++
	}
	return offset, nil
}

// reconcileGUID ensures the event carries a guid that is unique within this
// schedule. Missing guids are derived from stable fields; colliding guids
// are regenerated deterministically from different material.
func (s *Schedule) reconcileGUID(ev *Event, source string, used map[string]bool) {
	if ev.GUID == "" {
		material := ev.URL
		if material == "" {
			material = fmt.Sprintf("%s-%d", source, ev.ID)
		}
		ev.GUID = GenerateUUID(material + ev.Date.Format(time.RFC3339))
	}
	if !used[ev.GUID] {
		return
	}
	appLog.Warn("guid collision, regenerating", "source", source, "guid", ev.GUID, "title", ev.Title)
	for attempt := 0; ; attempt++ {
		candidate := GenerateUUID(fmt.Sprintf("%s:%s:%d", ev.GUID, source, attempt))
		if !used[candidate] {
			ev.GUID = candidate
			return
		}
	}
}

func (o MergeOptions) targetRoomName(room string) string {
	if mapped, ok := o.RoomMap[room]; ok {
		return mapped
	}
	if o.RoomPrefix != "" {
		return o.RoomPrefix + room
	}
	return room
}

// apply rewrites one copied event according to the merge options, in the
// documented order: track, recording optout, title split, id rewrite, small
// id randomization, slug, person id prefix.
func (o MergeOptions) apply(ev *Event, acronym string) error {
	if ev.Title == "" {
		return &ValidationError{Field: "title"}
	}

	if o.Track != "" {
		ev.Track = o.Track
	}
	if o.DoNotRecord != nil {
		ev.DoNotRecord = *o.DoNotRecord
	}
	if o.RemoveTitleAdditions {
		applyTitleSplit(ev)
	}

	if o.IDFromAnswer != 0 {
		id, ok := answerID(ev, o.IDFromAnswer)
		if !ok {
			return &ValidationError{Field: fmt.Sprintf("answer to question %d", o.IDFromAnswer)}
		}
		ev.ID = id
	} else if o.IDOffset != 0 {
		ev.ID += o.IDOffset
	}

	if o.RandomizeSmallIDs && ev.ID < smallIDThreshold {
		ev.ID = DerivedID(ev.GUID, 4)
	}

	if o.OverwriteSlug {
		ev.Slug = fmt.Sprintf("%s-%d-%s", NormalizeName(acronym), ev.ID, NormalizeName(ev.Title))
	}

	if o.PrefixPersonIDs != "" {
		for i := range ev.Persons {
			ev.Persons[i].ID = o.PrefixPersonIDs + ev.Persons[i].ID
		}
	}

	return nil
}

// answerID digs the numeric event id out of a form-based source's answers
// list: entries shaped {"question": {"id": N}, "answer": "17"}.
func answerID(ev *Event, questionID int) (int, bool) {
	answers, ok := ev.Extra["answers"].([]any)
	if !ok {
		return 0, false
	}
	for _, raw := range answers {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var qid int
		switch q := entry["question"].(type) {
		case map[string]any:
			qid = toInt(q["id"])
		default:
			qid = toInt(q)
		}
		if qid != questionID {
			continue
		}
		switch a := entry["answer"].(type) {
		case string:
			if id, err := strconv.Atoi(a); err == nil {
				return id, true
			}
		default:
			if id := toInt(a); id != 0 {
				return id, true
			}
		}
	}
	return 0, false
}
