package schedule

import (
	"fmt"
	"time"

	appLog "confsched/internal/log"
)

// DefaultSchemaURL is the document schema the JSON export points at.
const DefaultSchemaURL = "https://c3voc.de/schedule/schema.json"

// Conference is the per-run conference metadata block.
type Conference struct {
	Acronym          string
	Title            string
	Start            string // calendar date or timestamp, kept verbatim
	End              string
	DaysCount        int
	TimeslotDuration string
	TimeZoneName     string
	BaseURL          string

	// rooms is the conference-level room registry, in registration order.
	rooms []Room
}

// Template describes how to construct an empty conference schedule.
type Template struct {
	Acronym          string
	Title            string
	StartDate        string // YYYY-MM-DD of the first conference day
	DaysCount        int
	TimeslotDuration string
	Timezone         string

	// DayStart/DayEnd are offsets from each day's calendar midnight. The
	// defaults open a day at 06:00 and close it at 04:00 the next calendar
	// morning, so very early talks land in the preceding program day.
	DayStart time.Duration
	DayEnd   time.Duration
}

// Schedule owns the conference metadata and the day/room/event tree. All
// mutation goes through its methods; events and rooms are value-like records
// owned by exactly one Schedule.
type Schedule struct {
	Version    string
	Conference Conference

	days []*Day

	// roomIDs maps room display names to guids. It backs rename propagation
	// and the per-event export's room_id field.
	roomIDs map[string]string

	loc *time.Location
}

// FromTemplate builds an empty schedule with DaysCount contiguous day
// records. The day windows follow Template.DayStart/DayEnd.
func FromTemplate(tmpl Template) (*Schedule, error) {
	if tmpl.DaysCount < 1 {
		return nil, fmt.Errorf("template needs at least one day, got %d", tmpl.DaysCount)
	}
	if tmpl.Timezone == "" {
		tmpl.Timezone = "Europe/Amsterdam"
	}
	loc, err := time.LoadLocation(tmpl.Timezone)
	if err != nil {
		return nil, err
	}
	first, err := time.ParseInLocation("2006-01-02", tmpl.StartDate, loc)
	if err != nil {
		return nil, &FormatError{Input: tmpl.StartDate, Reason: "start date must be YYYY-MM-DD"}
	}
	dayStart := tmpl.DayStart
	if dayStart == 0 {
		dayStart = 6 * time.Hour
	}
	dayEnd := tmpl.DayEnd
	if dayEnd == 0 {
		dayEnd = 28 * time.Hour // 04:00 the next calendar day
	}
	if dayEnd <= dayStart {
		return nil, fmt.Errorf("day window end offset %s is not after start offset %s", dayEnd, dayStart)
	}
	slot := tmpl.TimeslotDuration
	if slot == "" {
		slot = "00:10"
	}

	s := &Schedule{
		Version: time.Now().Format("2006-01-02 15:04"),
		Conference: Conference{
			Acronym:          tmpl.Acronym,
			Title:            tmpl.Title,
			Start:            first.Format("2006-01-02"),
			End:              first.AddDate(0, 0, tmpl.DaysCount-1).Format("2006-01-02"),
			DaysCount:        tmpl.DaysCount,
			TimeslotDuration: slot,
			TimeZoneName:     tmpl.Timezone,
		},
		roomIDs: make(map[string]string),
		loc:     loc,
	}

	for i := 0; i < tmpl.DaysCount; i++ {
		date := first.AddDate(0, 0, i)
		s.days = append(s.days, newDay(
			i+1,
			date.Format("2006-01-02"),
			date.Add(dayStart),
			date.Add(dayEnd),
		))
	}
	return s, nil
}

// Location returns the conference timezone.
func (s *Schedule) Location() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	return time.UTC
}

// Days returns the ordered day list.
func (s *Schedule) Days() []*Day {
	return s.days
}

// Day returns the day with the given 1-based index, or nil.
func (s *Schedule) Day(index int) *Day {
	for _, d := range s.days {
		if d.Index == index {
			return d
		}
	}
	return nil
}

// Copy returns a deep copy of the schedule. A non-empty name is appended to
// the conference title, marking derived views.
func (s *Schedule) Copy(name string) *Schedule {
	out := &Schedule{
		Version:    s.Version,
		Conference: s.Conference,
		roomIDs:    make(map[string]string, len(s.roomIDs)),
		loc:        s.loc,
	}
	out.Conference.rooms = append([]Room(nil), s.Conference.rooms...)
	if name != "" {
		out.Conference.Title += " - " + name
	}
	for k, v := range s.roomIDs {
		out.roomIDs[k] = v
	}
	for _, d := range s.days {
		out.days = append(out.days, d.copy())
	}
	return out
}

// EmptyCopy returns a schedule with the same conference and day windows but
// no rooms and no events. Source adapters build their output against this.
func (s *Schedule) EmptyCopy(name string) *Schedule {
	out := &Schedule{
		Version:    s.Version,
		Conference: s.Conference,
		roomIDs:    make(map[string]string),
		loc:        s.loc,
	}
	out.Conference.rooms = nil
	if name != "" {
		out.Conference.Title += " - " + name
	}
	for _, d := range s.days {
		out.days = append(out.days, newDay(d.Index, d.Date, d.Start, d.End))
	}
	return out
}

// DayFromTime returns the 1-based index of the day whose [start, end) window
// contains t. An event that matches no window is a data error, reported as a
// RangeError.
func (s *Schedule) DayFromTime(t time.Time) (int, error) {
	for _, d := range s.days {
		if d.Contains(t) {
			return d.Index, nil
		}
	}
	return 0, &RangeError{Start: t}
}

// AddRoom registers a room. The name-only form just ensures the name exists
// as a key on every day. The structured form additionally registers the room
// record at conference level and in the name-to-guid index; re-adding a room
// with an identical guid is a no-op so repeated source merges do not
// duplicate the registry.
func (s *Schedule) AddRoom(ref RoomRef) {
	if room, ok := ref.Record(); ok {
		if existing, ok := s.roomIDs[room.Name]; ok {
			if existing == room.GUID {
				return
			}
			if room.GUID != "" && existing != "" {
				appLog.Warn("room already registered under a different guid",
					"room", room.Name, "have", existing, "new", room.GUID)
			}
		}
		found := false
		for i := range s.Conference.rooms {
			if s.Conference.rooms[i].Name == room.Name {
				s.Conference.rooms[i] = room
				found = true
				break
			}
		}
		if !found {
			s.Conference.rooms = append(s.Conference.rooms, room)
		}
		if room.GUID != "" {
			s.roomIDs[room.Name] = room.GUID
		}
		for _, d := range s.days {
			d.ensureRoom(room.Name)
		}
		return
	}

	name := ref.DisplayName()
	if name == "" {
		return
	}
	for _, d := range s.days {
		d.ensureRoom(name)
	}
}

// AddRooms registers several rooms preserving order.
func (s *Schedule) AddRooms(rooms []Room) {
	for _, r := range rooms {
		s.AddRoom(RoomRecord(r))
	}
}

// Rooms returns all room names in registration order: conference-registered
// rooms first, then names that only appear in day trees.
func (s *Schedule) Rooms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.Conference.rooms {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	for _, d := range s.days {
		for _, name := range d.roomOrder {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// RoomRecords returns the registered room records in registration order.
func (s *Schedule) RoomRecords() []Room {
	return append([]Room(nil), s.Conference.rooms...)
}

// RoomByGUID finds a registered room by guid.
func (s *Schedule) RoomByGUID(guid string) (Room, bool) {
	for _, r := range s.Conference.rooms {
		if r.GUID == guid {
			return r, true
		}
	}
	return Room{}, false
}

// RoomGUID returns the guid a room name is registered under.
func (s *Schedule) RoomGUID(name string) string {
	return s.roomIDs[name]
}

// RenameRooms renames rooms across the whole schedule in one atomic rewrite:
// registry entry, name-to-guid index, every day's room key and every event's
// room field. Keys are looked up as names first, then as guids. A RoomRef
// carrying a full record also replaces the registered guid; a name-only
// target keeps the existing guid, so renames do not change room identity.
func (s *Schedule) RenameRooms(mapping map[string]RoomRef) error {
	for key, target := range mapping {
		oldName := key
		if _, ok := s.roomIDs[oldName]; !ok && !s.hasRoomName(oldName) {
			// try guid lookup
			found := ""
			for name, guid := range s.roomIDs {
				if guid == key {
					found = name
					break
				}
			}
			if found == "" {
				return fmt.Errorf("cannot rename unknown room %q", key)
			}
			oldName = found
		}

		newName := target.DisplayName()
		if newName == "" {
			return fmt.Errorf("rename target for %q has no name", key)
		}
		newGUID := s.roomIDs[oldName]
		if record, ok := target.Record(); ok && record.GUID != "" {
			newGUID = record.GUID
		}

		// registry entry
		for i := range s.Conference.rooms {
			if s.Conference.rooms[i].Name == oldName {
				if record, ok := target.Record(); ok {
					record.Name = newName
					s.Conference.rooms[i] = record
				} else {
					s.Conference.rooms[i].Name = newName
				}
				break
			}
		}

		// name -> guid index
		delete(s.roomIDs, oldName)
		if newGUID != "" {
			s.roomIDs[newName] = newGUID
		}

		// day tree and events
		for _, d := range s.days {
			d.renameRoom(oldName, newName)
		}
		appLog.Debug("room renamed", "from", oldName, "to", newName, "guid", newGUID)
	}
	return nil
}

func (s *Schedule) hasRoomName(name string) bool {
	for _, r := range s.Conference.rooms {
		if r.Name == name {
			return true
		}
	}
	for _, d := range s.days {
		if d.hasRoom(name) {
			return true
		}
	}
	return false
}

// RemoveRoom deletes a room from the registry and from every day, discarding
// its events. Removing an unknown room is an error; callers doing
// conditional cleanup are expected to check first.
func (s *Schedule) RemoveRoom(name string) error {
	if !s.hasRoomName(name) {
		return fmt.Errorf("cannot remove unknown room %q", name)
	}
	for i, r := range s.Conference.rooms {
		if r.Name == name {
			s.Conference.rooms = append(s.Conference.rooms[:i], s.Conference.rooms[i+1:]...)
			break
		}
	}
	delete(s.roomIDs, name)
	for _, d := range s.days {
		d.removeRoom(name)
	}
	return nil
}

// AddEvent resolves the event's room, creating the room and day slot if
// necessary, and appends the event to the owning day. Event order within a
// room is insertion order; callers that need chronological output must
// insert chronologically.
func (s *Schedule) AddEvent(ev *Event) error {
	if ev.Room == "" {
		return &ValidationError{Field: "room"}
	}
	dayIndex, err := s.DayFromTime(ev.Date)
	if err != nil {
		return err
	}
	day := s.Day(dayIndex)
	day.appendEvents(ev.Room, []*Event{ev})
	return nil
}

// AddRoomWithEvents bulk-appends a room's event list to a day. Existing
// events in that room and day are preserved; repeated merges accumulate.
func (s *Schedule) AddRoomWithEvents(dayIndex int, room string, events []*Event) {
	if len(events) == 0 {
		return
	}
	day := s.Day(dayIndex)
	if day == nil {
		appLog.Warn("dropping events for unknown day", "day", dayIndex, "room", room, "events", len(events))
		return
	}
	day.appendEvents(room, events)
}

// ForeachEvent calls fn for every event in day, then room, then insertion
// order. fn may mutate the event in place.
func (s *Schedule) ForeachEvent(fn func(*Event)) {
	for _, d := range s.days {
		for _, room := range d.roomOrder {
			for _, ev := range d.rooms[room] {
				fn(ev)
			}
		}
	}
}

// EventByGUID returns the event with the given guid, or nil.
func (s *Schedule) EventByGUID(guid string) *Event {
	var found *Event
	s.ForeachEvent(func(ev *Event) {
		if found == nil && ev.GUID == guid {
			found = ev
		}
	})
	return found
}

// RemoveEventByGUID removes the event with the given guid. Reports whether
// an event was removed.
func (s *Schedule) RemoveEventByGUID(guid string) bool {
	return s.removeEvent(func(ev *Event) bool { return ev.GUID == guid })
}

// RemoveEventByID removes the event with the given local id.
func (s *Schedule) RemoveEventByID(id int) bool {
	return s.removeEvent(func(ev *Event) bool { return ev.ID == id })
}

func (s *Schedule) removeEvent(match func(*Event) bool) bool {
	for _, d := range s.days {
		for room, events := range d.rooms {
			for i, ev := range events {
				if match(ev) {
					d.rooms[room] = append(events[:i], events[i+1:]...)
					return true
				}
			}
		}
	}
	return false
}

// Filter produces a deep-copied sub-schedule containing only the referenced
// rooms. Room references may select by name, guid or record; the source
// schedule is left untouched.
func (s *Schedule) Filter(name string, rooms []RoomRef) *Schedule {
	keep := make(map[string]bool)
	for _, ref := range rooms {
		if record, ok := ref.Record(); ok {
			if record.GUID != "" {
				for roomName, guid := range s.roomIDs {
					if guid == record.GUID {
						keep[roomName] = true
					}
				}
			}
			if record.Name != "" {
				keep[record.Name] = true
			}
			continue
		}
		if ref.guid != "" {
			for roomName, guid := range s.roomIDs {
				if guid == ref.guid {
					keep[roomName] = true
				}
			}
			continue
		}
		keep[ref.name] = true
	}

	out := s.Copy(name)
	for _, roomName := range out.Rooms() {
		if !keep[roomName] {
			// ignore error: rooms may exist in the registry only
			_ = out.RemoveRoom(roomName)
		}
	}
	return out
}

// Stats is a full-scan summary of a schedule. It is computed on demand and
// is stale after any mutation.
type Stats struct {
	EventsCount int
	MinID       int
	MaxID       int
	PersonMinID int
	PersonMaxID int
	FirstEvent  time.Time
	LastEvent   time.Time
}

// ComputeStats scans the whole tree.
func (s *Schedule) ComputeStats() Stats {
	var st Stats
	s.ForeachEvent(func(ev *Event) {
		if st.EventsCount == 0 || ev.ID < st.MinID {
			st.MinID = ev.ID
		}
		if ev.ID > st.MaxID {
			st.MaxID = ev.ID
		}
		if st.EventsCount == 0 || ev.Date.Before(st.FirstEvent) {
			st.FirstEvent = ev.Date
		}
		if end := ev.End(); end.After(st.LastEvent) {
			st.LastEvent = end
		}
		for _, p := range ev.Persons {
			if !isNumeric(p.ID) {
				continue
			}
			id := toInt(p.ID)
			if st.PersonMinID == 0 || id < st.PersonMinID {
				st.PersonMinID = id
			}
			if id > st.PersonMaxID {
				st.PersonMaxID = id
			}
		}
		st.EventsCount++
	})
	return st
}

// LogStats writes the run-summary lines for this schedule.
func (s *Schedule) LogStats(source string) {
	st := s.ComputeStats()
	appLog.Info("schedule stats",
		"source", source,
		"from", s.Conference.Start,
		"to", s.Conference.End,
		"events", st.EventsCount,
		"min_id", st.MinID,
		"max_id", st.MaxID,
		"person_min_id", st.PersonMinID,
		"person_max_id", st.PersonMaxID,
	)
	appLog.Info("schedule rooms", "source", source, "rooms", fmt.Sprintf("%v", s.Rooms()))
}

// backfillConferenceDates fills conference start/end from the earliest and
// latest event when the source document carried none.
func (s *Schedule) backfillConferenceDates() {
	if s.Conference.Start != "" && s.Conference.End != "" {
		return
	}
	st := s.ComputeStats()
	if st.EventsCount == 0 {
		return
	}
	if s.Conference.Start == "" {
		s.Conference.Start = st.FirstEvent.In(s.Location()).Format("2006-01-02")
	}
	if s.Conference.End == "" {
		s.Conference.End = st.LastEvent.In(s.Location()).Format("2006-01-02")
	}
}
