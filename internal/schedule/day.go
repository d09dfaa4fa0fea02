package schedule

import "time"

// Day is one conference day. A conference day is a program day, not a
// calendar day: its window usually opens at 06:00 and closes at 04:00 the
// next calendar morning, so a 02:30 lightning talk still belongs to the
// previous program day.
type Day struct {
	Index int
	Date  string // calendar date, YYYY-MM-DD
	Start time.Time
	End   time.Time

	roomOrder []string
	rooms     map[string][]*Event
}

func newDay(index int, date string, start, end time.Time) *Day {
	return &Day{
		Index: index,
		Date:  date,
		Start: start,
		End:   end,
		rooms: make(map[string][]*Event),
	}
}

// Contains reports whether t falls into this day's half-open window
// [Start, End). An event at exactly Start belongs to this day; an event at
// exactly End belongs to the next day. Every containment decision in the
// system goes through this method so the rule cannot drift.
func (d *Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Rooms returns the room names of this day in registration order. Output
// order is part of the contract: signage tooling displays rooms in the order
// they were registered.
func (d *Day) Rooms() []string {
	out := make([]string, len(d.roomOrder))
	copy(out, d.roomOrder)
	return out
}

// Events returns the event list of the named room, in insertion order.
func (d *Day) Events(room string) []*Event {
	return d.rooms[room]
}

func (d *Day) hasRoom(name string) bool {
	_, ok := d.rooms[name]
	return ok
}

func (d *Day) ensureRoom(name string) {
	if d.hasRoom(name) {
		return
	}
	d.rooms[name] = nil
	d.roomOrder = append(d.roomOrder, name)
}

func (d *Day) appendEvents(room string, events []*Event) {
	d.ensureRoom(room)
	d.rooms[room] = append(d.rooms[room], events...)
}

func (d *Day) renameRoom(oldName, newName string) {
	if !d.hasRoom(oldName) {
		return
	}
	events := d.rooms[oldName]
	delete(d.rooms, oldName)
	for _, ev := range events {
		ev.Room = newName
	}
	d.rooms[newName] = events
	for i, name := range d.roomOrder {
		if name == oldName {
			d.roomOrder[i] = newName
			break
		}
	}
}

func (d *Day) removeRoom(name string) {
	if !d.hasRoom(name) {
		return
	}
	delete(d.rooms, name)
	for i, n := range d.roomOrder {
		if n == name {
			d.roomOrder = append(d.roomOrder[:i], d.roomOrder[i+1:]...)
			break
		}
	}
}

func (d *Day) copy() *Day {
	out := newDay(d.Index, d.Date, d.Start, d.End)
	for _, room := range d.roomOrder {
		events := make([]*Event, 0, len(d.rooms[room]))
		for _, ev := range d.rooms[room] {
			events = append(events, ev.Copy())
		}
		out.appendEvents(room, events)
	}
	return out
}
