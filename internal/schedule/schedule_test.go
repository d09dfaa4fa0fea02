package schedule

import (
	"errors"
	"testing"
	"time"
)

// testTemplate is the fixture conference used across the package tests: two
// program days between Christmas and New Year, default 06:00-04:00 windows.
func testTemplate() Template {
	return Template{
		Acronym:   "testcon24",
		Title:     "Test Conference 2024",
		StartDate: "2024-12-27",
		DaysCount: 2,
		Timezone:  "Europe/Amsterdam",
	}
}

func mustSchedule(t *testing.T) *Schedule {
	t.Helper()
	s, err := FromTemplate(testTemplate())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testEvent(id int, title, room string, start time.Time) *Event {
	return &Event{
		ID:       id,
		GUID:     GenerateUUID(title),
		Title:    title,
		Room:     room,
		Date:     start,
		Duration: 30 * time.Minute,
		Language: "en",
		Type:     "lecture",
	}
}

func TestFromTemplate(t *testing.T) {
	s := mustSchedule(t)

	if s.Conference.Acronym != "testcon24" {
		t.Errorf("acronym = %q", s.Conference.Acronym)
	}
	if s.Conference.Start != "2024-12-27" || s.Conference.End != "2024-12-28" {
		t.Errorf("conference range = %q .. %q", s.Conference.Start, s.Conference.End)
	}
	days := s.Days()
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}

	loc := s.Location()
	wantStart := time.Date(2024, 12, 27, 6, 0, 0, 0, loc)
	wantEnd := time.Date(2024, 12, 28, 4, 0, 0, 0, loc)
	if !days[0].Start.Equal(wantStart) || !days[0].End.Equal(wantEnd) {
		t.Errorf("day 1 window = %v .. %v, want %v .. %v", days[0].Start, days[0].End, wantStart, wantEnd)
	}
	if days[1].Date != "2024-12-28" || days[1].Index != 2 {
		t.Errorf("day 2 = index %d date %q", days[1].Index, days[1].Date)
	}
}

func TestFromTemplateRejectsBadInput(t *testing.T) {
	tmpl := testTemplate()
	tmpl.DaysCount = 0
	if _, err := FromTemplate(tmpl); err == nil {
		t.Error("expected error for zero days")
	}

	tmpl = testTemplate()
	tmpl.StartDate = "27.12.2024"
	if _, err := FromTemplate(tmpl); err == nil {
		t.Error("expected error for non-ISO start date")
	}
}

// TestDayBoundaryExactness pins the half-open day window rule: the window
// start belongs to the day, the window end does not.
func TestDayBoundaryExactness(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	day1 := s.Day(1)

	if !day1.Contains(day1.Start) {
		t.Error("window start must belong to the day")
	}
	if day1.Contains(day1.End) {
		t.Error("window end must not belong to the day")
	}
	if !day1.Contains(day1.End.Add(-time.Second)) {
		t.Error("instant just before the window end must belong to the day")
	}
	if day1.Contains(time.Date(2024, 12, 27, 5, 59, 59, 0, loc)) {
		t.Error("instant before the window start must not belong to the day")
	}
}

func TestDayFromTime(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()

	// 02:30 on the second calendar day is still inside the first program
	// day's window.
	got, err := s.DayFromTime(time.Date(2024, 12, 28, 2, 30, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("02:30 on day 2's calendar date mapped to day %d, want 1", got)
	}

	got, err = s.DayFromTime(time.Date(2024, 12, 28, 11, 0, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("late morning of the second date mapped to day %d, want 2", got)
	}

	// The 04:00-06:00 gap belongs to no day.
	_, err = s.DayFromTime(time.Date(2024, 12, 28, 5, 0, 0, 0, loc))
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RangeError for the window gap, got %v", err)
	}
}

func TestAddEvent(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()

	ev := testEvent(1, "Opening", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))
	if err := s.AddEvent(ev); err != nil {
		t.Fatal(err)
	}
	if got := s.Day(1).Events("Hall A"); len(got) != 1 || got[0] != ev {
		t.Fatalf("day 1 Hall A events = %v", got)
	}

	// Early-morning event lands on the preceding program day.
	night := testEvent(2, "Night Session", "Hall A", time.Date(2024, 12, 28, 2, 30, 0, 0, loc))
	if err := s.AddEvent(night); err != nil {
		t.Fatal(err)
	}
	if got := s.Day(1).Events("Hall A"); len(got) != 2 {
		t.Fatalf("night event not placed on day 1, day 1 has %d events", len(got))
	}

	// Outside every window.
	stray := testEvent(3, "Stray", "Hall A", time.Date(2025, 1, 10, 12, 0, 0, 0, loc))
	err := s.AddEvent(stray)
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RangeError, got %v", err)
	}

	noRoom := testEvent(4, "No Room", "", time.Date(2024, 12, 27, 12, 0, 0, 0, loc))
	var ve *ValidationError
	if err := s.AddEvent(noRoom); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for missing room, got %v", err)
	}
}

func TestAddRoomIdempotence(t *testing.T) {
	s := mustSchedule(t)
	room := Room{Name: "Hall A", GUID: GenerateUUID("hall a"), Stream: "s1"}

	s.AddRoom(RoomRecord(room))
	s.AddRoom(RoomRecord(room))

	if got := s.RoomRecords(); len(got) != 1 {
		t.Fatalf("re-adding the same room duplicated the registry: %v", got)
	}
	if got := s.Day(1).Rooms(); len(got) != 1 || got[0] != "Hall A" {
		t.Fatalf("day room keys = %v", got)
	}
	if s.RoomGUID("Hall A") != room.GUID {
		t.Errorf("RoomGUID = %q", s.RoomGUID("Hall A"))
	}
}

func TestRoomOrderIsRegistrationOrder(t *testing.T) {
	s := mustSchedule(t)
	s.AddRooms([]Room{{Name: "Saal 1"}, {Name: "Saal 2"}, {Name: "Saal Z"}})
	s.AddRoom(RoomByName("Workshops"))

	want := []string{"Saal 1", "Saal 2", "Saal Z", "Workshops"}
	got := s.Rooms()
	if len(got) != len(want) {
		t.Fatalf("Rooms() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rooms() = %v, want %v", got, want)
		}
	}
}

func TestRenameRoomsPropagates(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	guid := GenerateUUID("hall a")
	s.AddRoom(RoomRecord(Room{Name: "Hall A", GUID: guid}))

	ev := testEvent(1, "Talk", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))
	if err := s.AddEvent(ev); err != nil {
		t.Fatal(err)
	}

	if err := s.RenameRooms(map[string]RoomRef{"Hall A": RoomByName("Saal A")}); err != nil {
		t.Fatal(err)
	}

	if ev.Room != "Saal A" {
		t.Errorf("event room = %q after rename", ev.Room)
	}
	if got := s.Day(1).Events("Saal A"); len(got) != 1 {
		t.Errorf("day tree lost the events on rename: %v", got)
	}
	if s.Day(1).hasRoom("Hall A") {
		t.Error("old room key still present")
	}
	if s.RoomGUID("Saal A") != guid {
		t.Errorf("rename changed room identity, guid = %q", s.RoomGUID("Saal A"))
	}
	if s.RoomGUID("Hall A") != "" {
		t.Error("old name still mapped to a guid")
	}

	if err := s.RenameRooms(map[string]RoomRef{"Nowhere": RoomByName("X")}); err == nil {
		t.Error("expected error renaming an unknown room")
	}
}

func TestRemoveRoom(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	s.AddRoom(RoomRecord(Room{Name: "Hall A", GUID: GenerateUUID("hall a")}))
	if err := s.AddEvent(testEvent(1, "Talk", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))); err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveRoom("Hall A"); err != nil {
		t.Fatal(err)
	}
	if len(s.Rooms()) != 0 {
		t.Errorf("rooms after removal: %v", s.Rooms())
	}
	if err := s.RemoveRoom("Hall A"); err == nil {
		t.Error("expected error removing an unknown room")
	}
}

func TestFilterKeepsOnlyReferencedRooms(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	guidA := GenerateUUID("hall a")
	s.AddRoom(RoomRecord(Room{Name: "Hall A", GUID: guidA}))
	s.AddRoom(RoomRecord(Room{Name: "Hall B", GUID: GenerateUUID("hall b")}))
	if err := s.AddEvent(testEvent(1, "Keep", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEvent(testEvent(2, "Drop", "Hall B", time.Date(2024, 12, 27, 11, 0, 0, 0, loc))); err != nil {
		t.Fatal(err)
	}

	filtered := s.Filter("channels", []RoomRef{RoomByGUID(guidA)})

	if got := filtered.Rooms(); len(got) != 1 || got[0] != "Hall A" {
		t.Fatalf("filtered rooms = %v", got)
	}
	if filtered.EventByGUID(GenerateUUID("Drop")) != nil {
		t.Error("filtered schedule still contains a dropped room's event")
	}
	if filtered.Conference.Title != "Test Conference 2024 - channels" {
		t.Errorf("filtered title = %q", filtered.Conference.Title)
	}

	// The source schedule is untouched.
	if got := s.Rooms(); len(got) != 2 {
		t.Errorf("filter mutated the source schedule: %v", got)
	}
	if s.EventByGUID(GenerateUUID("Drop")) == nil {
		t.Error("filter removed an event from the source schedule")
	}
}

func TestRemoveEvent(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	ev := testEvent(42, "Talk", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))
	if err := s.AddEvent(ev); err != nil {
		t.Fatal(err)
	}

	if !s.RemoveEventByID(42) {
		t.Fatal("RemoveEventByID reported nothing removed")
	}
	if s.RemoveEventByGUID(ev.GUID) {
		t.Error("event removed twice")
	}
}

func TestComputeStats(t *testing.T) {
	s := mustSchedule(t)
	loc := s.Location()
	first := testEvent(17, "First", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))
	first.Persons = []Person{{ID: "3", Name: "Ann"}, {ID: "900", Name: "Ben"}}
	last := testEvent(205, "Last", "Hall A", time.Date(2024, 12, 28, 20, 0, 0, 0, loc))
	for _, ev := range []*Event{first, last} {
		if err := s.AddEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	st := s.ComputeStats()
	if st.EventsCount != 2 {
		t.Errorf("events = %d", st.EventsCount)
	}
	if st.MinID != 17 || st.MaxID != 205 {
		t.Errorf("id range = %d..%d", st.MinID, st.MaxID)
	}
	if st.PersonMinID != 3 || st.PersonMaxID != 900 {
		t.Errorf("person id range = %d..%d", st.PersonMinID, st.PersonMaxID)
	}
	if !st.FirstEvent.Equal(first.Date) {
		t.Errorf("first event = %v", st.FirstEvent)
	}
	if !st.LastEvent.Equal(last.End()) {
		t.Errorf("last event = %v", st.LastEvent)
	}
}
