package schedule

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"
)

// populatedSchedule builds a two-day schedule exercising the serialization
// corner cases: several persons, bare links, a zero-duration marker event and
// a cross-midnight event.
func populatedSchedule(t *testing.T) *Schedule {
	t.Helper()
	s := mustSchedule(t)
	s.Version = "v1"
	loc := s.Location()
	s.AddRoom(RoomRecord(Room{Name: "Hall A", GUID: GenerateUUID("hall a")}))
	s.AddRoom(RoomRecord(Room{Name: "Hall B", GUID: GenerateUUID("hall b")}))

	opening := testEvent(1, "Opening", "Hall A", time.Date(2024, 12, 27, 10, 0, 0, 0, loc))
	opening.Persons = []Person{{ID: "3", Name: "Ann"}, {ID: "ext-9", Name: "Ben"}}
	opening.Links = []Link{{URL: "https://example.org/", Title: "https://example.org/"}}
	opening.Track = "Main"
	opening.RecordingLicense = "CC BY 4.0"

	marker := testEvent(2, "Doors", "Hall A", time.Date(2024, 12, 27, 9, 0, 0, 0, loc))
	marker.Duration = 0

	night := testEvent(3, "Midnight Show", "Hall B", time.Date(2024, 12, 27, 23, 30, 0, 0, loc))
	night.Duration = 90 * time.Minute // ends 01:00 the next calendar day
	night.DoNotRecord = true

	for _, ev := range []*Event{opening, marker, night} {
		if err := s.AddEvent(ev); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestJSONRoundTrip(t *testing.T) {
	s := populatedSchedule(t)

	first, err := s.JSON("")
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.JSON("")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, again) {
		t.Fatal("re-rendering the same schedule is not byte-identical")
	}

	parsed, err := FromDocument(first)
	if err != nil {
		t.Fatal(err)
	}
	rendered, err := parsed.JSON("")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, rendered) {
		t.Errorf("parse/render round trip diverged:\n--- original\n%s\n--- round-tripped\n%s", first, rendered)
	}
}

func TestJSONShape(t *testing.T) {
	s := populatedSchedule(t)
	data, err := s.JSON("https://example.org/schema.json")
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Schema   string `json:"$schema"`
		Schedule struct {
			Version    string `json:"version"`
			Conference struct {
				Acronym   string `json:"acronym"`
				DaysCount int    `json:"daysCount"`
				Days      []struct {
					Index int            `json:"index"`
					Date  string         `json:"date"`
					Rooms map[string]any `json:"rooms"`
				} `json:"days"`
			} `json:"conference"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Schema != "https://example.org/schema.json" {
		t.Errorf("$schema = %q", doc.Schema)
	}
	if doc.Schedule.Version != "v1" {
		t.Errorf("version = %q", doc.Schedule.Version)
	}
	if doc.Schedule.Conference.DaysCount != 2 || len(doc.Schedule.Conference.Days) != 2 {
		t.Errorf("daysCount = %d, days = %d",
			doc.Schedule.Conference.DaysCount, len(doc.Schedule.Conference.Days))
	}
	day1 := doc.Schedule.Conference.Days[0]
	if day1.Index != 1 || day1.Date != "2024-12-27" {
		t.Errorf("day 1 = %+v", day1)
	}
	if _, ok := day1.Rooms["Hall A"]; !ok {
		t.Errorf("day 1 rooms = %v", day1.Rooms)
	}

	// Registered room order is document order.
	text := string(data)
	if strings.Index(text, `"Hall A"`) > strings.Index(text, `"Hall B"`) {
		t.Error("room order in the document does not follow registration order")
	}
}

func TestFromDocumentToleratedShapes(t *testing.T) {
	s := populatedSchedule(t)
	data, err := s.JSON("")
	if err != nil {
		t.Fatal(err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}

	// Shape 1: missing {"schedule": ...} envelope.
	if _, err := FromDocument(envelope["schedule"]); err != nil {
		t.Errorf("envelope-less document rejected: %v", err)
	}

	// Shape 2: days one level too high, on the schedule object.
	var sched map[string]json.RawMessage
	if err := json.Unmarshal(envelope["schedule"], &sched); err != nil {
		t.Fatal(err)
	}
	var conf map[string]json.RawMessage
	if err := json.Unmarshal(sched["conference"], &conf); err != nil {
		t.Fatal(err)
	}
	sched["days"] = conf["days"]
	delete(conf, "days")
	confRaw, _ := json.Marshal(conf)
	sched["conference"] = confRaw
	schedRaw, _ := json.Marshal(sched)
	misplaced, _ := json.Marshal(map[string]json.RawMessage{"schedule": schedRaw})

	parsed, err := FromDocument(misplaced)
	if err != nil {
		t.Fatalf("days-one-level-high document rejected: %v", err)
	}
	if len(parsed.Days()) != 2 {
		t.Errorf("parsed %d days", len(parsed.Days()))
	}
}

func TestFromDocumentSchemaErrors(t *testing.T) {
	var se *SchemaError
	for _, in := range []string{
		`[]`,
		`{"schedule": {"version": "x"}}`,
		`{"schedule": {"version": "x", "conference": {"acronym": "a"}}}`,
		`not json`,
	} {
		_, err := FromDocument([]byte(in))
		if !errors.As(err, &se) {
			t.Errorf("FromDocument(%q): expected SchemaError, got %v", in, err)
		}
	}
}

func TestXMLMatchesJSONContent(t *testing.T) {
	s := populatedSchedule(t)
	data, err := s.XML("")
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		XMLName        xml.Name `xml:"schedule"`
		SchemaLocation string   `xml:"noNamespaceSchemaLocation,attr"`
		Version        string   `xml:"version"`
		Conference     struct {
			Acronym string `xml:"acronym"`
			Days    int    `xml:"days"`
		} `xml:"conference"`
		Days []struct {
			Index int    `xml:"index,attr"`
			Date  string `xml:"date,attr"`
			Rooms []struct {
				Name   string `xml:"name,attr"`
				GUID   string `xml:"guid,attr"`
				Events []struct {
					ID        int    `xml:"id,attr"`
					GUID      string `xml:"guid,attr"`
					Title     string `xml:"title"`
					Duration  string `xml:"duration"`
					Start     string `xml:"start"`
					Recording struct {
						License string `xml:"license"`
						Optout  string `xml:"optout"`
					} `xml:"recording"`
					Persons []struct {
						ID   string `xml:"id,attr"`
						Name string `xml:",chardata"`
					} `xml:"persons>person"`
					Links []struct {
						HREF string `xml:"href,attr"`
						Name string `xml:",chardata"`
					} `xml:"links>link"`
				} `xml:"event"`
			} `xml:"room"`
		} `xml:"day"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	if doc.Version != "v1" || doc.Conference.Acronym != "testcon24" {
		t.Errorf("header = %q / %q", doc.Version, doc.Conference.Acronym)
	}
	// daysCount in JSON becomes the days element here.
	if doc.Conference.Days != 2 {
		t.Errorf("conference days = %d", doc.Conference.Days)
	}
	if len(doc.Days) != 2 {
		t.Fatalf("day elements = %d", len(doc.Days))
	}

	day1 := doc.Days[0]
	if day1.Index != 1 || day1.Date != "2024-12-27" {
		t.Errorf("day 1 attrs = %+v", day1)
	}
	if len(day1.Rooms) != 2 || day1.Rooms[0].Name != "Hall A" {
		t.Fatalf("day 1 rooms = %+v", day1.Rooms)
	}
	if day1.Rooms[0].GUID != GenerateUUID("hall a") {
		t.Errorf("room guid attr = %q", day1.Rooms[0].GUID)
	}

	type eventFacts struct {
		duration string
		optout   string
		license  string
		persons  int
		links    int
	}
	var opening, marker, night *eventFacts
	for _, room := range day1.Rooms {
		for _, ev := range room.Events {
			rec := &eventFacts{
				duration: ev.Duration,
				optout:   ev.Recording.Optout,
				license:  ev.Recording.License,
				persons:  len(ev.Persons),
				links:    len(ev.Links),
			}
			switch ev.Title {
			case "Opening":
				opening = rec
			case "Doors":
				marker = rec
			case "Midnight Show":
				night = rec
			}
		}
	}
	if opening == nil || marker == nil || night == nil {
		t.Fatal("not every event made it into the XML export")
	}
	if opening.persons != 2 || opening.links != 1 {
		t.Errorf("opening persons/links = %d/%d", opening.persons, opening.links)
	}
	if opening.license != "CC BY 4.0" || opening.optout != "false" {
		t.Errorf("opening recording = %q/%q", opening.license, opening.optout)
	}
	if marker.duration != "0:00" {
		t.Errorf("zero-duration marker = %q", marker.duration)
	}
	if night.optout != "true" {
		t.Errorf("night optout = %q", night.optout)
	}
}

func TestXMLValidatesCleanly(t *testing.T) {
	s := populatedSchedule(t)
	data, err := s.XML("")
	if err != nil {
		t.Fatal(err)
	}
	if findings := ValidateScheduleXML(data, nil); len(findings) != 0 {
		t.Errorf("own export has validation findings: %v", findings)
	}
}
