package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Person is one entry of an event's persons list. The ID is kept as a string
// because merges may prefix it with a per-source namespace; numeric ids are
// still serialized as JSON numbers.
type Person struct {
	ID         string
	Name       string
	PublicName string
	GUID       string
	Org        string
	Email      string
	Role       string
	URL        string
}

// DisplayName returns the name of the person, preferring the plain name over
// the public name.
func (p Person) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.PublicName
}

func (p Person) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, value any) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		v, _ := json.Marshal(value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	if isNumeric(p.ID) {
		field("id", json.RawMessage(p.ID))
	} else {
		field("id", p.ID)
	}
	if p.GUID != "" {
		field("guid", p.GUID)
	}
	if p.Name != "" {
		field("name", p.Name)
	}
	if p.PublicName != "" {
		field("public_name", p.PublicName)
	}
	if p.Org != "" {
		field("org", p.Org)
	}
	if p.Email != "" {
		field("email", p.Email)
	}
	if p.Role != "" {
		field("role", p.Role)
	}
	if p.URL != "" {
		field("url", p.URL)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Link is a {url, title} pair; bare url strings from sources become links
// titled with the url itself.
type Link struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Event is a single scheduled item. The typed fields are the subset the core
// interprets; everything else a source sends rides along in Extra so that a
// round trip through the core loses nothing.
type Event struct {
	ID          int
	GUID        string
	Logo        string
	Date        time.Time // timezone-aware start
	Duration    time.Duration
	Room        string
	Slug        string
	URL         string
	Title       string
	Subtitle    string
	Track       string
	Type        string
	Language    string
	Abstract    string
	Description string

	RecordingLicense string
	DoNotRecord      bool

	Persons     []Person
	Links       []Link
	Attachments []Link

	// Origin names the source system that produced the event.
	Origin string

	// Extra holds pass-through fields the core does not interpret, keyed by
	// their document name. Serialized after the known fields, sorted by key.
	Extra map[string]any
}

// End is the derived end instant, start plus duration.
func (e *Event) End() time.Time {
	return e.Date.Add(e.Duration)
}

// StartClock is the wall-clock start ("H:MM" short form is not used here;
// the document format wants "15:04").
func (e *Event) StartClock() string {
	return e.Date.Format("15:04")
}

// PersonNames returns the display names of all persons, in original order.
func (e *Event) PersonNames() []string {
	out := make([]string, 0, len(e.Persons))
	for _, p := range e.Persons {
		out = append(out, p.DisplayName())
	}
	return out
}

// Copy returns a deep copy. Merging never shares event records between two
// schedules.
func (e *Event) Copy() *Event {
	out := *e
	out.Persons = append([]Person(nil), e.Persons...)
	out.Links = append([]Link(nil), e.Links...)
	out.Attachments = append([]Link(nil), e.Attachments...)
	if e.Extra != nil {
		out.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// EventFromRecord validates and converts an intermediate event record, the
// shape every source adapter hands to the core. Required: guid or id, title,
// date, and duration or end. Unknown keys are preserved in Extra.
func EventFromRecord(data map[string]any, loc *time.Location) (*Event, error) {
	ev := &Event{Extra: make(map[string]any)}
	consumed := make(map[string]bool)

	take := func(keys ...string) (any, string, bool) {
		for _, k := range keys {
			if v, ok := data[k]; ok {
				consumed[k] = true
				if v != nil {
					return v, k, true
				}
			}
		}
		return nil, "", false
	}
	str := func(keys ...string) string {
		v, _, ok := take(keys...)
		if !ok {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	if v, _, ok := take("guid"); ok {
		ev.GUID, _ = v.(string)
	}
	if v, _, ok := take("id"); ok {
		ev.ID = toInt(v)
	}
	if ev.GUID == "" && ev.ID == 0 {
		return nil, &ValidationError{Field: "guid (or id)"}
	}

	ev.Title = str("title")
	if ev.Title == "" {
		return nil, &ValidationError{Field: "title"}
	}

	dateText := str("date")
	if dateText == "" {
		// schedule2-style records carry a full timestamp under "start".
		if v, ok := data["start"].(string); ok && strings.Contains(v, "-") {
			dateText = v
			consumed["start"] = true
		}
	}
	if dateText == "" {
		return nil, &ValidationError{Field: "date"}
	}
	start, err := parseFlexibleTime(dateText, loc)
	if err != nil {
		return nil, err
	}
	ev.Date = start
	consumed["start"] = true

	if v := str("duration"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return nil, err
		}
		ev.Duration = d
	} else if v := str("end"); v != "" {
		end, err := parseFlexibleTime(v, loc)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, &FormatError{Input: v, Reason: "end is before start"}
		}
		ev.Duration = end.Sub(start)
	} else {
		return nil, &ValidationError{Field: "duration (or end)"}
	}

	ev.Room = str("room")
	ev.Slug = str("slug")
	ev.URL = str("url")
	ev.Logo = str("logo")
	ev.Subtitle = str("subtitle")
	ev.Track = str("track")
	ev.Type = str("type")
	ev.Language = str("language")
	ev.Abstract = str("abstract")
	ev.Description = str("description")
	ev.RecordingLicense = str("recording_license")
	ev.Origin = str("origin")

	if v, _, ok := take("do_not_record"); ok {
		b, _ := v.(bool)
		ev.DoNotRecord = b
	}

	if v, _, ok := take("persons"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				ev.Persons = append(ev.Persons, personFromRecord(item))
			}
		}
	}
	if v, _, ok := take("links"); ok {
		ev.Links = linksFromRecord(v)
	}
	if v, _, ok := take("attachments"); ok {
		ev.Attachments = linksFromRecord(v)
	}

	// Everything else is source-specific metadata and survives untouched,
	// except known-empty optional fields which are dropped entirely.
	for k, v := range data {
		if consumed[k] {
			continue
		}
		if v == nil || v == "" {
			continue
		}
		ev.Extra[k] = v
	}

	return ev, nil
}

func personFromRecord(item any) Person {
	switch v := item.(type) {
	case string:
		return Person{Name: v}
	case map[string]any:
		p := Person{}
		if id, ok := v["id"]; ok {
			p.ID = idString(id)
		}
		p.Name, _ = v["name"].(string)
		if s, ok := v["public_name"].(string); ok {
			p.PublicName = s
		} else if s, ok := v["full_public_name"].(string); ok {
			p.PublicName = s
		}
		p.GUID, _ = v["guid"].(string)
		p.Org, _ = v["org"].(string)
		p.Email, _ = v["email"].(string)
		p.Role, _ = v["role"].(string)
		p.URL, _ = v["url"].(string)
		return p
	default:
		return Person{}
	}
}

func linksFromRecord(v any) []Link {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Link, 0, len(list))
	for _, item := range list {
		switch l := item.(type) {
		case string:
			out = append(out, Link{URL: l, Title: l})
		case map[string]any:
			link := Link{}
			link.URL, _ = l["url"].(string)
			link.Title, _ = l["title"].(string)
			if link.Title == "" {
				link.Title = link.URL
			}
			out = append(out, link)
		}
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func idString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case json.Number:
		return n.String()
	case float64:
		return strconv.Itoa(int(n))
	case int:
		return strconv.Itoa(n)
	default:
		return fmt.Sprint(v)
	}
}

// MarshalJSON emits the event with a fixed key order so repeated exports of
// an unchanged schedule are byte-identical.
func (e *Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, value any) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(value)
		if err != nil {
			v = []byte("null")
		}
		buf.Write(v)
	}

	field("id", e.ID)
	field("guid", e.GUID)
	if e.Logo != "" {
		field("logo", e.Logo)
	}
	field("date", e.Date.Format(time.RFC3339))
	field("start", e.StartClock())
	field("duration", FormatDuration(e.Duration))
	field("room", e.Room)
	if e.Slug != "" {
		field("slug", e.Slug)
	}
	if e.URL != "" {
		field("url", e.URL)
	}
	field("title", e.Title)
	field("subtitle", e.Subtitle)
	field("track", e.Track)
	field("type", e.Type)
	field("language", e.Language)
	field("abstract", e.Abstract)
	field("description", e.Description)
	if e.RecordingLicense != "" {
		field("recording_license", e.RecordingLicense)
	}
	field("do_not_record", e.DoNotRecord)
	if e.Origin != "" {
		field("origin", e.Origin)
	}
	persons := e.Persons
	if persons == nil {
		persons = []Person{}
	}
	field("persons", persons)
	links := e.Links
	if links == nil {
		links = []Link{}
	}
	field("links", links)
	if len(e.Attachments) > 0 {
		field("attachments", e.Attachments)
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field(k, e.Extra[k])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Record returns the event as a raw record, the inverse of EventFromRecord.
// Used by the per-event file export and the sink projections.
func (e *Event) Record() map[string]any {
	data, _ := e.MarshalJSON()
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	_ = dec.Decode(&out)
	return out
}

// HubRecord projects the event into the camelCase shape the hub API expects.
// Local scheduling fields are dropped; the projection never mutates the
// event itself.
func (e *Event) HubRecord() map[string]any {
	r := e.Record()
	delete(r, "id")
	delete(r, "type")
	delete(r, "room")
	delete(r, "start")
	delete(r, "date")
	delete(r, "persons")
	delete(r, "duration")
	delete(r, "video_download_url")
	delete(r, "answers")

	out := make(map[string]any, len(r)+4)
	for k, v := range r {
		out[camelCase(k)] = v
	}
	out["localId"] = e.ID
	out["eventType"] = e.Type
	out["startDate"] = e.Date.Format(time.RFC3339)
	minutes := int(e.Duration.Minutes())
	out["duration"] = map[string]any{"hours": minutes / 60, "minutes": minutes % 60}
	return out
}

// PlayoutRecord projects the event into the hall-management shape.
func (e *Event) PlayoutRecord() map[string]any {
	r := e.Record()
	r["talkid"] = e.ID
	for _, k := range []string{
		"id", "type", "start", "persons", "logo", "subtitle",
		"recording_license", "do_not_record", "video_download_url",
		"answers", "links", "attachments",
	} {
		delete(r, k)
	}
	return r
}

// MetaRecord projects everything that is not part of the core scheduling
// model, for the companion metadata export.
func (e *Event) MetaRecord() map[string]any {
	r := e.Record()
	for _, k := range []string{"guid", "slug", "room", "start", "date", "duration", "track"} {
		delete(r, k)
	}
	return r
}

func camelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
