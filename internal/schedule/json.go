package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// The JSON export is the schedule's own shape wrapped in
// {"$schema": ..., "schedule": {...}} with deterministic key ordering, so
// version-control diffs between runs stay minimal. Parsing tolerates the two
// structurally deviant shapes seen in the wild (missing envelope, days one
// level too high); anything else is a SchemaError.

// JSON renders the whole document.
func (s *Schedule) JSON(schemaURL string) ([]byte, error) {
	if schemaURL == "" {
		schemaURL = DefaultSchemaURL
	}
	var buf bytes.Buffer
	buf.WriteString(`{"$schema":`)
	u, _ := json.Marshal(schemaURL)
	buf.Write(u)
	buf.WriteString(`,"schedule":`)
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	buf.Write(body)
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// MarshalJSON emits the inner "schedule" object with fixed key order.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, true, "version", s.Version)
	if s.Conference.BaseURL != "" {
		writeKey(&buf, false, "base_url", s.Conference.BaseURL)
	}
	buf.WriteString(`,"conference":`)
	conf, err := s.marshalConference()
	if err != nil {
		return nil, err
	}
	buf.Write(conf)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schedule) marshalConference() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, true, "acronym", s.Conference.Acronym)
	writeKey(&buf, false, "title", s.Conference.Title)
	writeKey(&buf, false, "start", s.Conference.Start)
	writeKey(&buf, false, "end", s.Conference.End)
	writeKey(&buf, false, "daysCount", s.Conference.DaysCount)
	writeKey(&buf, false, "timeslot_duration", s.Conference.TimeslotDuration)
	if s.Conference.TimeZoneName != "" {
		writeKey(&buf, false, "time_zone_name", s.Conference.TimeZoneName)
	}
	rooms := s.Conference.rooms
	if rooms == nil {
		rooms = []Room{}
	}
	writeKey(&buf, false, "rooms", rooms)
	buf.WriteString(`,"days":`)
	buf.WriteByte('[')
	for i, d := range s.days {
		if i > 0 {
			buf.WriteByte(',')
		}
		day, err := d.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(day)
	}
	buf.WriteByte(']')
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON emits the day with its rooms in registration order.
func (d *Day) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, true, "index", d.Index)
	writeKey(&buf, false, "date", d.Date)
	writeKey(&buf, false, "day_start", d.Start.Format(time.RFC3339))
	writeKey(&buf, false, "day_end", d.End.Format(time.RFC3339))
	buf.WriteString(`,"rooms":{`)
	for i, room := range d.roomOrder {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(room)
		buf.Write(name)
		buf.WriteByte(':')
		events := d.rooms[room]
		if events == nil {
			events = []*Event{}
		}
		value, err := json.Marshal(events)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, first bool, key string, value any) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	v, err := json.Marshal(value)
	if err != nil {
		v = []byte("null")
	}
	buf.Write(v)
}

// wire shapes for parsing external documents

type docEnvelope struct {
	Schedule json.RawMessage `json:"schedule"`
}

type docSchedule struct {
	Version    string          `json:"version"`
	BaseURL    string          `json:"base_url"`
	Conference json.RawMessage `json:"conference"`
	Days       json.RawMessage `json:"days"` // tolerated misplaced shape
}

type docConference struct {
	Acronym          string          `json:"acronym"`
	Title            string          `json:"title"`
	Start            string          `json:"start"`
	End              string          `json:"end"`
	DaysCount        int             `json:"daysCount"`
	TimeslotDuration string          `json:"timeslot_duration"`
	TimeZoneName     string          `json:"time_zone_name"`
	BaseURL          string          `json:"base_url"`
	Rooms            []Room          `json:"rooms"`
	Days             json.RawMessage `json:"days"`
}

type docDay struct {
	Index    int             `json:"index"`
	Date     string          `json:"date"`
	DayStart string          `json:"day_start"`
	DayEnd   string          `json:"day_end"`
	Rooms    json.RawMessage `json:"rooms"`
}

// FromDocument parses a persisted schedule document. Two non-conforming
// shapes are normalized before construction: a document missing the
// {"schedule": ...} envelope, and a document whose days list sits on the
// schedule object instead of the conference object.
func FromDocument(data []byte) (*Schedule, error) {
	var envelope docEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	body := envelope.Schedule
	if body == nil {
		// tolerated: envelope missing, document is the schedule object
		body = data
	}

	var sched docSchedule
	if err := json.Unmarshal(body, &sched); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	if sched.Conference == nil {
		return nil, &SchemaError{Reason: "no conference object"}
	}

	var conf docConference
	if err := json.Unmarshal(sched.Conference, &conf); err != nil {
		return nil, &SchemaError{Reason: "malformed conference object: " + err.Error()}
	}

	daysRaw := conf.Days
	if daysRaw == nil {
		// tolerated: days misplaced one level too high
		daysRaw = sched.Days
	}
	if daysRaw == nil {
		return nil, &SchemaError{Reason: "no days list"}
	}

	var loc *time.Location
	if conf.TimeZoneName != "" {
		l, err := time.LoadLocation(conf.TimeZoneName)
		if err != nil {
			return nil, &SchemaError{Reason: "unknown time zone " + conf.TimeZoneName}
		}
		loc = l
	}

	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = sched.BaseURL
	}

	s := &Schedule{
		Version: sched.Version,
		Conference: Conference{
			Acronym:          conf.Acronym,
			Title:            conf.Title,
			Start:            conf.Start,
			End:              conf.End,
			DaysCount:        conf.DaysCount,
			TimeslotDuration: conf.TimeslotDuration,
			TimeZoneName:     conf.TimeZoneName,
			BaseURL:          baseURL,
		},
		roomIDs: make(map[string]string),
		loc:     loc,
	}
	for _, r := range conf.Rooms {
		s.Conference.rooms = append(s.Conference.rooms, r)
		if r.GUID != "" {
			s.roomIDs[r.Name] = r.GUID
		}
	}

	var days []json.RawMessage
	if err := json.Unmarshal(daysRaw, &days); err != nil {
		return nil, &SchemaError{Reason: "malformed days list: " + err.Error()}
	}
	for _, rawDay := range days {
		var dd docDay
		if err := json.Unmarshal(rawDay, &dd); err != nil {
			return nil, &SchemaError{Reason: "malformed day: " + err.Error()}
		}
		start, err := parseFlexibleTime(dd.DayStart, s.Location())
		if err != nil {
			return nil, &SchemaError{Reason: "day " + dd.Date + " has no parsable day_start"}
		}
		end, err := parseFlexibleTime(dd.DayEnd, s.Location())
		if err != nil {
			return nil, &SchemaError{Reason: "day " + dd.Date + " has no parsable day_end"}
		}
		day := newDay(dd.Index, dd.Date, start, end)
		s.days = append(s.days, day)

		if dd.Rooms == nil {
			continue
		}
		roomNames, err := orderedKeys(dd.Rooms)
		if err != nil {
			return nil, &SchemaError{Reason: "malformed rooms object: " + err.Error()}
		}
		var rooms map[string][]json.RawMessage
		if err := json.Unmarshal(dd.Rooms, &rooms); err != nil {
			return nil, &SchemaError{Reason: "malformed rooms object: " + err.Error()}
		}
		for _, room := range roomNames {
			day.ensureRoom(room)
			for _, rawEvent := range rooms[room] {
				record, err := decodeRecord(rawEvent)
				if err != nil {
					return nil, &SchemaError{Reason: "malformed event: " + err.Error()}
				}
				ev, err := EventFromRecord(record, s.Location())
				if err != nil {
					return nil, fmt.Errorf("event in room %q on %s: %w", room, dd.Date, err)
				}
				if ev.Room == "" {
					ev.Room = room
				}
				day.appendEvents(room, []*Event{ev})
			}
		}
	}

	if s.Conference.DaysCount != len(s.days) {
		s.Conference.DaysCount = len(s.days)
	}
	s.backfillConferenceDates()
	return s, nil
}

// orderedKeys returns the top-level keys of a JSON object in document order.
// Go maps do not preserve it, and room order is part of the output contract.
func orderedKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
