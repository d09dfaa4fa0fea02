package schedule

import (
	"bytes"
	"encoding/xml"
	"time"
)

// The XML export is a structural transform of the identical in-memory tree
// the JSON export serializes. The pentabarf schema wants some fields as
// attributes (id, guid), plural collections as singular repeated child
// elements, the day count as a "days" attribute-style element on the
// conference, and one <room name="..."> wrapper per room and day. Every
// field present in the JSON tree appears here under its documented renaming.

// DefaultSchemaLocation is the advisory schema reference written to the
// document root.
const DefaultSchemaLocation = "https://c3voc.de/schedule/schema.xsd"

type xmlDocument struct {
	XMLName        xml.Name `xml:"schedule"`
	XSINamespace   string   `xml:"xmlns:xsi,attr"`
	SchemaLocation string   `xml:"xsi:noNamespaceSchemaLocation,attr"`
	Version        string   `xml:"version"`
	Conference     xmlConference
	Days           []xmlDay `xml:"day"`
}

type xmlConference struct {
	XMLName          xml.Name `xml:"conference"`
	Acronym          string   `xml:"acronym"`
	Title            string   `xml:"title"`
	Start            string   `xml:"start"`
	End              string   `xml:"end"`
	Days             int      `xml:"days"`
	TimeslotDuration string   `xml:"timeslot_duration"`
	TimeZoneName     string   `xml:"time_zone_name,omitempty"`
	BaseURL          string   `xml:"base_url,omitempty"`
}

type xmlDay struct {
	Index int       `xml:"index,attr"`
	Date  string    `xml:"date,attr"`
	Start string    `xml:"start,attr"`
	End   string    `xml:"end,attr"`
	Rooms []xmlRoom `xml:"room"`
}

type xmlRoom struct {
	Name   string     `xml:"name,attr"`
	GUID   string     `xml:"guid,attr,omitempty"`
	Events []xmlEvent `xml:"event"`
}

type xmlEvent struct {
	ID          int          `xml:"id,attr"`
	GUID        string       `xml:"guid,attr"`
	Date        string       `xml:"date"`
	Start       string       `xml:"start"`
	Duration    string       `xml:"duration"`
	Room        string       `xml:"room"`
	Slug        string       `xml:"slug,omitempty"`
	URL         string       `xml:"url,omitempty"`
	Title       string       `xml:"title"`
	Subtitle    string       `xml:"subtitle"`
	Track       string       `xml:"track"`
	Type        string       `xml:"type"`
	Language    string       `xml:"language"`
	Abstract    string       `xml:"abstract"`
	Description string       `xml:"description"`
	Recording   xmlRecording `xml:"recording"`
	Persons     xmlPersons   `xml:"persons"`
	Links       xmlLinks     `xml:"links"`
	Attachments *xmlLinks    `xml:"attachments,omitempty"`
}

// xmlRecording pairs the recording license with the do_not_record flag; the
// JSON export keeps them as two separate fields.
type xmlRecording struct {
	License string `xml:"license"`
	Optout  string `xml:"optout"`
}

type xmlPersons struct {
	Person []xmlPerson `xml:"person"`
}

type xmlPerson struct {
	ID   string `xml:"id,attr"`
	Name string `xml:",chardata"`
}

type xmlLinks struct {
	Link []xmlLink `xml:"link"`
}

type xmlLink struct {
	HREF  string `xml:"href,attr"`
	Title string `xml:",chardata"`
}

// XML renders the schedule as a pentabarf schedule.xml document.
func (s *Schedule) XML(schemaLocation string) ([]byte, error) {
	if schemaLocation == "" {
		schemaLocation = DefaultSchemaLocation
	}
	doc := xmlDocument{
		XSINamespace:   "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: schemaLocation,
		Version:        s.Version,
		Conference: xmlConference{
			Acronym:          s.Conference.Acronym,
			Title:            s.Conference.Title,
			Start:            s.Conference.Start,
			End:              s.Conference.End,
			Days:             s.Conference.DaysCount,
			TimeslotDuration: s.Conference.TimeslotDuration,
			TimeZoneName:     s.Conference.TimeZoneName,
			BaseURL:          s.Conference.BaseURL,
		},
	}

	for _, d := range s.days {
		day := xmlDay{
			Index: d.Index,
			Date:  d.Date,
			Start: d.Start.Format(time.RFC3339),
			End:   d.End.Format(time.RFC3339),
		}
		for _, roomName := range d.roomOrder {
			room := xmlRoom{
				Name: roomName,
				GUID: s.roomIDs[roomName],
			}
			for _, ev := range d.rooms[roomName] {
				room.Events = append(room.Events, eventToXML(ev))
			}
			day.Rooms = append(day.Rooms, room)
		}
		doc.Days = append(doc.Days, day)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func eventToXML(ev *Event) xmlEvent {
	out := xmlEvent{
		ID:          ev.ID,
		GUID:        ev.GUID,
		Date:        ev.Date.Format(time.RFC3339),
		Start:       ev.StartClock(),
		Duration:    FormatDuration(ev.Duration),
		Room:        ev.Room,
		Slug:        ev.Slug,
		URL:         ev.URL,
		Title:       ev.Title,
		Subtitle:    ev.Subtitle,
		Track:       ev.Track,
		Type:        ev.Type,
		Language:    ev.Language,
		Abstract:    ev.Abstract,
		Description: ev.Description,
		Recording: xmlRecording{
			License: ev.RecordingLicense,
			Optout:  boolString(ev.DoNotRecord),
		},
	}
	for _, p := range ev.Persons {
		out.Persons.Person = append(out.Persons.Person, xmlPerson{
			ID:   p.ID,
			Name: p.DisplayName(),
		})
	}
	for _, l := range ev.Links {
		out.Links.Link = append(out.Links.Link, xmlLink{HREF: l.URL, Title: l.Title})
	}
	if len(ev.Attachments) > 0 {
		attachments := &xmlLinks{}
		for _, l := range ev.Attachments {
			attachments.Link = append(attachments.Link, xmlLink{HREF: l.URL, Title: l.Title})
		}
		out.Attachments = attachments
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
