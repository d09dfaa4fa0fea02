package schedule

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// ValidateScheduleXML runs advisory structural checks over an emitted
// schedule.xml document and returns the list of findings. Validation never
// gates publishing: some long-standing producers emit borderline documents
// that have been tolerated for years, so callers log findings and move on.
//
// Filters is a noise-suppression list; a finding containing any of the
// filter substrings is dropped. When findings were suppressed, the last
// returned line says so.
func ValidateScheduleXML(data []byte, filters []string) []string {
	var findings []string
	report := func(format string, args ...any) {
		findings = append(findings, fmt.Sprintf(format, args...))
	}

	var doc struct {
		Version    string `xml:"version"`
		Conference struct {
			Acronym string `xml:"acronym"`
			Days    int    `xml:"days"`
		} `xml:"conference"`
		Days []struct {
			Index int    `xml:"index,attr"`
			Date  string `xml:"date,attr"`
			Rooms []struct {
				Name   string `xml:"name,attr"`
				Events []struct {
					ID       int    `xml:"id,attr"`
					GUID     string `xml:"guid,attr"`
					Date     string `xml:"date"`
					Duration string `xml:"duration"`
					Room     string `xml:"room"`
					Title    string `xml:"title"`
				} `xml:"event"`
			} `xml:"room"`
		} `xml:"day"`
	}

	if err := xml.Unmarshal(data, &doc); err != nil {
		return []string{"document is not well-formed XML: " + err.Error()}
	}

	if doc.Version == "" {
		report("document has no version")
	}
	if doc.Conference.Days != len(doc.Days) {
		report("conference days count %d does not match %d day elements",
			doc.Conference.Days, len(doc.Days))
	}

	seenGUIDs := make(map[string]string)
	for _, day := range doc.Days {
		for _, room := range day.Rooms {
			for _, ev := range room.Events {
				where := fmt.Sprintf("event %d in room %q on day %d", ev.ID, room.Name, day.Index)
				if ev.GUID == "" {
					report("%s has no guid", where)
				} else if prev, dup := seenGUIDs[ev.GUID]; dup {
					report("%s duplicates guid of %s", where, prev)
				} else {
					seenGUIDs[ev.GUID] = where
				}
				if ev.Title == "" {
					report("%s has no title", where)
				}
				if _, err := time.Parse(time.RFC3339, ev.Date); err != nil {
					report("%s has unparsable date %q", where, ev.Date)
				}
				if _, err := ParseDuration(ev.Duration); err != nil {
					report("%s has unparsable duration %q", where, ev.Duration)
				}
				if ev.Room != room.Name {
					report("%s carries room %q but is stored under %q", where, ev.Room, room.Name)
				}
			}
		}
	}

	if len(filters) == 0 {
		return findings
	}
	kept := findings[:0]
	suppressed := 0
	for _, f := range findings {
		drop := false
		for _, filter := range filters {
			if filter != "" && strings.Contains(f, filter) {
				drop = true
				break
			}
		}
		if drop {
			suppressed++
			continue
		}
		kept = append(kept, f)
	}
	if suppressed > 0 {
		kept = append(kept, fmt.Sprintf("(%d findings hidden by validation filter)", suppressed))
	}
	return kept
}
