package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"confsched/internal/fetch"
	appLog "confsched/internal/log"
	"confsched/internal/schedule"
)

const maxOccurrencesPerEvent = 500

// Webcal loads an iCal feed and lifts its VEVENTs into a schedule tree built
// on the local conference template. iCal feeds carry no room registry, no
// numeric ids and no day structure, so everything beyond start/end/summary
// is synthesized here.
type Webcal struct {
	Spec     Spec
	Template schedule.Template
}

func (w *Webcal) Name() string { return w.Spec.Name }

func (w *Webcal) Load(ctx context.Context, f *fetch.Fetcher) (*schedule.Schedule, error) {
	res, err := f.Fetch(ctx, fetch.Source{Name: w.Spec.Name, URL: w.Spec.URL, Token: w.Spec.Token})
	if err != nil {
		return nil, err
	}
	return ParseWebcal(w.Spec, w.Template, res.Body)
}

// ParseWebcal builds a schedule from a raw iCal payload. Events that cannot
// be represented (all-day, unparsable, outside the conference window) are
// logged and skipped; only a feed-level parse failure is an error.
func ParseWebcal(spec Spec, tmpl schedule.Template, body []byte) (*schedule.Schedule, error) {
	if len(body) == 0 {
		return nil, errors.New("empty iCal body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source %s: parse iCal: %w", spec.Name, err)
	}

	sched, err := schedule.FromTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	sched.Version = spec.Name + " webcal"

	// The conference window bounds recurrence expansion.
	days := sched.Days()
	windowStart := days[0].Start
	windowEnd := days[len(days)-1].End

	added, skipped := 0, 0
	for _, ve := range cal.Events() {
		events, perr := webcalEvents(spec, ve, windowStart, windowEnd, sched.Location())
		if perr != nil {
			appLog.Warn("webcal event skipped", "source", spec.Name, "reason", perr.Error())
			skipped++
			continue
		}
		for _, ev := range events {
			if aerr := sched.AddEvent(ev); aerr != nil {
				appLog.Warn("webcal event outside conference window",
					"source", spec.Name, "title", ev.Title, "start", ev.Date.Format(time.RFC3339))
				skipped++
				continue
			}
			added++
		}
	}

	appLog.Info("webcal loaded", "source", spec.Name, "events", added, "skipped", skipped)
	return sched, nil
}

// webcalEvents converts one VEVENT into canonical events, expanding an RRULE
// into per-occurrence events within the window.
func webcalEvents(spec Spec, ve *ical.VEvent, windowStart, windowEnd time.Time, loc *time.Location) ([]*schedule.Event, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return nil, errors.New("missing UID")
	}
	uid := uidProp.Value

	summary := propValue(ve, ical.ComponentPropertySummary)
	if summary == "" {
		return nil, fmt.Errorf("event %s has no summary", uid)
	}

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if !strings.Contains(dtStart.Value, "T") {
			return nil, fmt.Errorf("event %s is all-day", uid)
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", uid, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", uid, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("event %s has no duration", uid)
	}
	duration := end.Sub(start)

	starts := []time.Time{start}
	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil && rruleProp.Value != "" {
		starts, err = expandRRule(rruleProp.Value, start, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", uid, err)
		}
	}

	recurring := len(starts) > 1
	out := make([]*schedule.Event, 0, len(starts))
	for _, occStart := range starts {
		ev := baseWebcalEvent(spec, ve, summary, loc)
		ev.Date = occStart.In(loc)
		ev.Duration = duration

		// Recurring instances need distinct guids; single events keep a
		// stable identity derived from the feed's UID.
		if recurring {
			ev.GUID = schedule.GenerateUUID(uid + "/" + occStart.UTC().Format(time.RFC3339))
		} else if parsed, uerr := uuid.Parse(uid); uerr == nil {
			ev.GUID = parsed.String()
		} else {
			ev.GUID = schedule.GenerateUUID(uid)
		}
		ev.ID = schedule.DerivedID(ev.GUID, 4)
		out = append(out, ev)
	}
	return out, nil
}

func baseWebcalEvent(spec Spec, ve *ical.VEvent, summary string, loc *time.Location) *schedule.Event {
	ev := &schedule.Event{
		Origin:      spec.Name,
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Language:    "en",
		Type:        "other",
	}

	main, subtitle, typ := schedule.SplitTitleAdditions(summary)
	ev.Title = main
	ev.Subtitle = subtitle
	if typ != "" {
		ev.Type = typ
	}

	ev.Room = propValue(ve, ical.ComponentPropertyLocation)
	if ev.Room == "" {
		ev.Room = spec.Name
	}

	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		ev.URL = p.Value
	}

	for _, att := range ve.Attendees() {
		name := attendeeName(att)
		if name == "" {
			continue
		}
		ev.Persons = append(ev.Persons, schedule.Person{
			ID:         "0",
			GUID:       schedule.GeneratePersonUUID(name),
			Name:       name,
			PublicName: name,
		})
	}
	return ev
}

func attendeeName(att *ical.Attendee) string {
	if params := att.ICalParameters; params != nil {
		if cns, ok := params["CN"]; ok && len(cns) > 0 && cns[0] != "" {
			return strings.Trim(cns[0], `"`)
		}
	}
	return strings.TrimPrefix(att.Email(), "mailto:")
}

// expandRRule returns the occurrence starts of a recurring event inside the
// conference window, capped so a malformed rule cannot blow up the run.
func expandRRule(raw string, dtstart, windowStart, windowEnd time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE: %w", err)
	}
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)

	occ := set.Between(windowStart.In(dtstart.Location()), windowEnd.In(dtstart.Location()), true)
	if len(occ) > maxOccurrencesPerEvent {
		occ = occ[:maxOccurrencesPerEvent]
	}
	return occ, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
