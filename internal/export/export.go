package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	appLog "confsched/internal/log"
	"confsched/internal/schedule"
)

// Writer publishes schedule trees into an output directory. Every file is
// written atomically (temp file then rename) so a consumer polling the
// directory never sees a half-written export.
type Writer struct {
	Dir            string
	SchemaURL      string
	SchemaLocation string

	// ValidationFilter suppresses known-tolerable XML findings by substring.
	ValidationFilter []string
}

// NewWriter prepares a writer rooted at dir.
func NewWriter(dir, schemaURL, schemaLocation string, filters []string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		Dir:              dir,
		SchemaURL:        schemaURL,
		SchemaLocation:   schemaLocation,
		ValidationFilter: filters,
	}, nil
}

// WriteSchedule emits <name>.schedule.json and <name>.schedule.xml for one
// tree. XML validation findings are advisory: they are logged but never fail
// the export.
func (w *Writer) WriteSchedule(name string, s *schedule.Schedule) error {
	jsonData, err := s.JSON(w.SchemaURL)
	if err != nil {
		return fmt.Errorf("render %s json: %w", name, err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, name+".schedule.json"), jsonData); err != nil {
		return err
	}

	xmlData, err := s.XML(w.SchemaLocation)
	if err != nil {
		return fmt.Errorf("render %s xml: %w", name, err)
	}
	for _, finding := range schedule.ValidateScheduleXML(xmlData, w.ValidationFilter) {
		appLog.Warn("xml validation", "schedule", name, "finding", finding)
	}
	if err := writeAtomic(filepath.Join(w.Dir, name+".schedule.xml"), xmlData); err != nil {
		return err
	}

	appLog.Info("schedule written", "schedule", name, "dir", w.Dir,
		"json_bytes", len(jsonData), "xml_bytes", len(xmlData))
	return nil
}

// WriteEvents emits one JSON file per event, named by guid, under events/.
// Each record carries the room guid and the originating source so downstream
// tooling can address a single talk without parsing the whole schedule.
func (w *Writer) WriteEvents(s *schedule.Schedule) error {
	dir := filepath.Join(w.Dir, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	count := 0
	var werr error
	s.ForeachEvent(func(ev *schedule.Event) {
		if werr != nil || ev.GUID == "" {
			return
		}
		record := ev.Record()
		if guid := s.RoomGUID(ev.Room); guid != "" {
			record["room_id"] = guid
		}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			werr = fmt.Errorf("render event %s: %w", ev.GUID, err)
			return
		}
		data = append(data, '\n')
		if err := writeAtomic(filepath.Join(dir, ev.GUID+".json"), data); err != nil {
			werr = err
			return
		}
		count++
	})
	if werr != nil {
		return werr
	}

	appLog.Info("event files written", "count", count, "dir", dir)
	return nil
}

// Meta is the sidecar document describing one export run.
type Meta struct {
	Version string           `json:"version"`
	Sources []string         `json:"sources"`
	Rooms   []map[string]any `json:"rooms"`
}

// WriteMeta emits meta.json: the schedule version, the source names that fed
// the run and the room registry in store-record form with stream keys.
func (w *Writer) WriteMeta(s *schedule.Schedule, sources []string) error {
	meta := Meta{
		Version: s.Version,
		Sources: sources,
	}
	for _, room := range s.RoomRecords() {
		record := room.StoreRecord()
		if room.Stream != "" {
			record["stream"] = room.Stream
		}
		meta.Rooms = append(meta.Rooms, record)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("render meta: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(filepath.Join(w.Dir, "meta.json"), data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
