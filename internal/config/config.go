package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"confsched/internal/schedule"
)

// Config is the top-level run configuration: one conference, an ordered list
// of sources, and the output/publishing knobs. Source order is merge order
// and must stay deterministic; it decides who wins a room-name collision and
// the order of the version-string accumulation.
type Config struct {
	Conference ConferenceConfig `yaml:"conference"`

	// Sources are merged in declaration order.
	Sources []SourceConfig `yaml:"sources"`

	// Channels are rooms with a live video feed, in display order. They are
	// registered up front so output room ordering is stable, and they drive
	// the filtered "channels" export.
	Channels []schedule.Room `yaml:"channels"`

	// Rooms are additional known rooms without a stream.
	Rooms []schedule.Room `yaml:"rooms"`

	// OutputDir receives schedule.json/schedule.xml/events/meta.json. A
	// positional CLI argument overrides it.
	OutputDir string `yaml:"output_dir"`

	// CacheDir is the fetch cache location.
	CacheDir string `yaml:"cache_dir"`

	// IDPool is the path of the persisted id allocator state.
	IDPool string `yaml:"id_pool"`

	// IDPoolBase is the first id the allocator mints.
	IDPoolBase int `yaml:"id_pool_base"`

	// SchemaURL / SchemaLocation are written into the JSON and XML exports.
	SchemaURL      string `yaml:"schema_url"`
	SchemaLocation string `yaml:"schema_location"`

	// ValidationFilter suppresses known-tolerable XML validation findings
	// by substring.
	ValidationFilter []string `yaml:"validation_filter"`

	// Listen, if set, enables the preview/validation web server.
	Listen string `yaml:"listen"`

	// BasicAuth, if non-nil, protects the web server endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`

	// Watch is a cron spec; when set the driver re-runs the pipeline on
	// that schedule instead of exiting after one pass.
	Watch string `yaml:"watch"`
}

// ConferenceConfig is the authoritative conference template.
type ConferenceConfig struct {
	Acronym          string `yaml:"acronym"`
	Title            string `yaml:"title"`
	Start            string `yaml:"start"` // YYYY-MM-DD of day 1
	Days             int    `yaml:"days"`
	TimeslotDuration string `yaml:"timeslot_duration"`
	Timezone         string `yaml:"timezone"`

	// DayStart/DayEnd are "H:MM" wall-clock offsets of the program-day
	// window. An end at or before the start means the next calendar day, so
	// the default 06:00/04:00 window spans into the following morning.
	DayStart string `yaml:"day_start"`
	DayEnd   string `yaml:"day_end"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web server.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SourceConfig declares one external schedule source.
type SourceConfig struct {
	Name string `yaml:"name"`

	// Kind selects the adapter: "generic" (a schedule.json URL), "pretalx"
	// (a pretalx instance URL) or "webcal" (an iCal feed).
	Kind string `yaml:"kind"`

	URL string `yaml:"url"`

	// TokenEnv names an environment variable holding an API token.
	TokenEnv string `yaml:"token_env"`

	// IDOffset keeps this source's local event ids out of the other
	// sources' ranges.
	IDOffset int `yaml:"id_offset"`

	Options MergeOptionsConfig `yaml:"options"`
}

// Token resolves the source's API token from the environment.
func (s SourceConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// MergeOptionsConfig is the YAML form of schedule.MergeOptions.
type MergeOptionsConfig struct {
	RoomMap              map[string]string `yaml:"room_map"`
	RoomPrefix           string            `yaml:"room_prefix"`
	Track                string            `yaml:"track"`
	DoNotRecord          *bool             `yaml:"do_not_record"`
	RemoveTitleAdditions bool              `yaml:"remove_title_additions"`
	RandomizeSmallIDs    bool              `yaml:"randomize_small_ids"`
	OverwriteSlug        bool              `yaml:"overwrite_slug"`
	IDFromAnswer         int               `yaml:"id_from_answer"`
	PrefixPersonIDs      string            `yaml:"prefix_person_ids"`
}

// MergeOptions builds the core merge options for this source.
func (s SourceConfig) MergeOptions() schedule.MergeOptions {
	o := s.Options
	return schedule.MergeOptions{
		IDOffset:             s.IDOffset,
		RoomMap:              o.RoomMap,
		RoomPrefix:           o.RoomPrefix,
		Track:                o.Track,
		DoNotRecord:          o.DoNotRecord,
		RemoveTitleAdditions: o.RemoveTitleAdditions,
		RandomizeSmallIDs:    o.RandomizeSmallIDs,
		OverwriteSlug:        o.OverwriteSlug,
		IDFromAnswer:         o.IDFromAnswer,
		PrefixPersonIDs:      o.PrefixPersonIDs,
	}
}

// Template builds the core schedule template from the conference block.
func (c ConferenceConfig) Template() (schedule.Template, error) {
	tmpl := schedule.Template{
		Acronym:          c.Acronym,
		Title:            c.Title,
		StartDate:        c.Start,
		DaysCount:        c.Days,
		TimeslotDuration: c.TimeslotDuration,
		Timezone:         c.Timezone,
	}
	if c.DayStart != "" {
		d, err := schedule.ParseDuration(c.DayStart)
		if err != nil {
			return tmpl, fmt.Errorf("day_start: %w", err)
		}
		tmpl.DayStart = d
	}
	if c.DayEnd != "" {
		d, err := schedule.ParseDuration(c.DayEnd)
		if err != nil {
			return tmpl, fmt.Errorf("day_end: %w", err)
		}
		if d <= tmpl.DayStart {
			d += 24 * time.Hour
		}
		tmpl.DayEnd = d
	}
	return tmpl, nil
}

// Normalize fills in missing values with sensible defaults so partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Conference.TimeslotDuration == "" {
		c.Conference.TimeslotDuration = "00:10"
	}
	if c.Conference.Timezone == "" {
		c.Conference.Timezone = "Europe/Amsterdam"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./" + c.Conference.Acronym
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.OutputDir, ".cache")
	}
	if c.IDPool == "" {
		c.IDPool = filepath.Join(c.OutputDir, "ids.json")
	}
	if c.IDPoolBase <= 0 {
		c.IDPoolBase = 1000
	}
	if c.SchemaURL == "" {
		c.SchemaURL = schedule.DefaultSchemaURL
	}
	if c.SchemaLocation == "" {
		c.SchemaLocation = schedule.DefaultSchemaLocation
	}
	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = "generic"
		}
	}
}

// Validate rejects configs the driver cannot run with.
func (c *Config) Validate() error {
	if c.Conference.Acronym == "" {
		return errors.New("conference.acronym is required")
	}
	if c.Conference.Start == "" {
		return errors.New("conference.start is required")
	}
	if c.Conference.Days < 1 {
		return errors.New("conference.days must be at least 1")
	}
	seen := make(map[string]bool)
	for _, src := range c.Sources {
		if src.Name == "" {
			return errors.New("every source needs a name")
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
		switch src.Kind {
		case "generic", "pretalx", "webcal":
		default:
			return fmt.Errorf("source %q has unknown kind %q", src.Name, src.Kind)
		}
	}
	return nil
}

// Load reads and normalizes a run configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
