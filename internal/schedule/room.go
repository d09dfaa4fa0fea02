package schedule

import (
	"regexp"
	"strings"
)

// Room identifies a physical or virtual venue. The guid is the durable
// identity and survives renames; the name is the display string events
// reference and must be unique among active rooms of one schedule.
type Room struct {
	GUID        string `json:"guid,omitempty" yaml:"guid,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Stream      string `json:"stream,omitempty" yaml:"stream,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Capacity    int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
}

// RoomFromRecord builds a Room from a raw record, taking the field subset it
// understands and ignoring unknown keys.
func RoomFromRecord(data map[string]any) Room {
	r := Room{}
	if v, ok := data["guid"].(string); ok {
		r.GUID = v
	}
	if v, ok := data["name"].(string); ok {
		r.Name = v
	}
	if v, ok := data["stream"].(string); ok {
		r.Stream = v
	}
	if v, ok := data["description"].(string); ok {
		r.Description = v
	}
	if v, ok := data["location"].(string); ok {
		r.Location = v
	}
	switch v := data["capacity"].(type) {
	case int:
		r.Capacity = v
	case float64:
		r.Capacity = int(v)
	}
	return r
}

// StoreRecord produces the room shape used for external persistence,
// independent of the schedule.json/xml shape. A room without a guid gets a
// deterministic one from its name.
func (r Room) StoreRecord() map[string]any {
	guid := r.GUID
	if guid == "" {
		guid = GenerateUUID(r.Name)
	}
	return map[string]any{
		"name":        r.Name,
		"guid":        guid,
		"description": r.Description,
		"slug":        NormalizeName(r.Name),
		"meta": map[string]any{
			"location": r.Location,
		},
	}
}

// RoomRef selects a room either by display name, by guid, or as a full
// structured record. Call sites switch on the populated form instead of
// inspecting runtime types.
type RoomRef struct {
	name   string
	guid   string
	record *Room
}

func RoomByName(name string) RoomRef { return RoomRef{name: name} }
func RoomByGUID(guid string) RoomRef { return RoomRef{guid: guid} }
func RoomRecord(r Room) RoomRef      { return RoomRef{record: &r} }

// Record returns the structured room, if this reference carries one.
func (ref RoomRef) Record() (Room, bool) {
	if ref.record != nil {
		return *ref.record, true
	}
	return Room{}, false
}

// DisplayName returns the name this reference resolves to for display, which
// may be empty for guid-only references.
func (ref RoomRef) DisplayName() string {
	if ref.record != nil {
		return ref.record.Name
	}
	return ref.name
}

var (
	nonWord     = regexp.MustCompile(`\W+`)
	nonSlugRune = regexp.MustCompile(`[^a-z0-9_]+`)
)

// NormalizeName lowercases a display string into a slug-safe form:
// German umlauts are transliterated, whitespace runs become underscores and
// everything outside [a-z0-9_] is dropped.
func NormalizeName(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")
	s = replacer.Replace(s)
	s = nonWord.ReplaceAllString(strings.TrimSpace(s), "_")
	return nonSlugRune.ReplaceAllString(s, "")
}
