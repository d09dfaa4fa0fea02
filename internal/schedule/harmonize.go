package schedule

import (
	"regexp"
	"strings"
)

// Sources invent their own event-type and language vocabulary; downstream
// consumers want the fixed frab set. Harmonization mutates events in place
// and is applied via ForeachEvent after all sources are merged.

var eventTypeMapping = map[string]string{
	"talk":          "lecture",
	"vortrag":       "lecture",
	"lecture":       "lecture",
	"beitrag":       "lecture",
	"lightning":     "lightning_talk",
	"lightningtalk": "lightning_talk",
	"workshop":      "workshop",
	"hands on":      "workshop",
	"junghackertag": "workshop",
	"diskussion":    "podium",
	"discussion":    "podium",
	"podium":        "podium",
	"performance":   "performance",
	"concert":       "concert",
	"konzert":       "concert",
	"dj set":        "djset",
	"djset":         "djset",
	"liveset":       "djset",
	"meeting":       "meeting",
	"film":          "film",
	"other":         "other",
	"sonstiges":     "other",
}

var languageMapping = map[string]string{
	"german":    "de",
	"deutsch":   "de",
	"de-formal": "de",
	"english":   "en",
	"englisch":  "en",
	"french":    "fr",
	"de":        "de",
	"en":        "en",
	"fr":        "fr",
}

// HarmonizeEventType folds a free-text event type into the controlled set.
// Unknown types become "other"; the original spelling is kept in Extra so
// nothing is lost.
func HarmonizeEventType(ev *Event) {
	raw := strings.TrimSpace(strings.ToLower(ev.Type))
	if raw == "" {
		ev.Type = "other"
		return
	}
	mapped, ok := eventTypeMapping[raw]
	if !ok {
		for key, value := range eventTypeMapping {
			if strings.Contains(raw, key) {
				mapped, ok = value, true
				break
			}
		}
	}
	if !ok {
		mapped = "other"
	}
	if mapped != ev.Type {
		if ev.Extra == nil {
			ev.Extra = make(map[string]any)
		}
		if _, exists := ev.Extra["original_type"]; !exists && !strings.EqualFold(ev.Type, mapped) {
			ev.Extra["original_type"] = ev.Type
		}
		ev.Type = mapped
	}
}

// HarmonizeLanguage lowers language codes and folds spelled-out names into
// ISO 639-1 codes.
func HarmonizeLanguage(ev *Event) {
	raw := strings.TrimSpace(strings.ToLower(ev.Language))
	if raw == "" {
		return
	}
	if mapped, ok := languageMapping[raw]; ok {
		ev.Language = mapped
		return
	}
	ev.Language = raw
}

// titleSplitPattern recognizes "Title: Subtitle (Type)" style composites:
// an optional colon/dash separated subtitle and an optional trailing
// parenthesized type annotation.
var titleSplitPattern = regexp.MustCompile(`^(.+?)(?: ?[:–-] (.+?))?(?: \((.+?)\))?$`)

// SplitTitleAdditions splits a composite title into title, subtitle and type.
// Missing parts come back empty.
func SplitTitleAdditions(title string) (main, subtitle, typ string) {
	m := titleSplitPattern.FindStringSubmatch(title)
	if m == nil {
		return title, "", ""
	}
	return m[1], m[2], m[3]
}

// applyTitleSplit rewrites an event's title in place when it carries
// subtitle or type additions. Existing subtitle/type values win over
// extracted ones.
func applyTitleSplit(ev *Event) {
	main, subtitle, typ := SplitTitleAdditions(ev.Title)
	if main == ev.Title {
		return
	}
	ev.Title = main
	if ev.Subtitle == "" {
		ev.Subtitle = subtitle
	}
	if ev.Type == "" {
		ev.Type = typ
	}
}
