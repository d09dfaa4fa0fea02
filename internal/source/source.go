package source

import (
	"context"
	"fmt"
	"strings"

	"confsched/internal/fetch"
	appLog "confsched/internal/log"
	"confsched/internal/schedule"
)

// Spec describes one configured upstream source.
type Spec struct {
	Name  string
	URL   string
	Token string
}

// A Source loads one upstream conference program as a canonical schedule
// tree, ready to be merged into the aggregate.
type Source interface {
	Name() string
	Load(ctx context.Context, f *fetch.Fetcher) (*schedule.Schedule, error)
}

// New builds the adapter for a source kind. The template is the local
// conference definition; only the webcal adapter needs it, since iCal feeds
// carry no conference metadata of their own.
func New(kind string, spec Spec, tmpl schedule.Template) (Source, error) {
	switch kind {
	case "generic":
		return &Generic{Spec: spec}, nil
	case "pretalx":
		return NewPretalx(spec), nil
	case "webcal":
		return &Webcal{Spec: spec, Template: tmpl}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// Generic loads a schedule.json document from any URL.
type Generic struct {
	Spec Spec
}

func (g *Generic) Name() string { return g.Spec.Name }

func (g *Generic) Load(ctx context.Context, f *fetch.Fetcher) (*schedule.Schedule, error) {
	res, err := f.Fetch(ctx, fetch.Source{Name: g.Spec.Name, URL: g.Spec.URL, Token: g.Spec.Token})
	if err != nil {
		return nil, err
	}

	sched, err := schedule.FromDocument(res.Body)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", g.Spec.Name, err)
	}

	appLog.Info("schedule loaded",
		"source", g.Spec.Name,
		"version", sched.Version,
		"days", len(sched.Days()),
		"from_cache", res.FromCache,
	)
	return sched, nil
}

// NewPretalx wraps Generic with the conventional pretalx export path, so the
// config only needs the instance's event URL.
func NewPretalx(spec Spec) *Generic {
	if !strings.HasSuffix(spec.URL, ".json") {
		spec.URL = strings.TrimRight(spec.URL, "/") + "/schedule/export/schedule.json"
	}
	return &Generic{Spec: spec}
}
