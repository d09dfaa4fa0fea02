package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"confsched/internal/config"
	"confsched/internal/schedule"
)

func pipelineConfig(t *testing.T, sourceURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Conference: config.ConferenceConfig{
			Acronym:  "testcon24",
			Title:    "Test Conference 2024",
			Start:    "2024-12-27",
			Days:     2,
			Timezone: "Europe/Amsterdam",
		},
		Sources: []config.SourceConfig{
			{Name: "main", Kind: "generic", URL: sourceURL},
		},
		OutputDir: filepath.Join(dir, "out"),
		CacheDir:  filepath.Join(dir, "cache"),
		IDPool:    filepath.Join(dir, "ids.json"),
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// sourceDocument renders a small upstream schedule.json body for one talk.
func sourceDocument(t *testing.T) []byte {
	t.Helper()
	sub, err := schedule.FromTemplate(schedule.Template{
		Acronym:   "subcon",
		Title:     "Sub Conference",
		StartDate: "2024-12-27",
		DaysCount: 2,
		Timezone:  "Europe/Amsterdam",
	})
	if err != nil {
		t.Fatal(err)
	}
	sub.Version = "sub-v1"
	sub.AddRooms([]schedule.Room{{Name: "Hall A", GUID: schedule.GenerateUUID("hall a")}})
	ev := &schedule.Event{
		ID:       17,
		GUID:     schedule.GenerateUUID("opening"),
		Title:    "Opening",
		Room:     "Hall A",
		Date:     time.Date(2024, 12, 27, 10, 0, 0, 0, sub.Location()),
		Duration: 30 * time.Minute,
		Type:     "lecture",
		Language: "en",
	}
	if err := sub.AddEvent(ev); err != nil {
		t.Fatal(err)
	}
	data, err := sub.JSON("")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func sourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	body := sourceDocument(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunPipelineWritesExports(t *testing.T) {
	srv := sourceServer(t)
	cfg := pipelineConfig(t, srv.URL+"/schedule.json")

	sched, err := runPipeline(context.Background(), cfg, flagConfig{online: true})
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	// Provenance accumulates the sub version and the source name.
	if !strings.HasSuffix(sched.Version, " sub-v1; main") {
		t.Errorf("version = %q", sched.Version)
	}

	for _, name := range []string{"everything.schedule.json", "everything.schedule.xml", "meta.json"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "events")); err != nil {
		t.Errorf("missing events dir: %v", err)
	}
	if _, err := os.Stat(cfg.IDPool); err != nil {
		t.Errorf("id pool not persisted: %v", err)
	}
}

func TestRunPipelineStatsModeWritesNothing(t *testing.T) {
	srv := sourceServer(t)
	cfg := pipelineConfig(t, srv.URL+"/schedule.json")

	sched, err := runPipeline(context.Background(), cfg, flagConfig{online: true, stats: true})
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if sched == nil {
		t.Fatal("stats run returned no schedule")
	}
	if !strings.HasSuffix(sched.Version, " sub-v1; main") {
		t.Errorf("version = %q", sched.Version)
	}

	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("stats run created the output dir: %v", err)
	}
	if _, err := os.Stat(cfg.IDPool); !os.IsNotExist(err) {
		t.Errorf("stats run persisted the id pool: %v", err)
	}
}
