package web

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"confsched/internal/config"
	appLog "confsched/internal/log"
	"confsched/internal/schedule"
)

// Server exposes the current aggregate schedule over HTTP for preview and
// ad-hoc validation. It never mutates the schedule; the pipeline driver
// publishes a new tree after each run via SetSchedule.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu      sync.RWMutex
	current *schedule.Schedule
	builtAt time.Time
}

// NewServer constructs a new Server. The schedule is nil until the first
// pipeline run publishes one.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// SetSchedule publishes a freshly built schedule tree. Callers must not
// mutate the tree afterwards.
func (s *Server) SetSchedule(sched *schedule.Schedule) {
	s.mu.Lock()
	s.current = sched
	s.builtAt = time.Now()
	s.mu.Unlock()
}

func (s *Server) snapshot() (*schedule.Schedule, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.builtAt
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="confsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/schedule.json", s.handleScheduleJSON)
	s.mux.HandleFunc("/schedule.xml", s.handleScheduleXML)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/validate", s.handleValidate)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleScheduleJSON(w http.ResponseWriter, _ *http.Request) {
	sched, _ := s.snapshot()
	if sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no schedule built yet")
		return
	}
	data, err := sched.JSON(s.cfg.SchemaURL)
	if err != nil {
		appLog.Error("render schedule json failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render schedule")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleScheduleXML(w http.ResponseWriter, _ *http.Request) {
	sched, _ := s.snapshot()
	if sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no schedule built yet")
		return
	}
	data, err := sched.XML(s.cfg.SchemaLocation)
	if err != nil {
		appLog.Error("render schedule xml failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render schedule")
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statsResponse is the JSON response shape for /stats.
type statsResponse struct {
	Version    string    `json:"version"`
	BuiltAt    time.Time `json:"built_at"`
	Days       int       `json:"days"`
	Rooms      int       `json:"rooms"`
	Events     int       `json:"events"`
	MinEventID int       `json:"min_event_id"`
	MaxEventID int       `json:"max_event_id"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sched, builtAt := s.snapshot()
	if sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no schedule built yet")
		return
	}
	stats := sched.ComputeStats()
	writeJSON(w, http.StatusOK, statsResponse{
		Version:    sched.Version,
		BuiltAt:    builtAt,
		Days:       len(sched.Days()),
		Rooms:      len(sched.Rooms()),
		Events:     stats.EventsCount,
		MinEventID: stats.MinID,
		MaxEventID: stats.MaxID,
	})
}

// validateResponse is the JSON response shape for POST /validate.
type validateResponse struct {
	Valid    bool     `json:"valid"`
	Findings []string `json:"findings"`
}

// handleValidate runs the advisory XML checks against a posted schedule XML
// document, so external producers can check their exports against the same
// rules this pipeline applies.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST a schedule XML document")
		return
	}

	const maxBody = 32 << 20
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	findings := schedule.ValidateScheduleXML(body, s.cfg.ValidationFilter)
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:    len(findings) == 0,
		Findings: findings,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
