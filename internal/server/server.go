// internal/server/server.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/interaction"
	"github.com/user/strata/internal/playback"
	"github.com/user/strata/internal/render"
	"github.com/user/strata/internal/scene"
	"github.com/user/strata/internal/state"
	"github.com/user/strata/internal/telemetry"
	"github.com/user/strata/internal/timeline"
	"github.com/user/strata/internal/types"
)

// Server exposes playback control, picking and scene previews over HTTP.
type Server struct {
	cfg      *config.Config
	ctrl     *playback.Controller
	comp     *scene.Compositor
	index    *interaction.Index
	cache    *timeline.Cache
	sessions *state.SessionStore
	mux      *http.ServeMux
}

// NewServer wires the handlers. sessions may be nil, which disables saving
// exported states.
func NewServer(cfg *config.Config, ctrl *playback.Controller, comp *scene.Compositor, index *interaction.Index, cache *timeline.Cache, sessions *state.SessionStore) *Server {
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		comp:     comp,
		index:    index,
		cache:    cache,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/play", s.handlePlay)
	s.mux.HandleFunc("POST /api/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/seek", s.handleSeek)
	s.mux.HandleFunc("POST /api/speed", s.handleSpeed)
	s.mux.HandleFunc("POST /api/settings", s.handleSettings)
	s.mux.HandleFunc("POST /api/visibility", s.handleVisibility)
	s.mux.HandleFunc("POST /api/hit", s.handleHit)
	s.mux.HandleFunc("POST /api/highlight", s.handleHighlight)
	s.mux.HandleFunc("GET /api/scene", s.handleScene)
	s.mux.HandleFunc("GET /scene.svg", s.handleSVG)
	s.mux.HandleFunc("POST /api/load", s.handleLoad)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Play()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Pause()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Reset()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type seekRequest struct {
	Index *int `json:"index"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	s.ctrl.Seek(*req.Index)
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type speedRequest struct {
	Ms int `json:"ms"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if !decode(w, r, &req) {
		return
	}
	s.ctrl.SetSpeed(req.Ms)
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type settingsRequest struct {
	MinAngleDeg   *float64 `json:"min_angle_deg"`
	RingThickness *float64 `json:"ring_thickness"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}
	cur := s.ctrl.Status()
	minAngle, thickness := cur.MinAngleDeg, cur.RingThickness
	if req.MinAngleDeg != nil {
		minAngle = *req.MinAngleDeg
	}
	if req.RingThickness != nil {
		thickness = *req.RingThickness
	}
	if err := s.ctrl.SetLayout(minAngle, thickness); err != nil {
		slog.Error("apply layout settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type visibilityRequest struct {
	Group   string `json:"group"`
	Visible bool   `json:"visible"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := scene.ParseGroup(req.Group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ctrl.SetVisible(g, req.Visible)
	writeJSON(w, http.StatusOK, map[string]any{"group": g, "visible": s.comp.Visible(g)})
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	var ray interaction.Ray
	if !decode(w, r, &ray) {
		return
	}
	writeJSON(w, http.StatusOK, s.index.HitTest(ray))
}

type highlightRequest struct {
	Key string `json:"key"`
}

// handleHighlight highlights a segment's ancestry. An empty key clears it.
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.comp.ClearHighlight()
		writeJSON(w, http.StatusOK, map[string]any{"highlighted": 0, "keys": []string{}})
		return
	}
	n, err := s.index.HighlightPath(req.Key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"highlighted": n, "keys": s.comp.Highlighted()})
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.comp.Frame())
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	opts := render.DefaultOptions()
	opts.Highlight = s.cfg.Theme.Highlight
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("width")); err == nil && v > 0 {
		opts.Width = v
	}
	if v, err := strconv.Atoi(q.Get("height")); err == nil && v > 0 {
		opts.Height = v
	}
	var buf bytes.Buffer
	if err := render.Render(&buf, s.comp.Frame(), opts); err != nil {
		slog.Error("render svg failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(buf.Bytes())
}

// loadStatus maps artifact errors onto HTTP codes.
func loadStatus(err error) int {
	switch {
	case errors.Is(err, timeline.ErrUnsupportedExt):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, timeline.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, timeline.ErrMalformed),
		errors.Is(err, timeline.ErrMissingEvents),
		errors.Is(err, timeline.ErrEmptyLog),
		errors.Is(err, timeline.ErrDuplicateID):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleLoad stores an uploaded artifact under the data directory and makes
// it the active log. A rejected upload leaves the current scene untouched.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Query().Get("name"))
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	limit := s.cfg.Limits.MaxArtifactBytes
	if err := timeline.ValidateFile(name, max(r.ContentLength, 0), limit); err != nil {
		writeError(w, loadStatus(err), err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}
	if err := timeline.ValidateFile(name, int64(len(data)), limit); err != nil {
		writeError(w, loadStatus(err), err.Error())
		return
	}

	dir := filepath.Join(s.cfg.DataDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("create upload dir failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	path := filepath.Join(dir, name)
	tmp, err := writeTemp(dir, name, data)
	if err != nil {
		slog.Error("write upload failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer os.Remove(tmp)

	prev, prevPath := s.cache.Current()
	log, err := s.cache.Load(r.Context(), tmp)
	if err != nil {
		writeError(w, loadStatus(err), err.Error())
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.cache.Set(prevPath, prev)
		slog.Error("store upload failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.cache.Set(path, log)
	if err := s.ctrl.SetLog(log); err != nil {
		slog.Error("activate log failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.Resume(r.Context(), name); err != nil {
		slog.Warn("resume saved session failed", "artifact", name, "error", err)
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// writeTemp stores data next to its final name so a rejected upload never
// replaces the file already there.
func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".upload-*-"+name)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Resume restores the playback state saved for artifact, if any.
func (s *Server) Resume(ctx context.Context, artifact string) error {
	if s.sessions == nil {
		return nil
	}
	sess, err := s.sessions.Lookup(ctx, types.ArtifactKey(artifact))
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(sess.State) == 0 {
		return nil
	}
	return s.ctrl.Import(sess.State)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.ctrl.Export()
	if err != nil {
		slog.Error("export playback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, path := s.cache.Current(); s.sessions != nil && path != "" {
		name := filepath.Base(path)
		if err := s.sessions.Save(r.Context(), types.ArtifactKey(name), name, s.ctrl.Log().Len(), data); err != nil {
			slog.Warn("save session failed", "artifact", name, "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if err := s.ctrl.Import(data); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, playback.ErrOutOfRange) {
			code = http.StatusUnprocessableEntity
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type sessionResponse struct {
	SessionID  string `json:"session_id"`
	SessionKey string `json:"session_key"`
	Artifact   string `json:"artifact"`
	Events     int    `json:"events"`
	UpdatedAt  string `json:"updated_at"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionResponse{
			SessionID:  string(sess.SessionID),
			SessionKey: string(sess.SessionKey),
			Artifact:   sess.Artifact,
			Events:     sess.Events,
			UpdatedAt:  sess.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// Addr formats the listen address for log output.
func Addr(cfg *config.Config) string {
	return fmt.Sprintf("http://%s", cfg.HTTP.Listen)
}
