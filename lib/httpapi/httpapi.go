// Package httpapi exposes the playback manager as a JSON HTTP API for the
// show editor.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"lightshow/lib/cuesheet"
	"lightshow/lib/fixture"
	"lightshow/lib/playback"
	"lightshow/lib/plot"
)

type Server struct {
	mgr    *playback.Manager
	log    *slog.Logger
	router *mux.Router
}

// New builds the API router. If static is non-nil it is served at "/".
func New(mgr *playback.Manager, log *slog.Logger, static fs.FS) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{mgr: mgr, log: log, router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/universe", s.universe).Methods(http.MethodGet)
	api.HandleFunc("/play", s.play).Methods(http.MethodPost)
	api.HandleFunc("/pause", s.pause).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.stop).Methods(http.MethodPost)
	api.HandleFunc("/seek", s.seek).Methods(http.MethodPost)
	api.HandleFunc("/timecode", s.timecode).Methods(http.MethodPost)
	api.HandleFunc("/dmx", s.dmx).Methods(http.MethodPost)
	api.HandleFunc("/song", s.loadSong).Methods(http.MethodPost)
	api.HandleFunc("/fixtures", s.fixtures).Methods(http.MethodGet)
	api.HandleFunc("/fixtures/{id}/values", s.fixtureValues).Methods(http.MethodPost)
	api.HandleFunc("/fixtures/{id}/poi/{poi}", s.poiTarget).Methods(http.MethodPut)
	api.HandleFunc("/pois", s.pois).Methods(http.MethodGet)
	api.HandleFunc("/preview", s.startPreview).Methods(http.MethodPost)
	api.HandleFunc("/preview", s.cancelPreview).Methods(http.MethodDelete)
	api.HandleFunc("/cues", s.cues).Methods(http.MethodGet)
	api.HandleFunc("/cues", s.insertCue).Methods(http.MethodPost)
	api.HandleFunc("/cues/record", s.recordCue).Methods(http.MethodPost)
	api.HandleFunc("/timeline", s.timeline).Methods(http.MethodGet)
	api.HandleFunc("/canvas.png", s.canvasPNG).Methods(http.MethodGet)
	api.Use(mux.CORSMethodMiddleware(api))

	if static != nil {
		s.router.PathPrefix("/").Handler(http.FileServer(http.FS(static)))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type errorBody struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, playback.ErrInvalidChannel),
		errors.Is(err, playback.ErrInvalidValue),
		errors.Is(err, playback.ErrInvalidDuration),
		errors.Is(err, cuesheet.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, fixture.ErrFixtureNotFound),
		errors.Is(err, fixture.ErrPOINotFound),
		errors.Is(err, playback.ErrUnknownSection):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrNoSong):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSONStatus(w, code, errorBody{Reason: playback.Reason(err), Error: err.Error()})
}

// writeRejected answers a request the manager turned down, such as an edit
// during playback. These are not errors.
func writeRejected(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusConflict, v)
}

var errBadRequest = errors.New("httpapi: bad request")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.Status())
}

// universe returns the live output, or the editor buffer with ?source=editor.
func (s *Server) universe(w http.ResponseWriter, r *http.Request) {
	var u playback.Universe
	switch src := r.URL.Query().Get("source"); src {
	case "", "output":
		u = s.mgr.OutputUniverse()
	case "editor":
		u = s.mgr.EditorUniverse()
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown source %q", errBadRequest, src))
		return
	}
	values := make([]int, len(u))
	for i, v := range u {
		values[i] = int(v)
	}
	writeJSON(w, values)
}

func (s *Server) setPlaying(w http.ResponseWriter, r *http.Request, playing bool) {
	if err := s.mgr.SetPlaybackState(r.Context(), playing); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.mgr.Status())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request)  { s.setPlaying(w, r, true) }
func (s *Server) pause(w http.ResponseWriter, r *http.Request) { s.setPlaying(w, r, false) }

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Stop(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.mgr.Status())
}

type seekRequest struct {
	Time    *float64 `json:"time"`
	Section string   `json:"section"`
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var err error
	switch {
	case req.Section != "":
		err = s.mgr.SeekSection(req.Section)
	case req.Time != nil:
		err = s.mgr.SeekTimecode(*req.Time)
	default:
		err = fmt.Errorf("%w: seek needs time or section", errBadRequest)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.mgr.Status())
}

type timeRequest struct {
	Time float64 `json:"time"`
}

func (s *Server) timecode(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.mgr.UpdateTimecode(req.Time); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dmxRequest struct {
	Channel int `json:"channel"`
	Value   int `json:"value"`
}

func (s *Server) dmx(w http.ResponseWriter, r *http.Request) {
	var req dmxRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.mgr.UpdateDMXChannel(req.Channel, req.Value)
	s.writeEdit(w, r, res, err)
}

func (s *Server) fixtureValues(w http.ResponseWriter, r *http.Request) {
	var values map[string]int
	if err := decode(r, &values); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.mgr.SetFixtureValues(mux.Vars(r)["id"], values)
	s.writeEdit(w, r, res, err)
}

func (s *Server) writeEdit(w http.ResponseWriter, r *http.Request, res playback.EditResult, err error) {
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case !res.Applied:
		writeRejected(w, res)
	default:
		writeJSON(w, res)
	}
}

type songRequest struct {
	Name string `json:"name"`
}

func (s *Server) loadSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing song name", errBadRequest))
		return
	}
	if err := s.mgr.LoadSong(r.Context(), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.mgr.Status())
}

func (s *Server) fixtures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.Fixtures())
}

func (s *Server) pois(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.POIs())
}

func (s *Server) poiTarget(w http.ResponseWriter, r *http.Request) {
	var target fixture.PanTilt
	if err := decode(r, &target); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	if err := s.mgr.SavePOITarget(vars["id"], vars["poi"], target.Pan, target.Tilt); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, target)
}

func (s *Server) startPreview(w http.ResponseWriter, r *http.Request) {
	var req playback.PreviewRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	// The preview outlives this request; only the handoff uses its context.
	res, err := s.mgr.StartPreview(r.Context(), req)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case !res.OK:
		writeRejected(w, res)
	default:
		writeJSON(w, res)
	}
}

func (s *Server) cancelPreview(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.CancelPreview(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cues(w http.ResponseWriter, r *http.Request) {
	sheet, err := s.mgr.Cues()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, sheet)
}

func (s *Server) insertCue(w http.ResponseWriter, r *http.Request) {
	var entry cuesheet.Entry
	if err := decode(r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.mgr.InsertCueEntry(entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, entry)
}

type recordRequest struct {
	Time float64 `json:"time"`
	Name string  `json:"name"`
}

func (s *Server) recordCue(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.mgr.AddCueEntry(req.Time, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, entries)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	tl, err := s.mgr.Timeline()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, tl)
}

func (s *Server) canvasPNG(w http.ResponseWriter, r *http.Request) {
	c := s.mgr.Canvas()
	if c == nil {
		s.writeError(w, r, playback.ErrNoSong)
		return
	}
	roster, err := fixture.NewRoster(s.mgr.Fixtures())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	labels, tints := plot.Describe(roster)
	w.Header().Set("Content-Type", "image/png")
	if err := plot.WritePNG(w, c, plot.Options{Labels: labels, Tints: tints}); err != nil {
		s.log.Error("render canvas", "error", err)
	}
}
