package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/app/bridge"
)

// Handler exposes the legacy REST control surface over the bridge.
type Handler struct {
	bridge *bridge.Bridge
}

func NewHandler(b *bridge.Bridge) *Handler {
	return &Handler{bridge: b}
}

// Register mounts every endpoint on the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/version", h.getOnly(h.handleVersion))
	mux.HandleFunc("/api/control", h.getOnly(h.handleControl))
	mux.HandleFunc("/api/state", h.getOnly(h.handleState))

	mux.HandleFunc("/api/play", h.verb(h.bridge.Play))
	mux.HandleFunc("/api/pause", h.verb(h.bridge.Pause))
	mux.HandleFunc("/api/playpause", h.verb(h.bridge.TogglePlayPause))
	mux.HandleFunc("/api/next", h.verb(h.bridge.NextTrack))
	mux.HandleFunc("/api/previous", h.verb(h.bridge.PreviousTrack))

	mux.HandleFunc("/api/seek", h.postOnly(h.handleSeek))
	mux.HandleFunc("/api/seek/relative", h.postOnly(h.handleSeekRelative))

	mux.HandleFunc("/api/play-track", h.postOnly(h.handlePlayTrack))
	mux.HandleFunc("/api/play-track-in-context", h.postOnly(h.handlePlayTrackInContext))

	mux.HandleFunc("/api/volume", h.postOnly(h.handleSetVolume))
	mux.HandleFunc("/api/volume/up", h.verb(h.bridge.VolumeUp))
	mux.HandleFunc("/api/volume/down", h.verb(h.bridge.VolumeDown))
	mux.HandleFunc("/api/volume/ramp", h.postOnly(h.handleRampVolume))
	mux.HandleFunc("/api/mute", h.verb(h.bridge.Mute))
	mux.HandleFunc("/api/unmute", h.verb(h.bridge.Unmute))

	mux.HandleFunc("/api/repeat", h.postOnly(h.handleRepeat))
	mux.HandleFunc("/api/shuffle", h.postOnly(h.handleShuffle))

	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.bridge.Version()})
}

func (h *Handler) handleControl(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.bridge.ControlEnabled()})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.CurrentState())
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !h.bridge.Configured() {
		status = "unconfigured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.bridge.Version(),
		"ramping": h.bridge.Ramping(),
	})
}

func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.finish(w, r, h.bridge.SeekTo(r.Context(), req.Position))
}

func (h *Handler) handleSeekRelative(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta float64 `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.finish(w, r, h.bridge.SeekBy(r.Context(), req.Delta))
}

func (h *Handler) handlePlayTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI string `json:"uri"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	h.finish(w, r, h.bridge.PlayTrack(r.Context(), req.URI))
}

func (h *Handler) handlePlayTrackInContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Track   string `json:"track"`
		Context string `json:"context"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Track == "" || req.Context == "" {
		writeError(w, http.StatusBadRequest, "track and context are required")
		return
	}
	h.finish(w, r, h.bridge.PlayTrackInContext(r.Context(), req.Track, req.Context))
}

func (h *Handler) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.finish(w, r, h.bridge.SetVolume(r.Context(), req.Volume))
}

func (h *Handler) handleRampVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target          float64 `json:"target"`
		ChangePercent   float64 `json:"changePercent"`
		RampTimeSeconds float64 `json:"rampTimeSeconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChangePercent <= 0 || req.RampTimeSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "changePercent and rampTimeSeconds must be positive")
		return
	}
	h.finish(w, r, h.bridge.RampVolume(req.Target, req.ChangePercent, req.RampTimeSeconds))
}

func (h *Handler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.finish(w, r, h.bridge.SetRepeat(r.Context(), req.On))
}

func (h *Handler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.finish(w, r, h.bridge.SetShuffle(r.Context(), req.On))
}

// verb adapts a body-less control verb into a POST handler.
func (h *Handler) verb(fn func(ctx context.Context) error) http.HandlerFunc {
	return h.postOnly(func(w http.ResponseWriter, r *http.Request) {
		h.finish(w, r, fn(r.Context()))
	})
}

func (h *Handler) postOnly(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		fn(w, r)
	}
}

func (h *Handler) getOnly(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		fn(w, r)
	}
}

// finish concludes a control request, mapping policy errors onto the
// legacy status codes.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	status := http.StatusBadGateway
	policy := true
	switch {
	case errors.Is(err, bridge.ErrControlDisabled):
		status = http.StatusForbidden
	case errors.Is(err, bridge.ErrRampInProgress):
		status = http.StatusConflict
	case errors.Is(err, bridge.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	default:
		policy = false
	}

	// Policy rejections are expected operation, only upstream failures
	// warrant a warning.
	event := zlog.Warn()
	if policy {
		event = zlog.Debug()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).
		Msg("control request failed")
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
