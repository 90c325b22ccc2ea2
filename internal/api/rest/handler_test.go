package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/app/bridge"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/domain/player"
)

type stubUpstream struct {
	mu       sync.Mutex
	calls    []string
	snapshot *player.Snapshot
	callErr  error
}

func (s *stubUpstream) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.callErr
}

func (s *stubUpstream) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubUpstream) GetPlaybackState(context.Context) (*player.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "getPlaybackState")
	return s.snapshot, nil
}
func (s *stubUpstream) Play(context.Context) error                 { return s.record("play") }
func (s *stubUpstream) Pause(context.Context) error                { return s.record("pause") }
func (s *stubUpstream) Next(context.Context) error                 { return s.record("next") }
func (s *stubUpstream) Previous(context.Context) error             { return s.record("previous") }
func (s *stubUpstream) Seek(_ context.Context, _ int) error        { return s.record("seek") }
func (s *stubUpstream) SetVolume(_ context.Context, _ int) error   { return s.record("setVolume") }
func (s *stubUpstream) SetRepeat(_ context.Context, _ string) error {
	return s.record("setRepeat")
}
func (s *stubUpstream) SetShuffle(_ context.Context, _ bool) error { return s.record("setShuffle") }
func (s *stubUpstream) PlayTrack(_ context.Context, _ string) error {
	return s.record("playTrack")
}
func (s *stubUpstream) PlayTrackInContext(_ context.Context, _, _ string) error {
	return s.record("playTrackInContext")
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastState(player.StateChangePayload) {}
func (nopBroadcaster) BroadcastRamping(bool)                    {}

func newTestServer(t *testing.T, up bridge.Upstream, controlEnabled bool) (*httptest.Server, *bridge.Bridge) {
	t.Helper()
	b := bridge.New(up, nopBroadcaster{}, bridge.Config{ControlEnabled: controlEnabled})
	mux := http.NewServeMux()
	NewHandler(b).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, bridge.Version, body["version"])
}

func TestStateEndpointIsTotal(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body player.StateChangePayload
	decode(t, resp, &body)
	assert.Equal(t, player.StatusStopped, body.PlaybackInfo.PlayerState)
}

func TestControlVerbsHitUpstream(t *testing.T) {
	up := &stubUpstream{}
	srv, _ := newTestServer(t, up, true)

	for _, tc := range []struct {
		path string
		body string
		want string
	}{
		{"/api/play", "", "play"},
		{"/api/pause", "", "pause"},
		{"/api/next", "", "next"},
		{"/api/previous", "", "previous"},
		{"/api/seek", `{"position": 30}`, "seek"},
		{"/api/volume", `{"volume": 70}`, "setVolume"},
		{"/api/repeat", `{"on": true}`, "setRepeat"},
		{"/api/shuffle", `{"on": false}`, "setShuffle"},
		{"/api/play-track", `{"uri": "spotify:track:4uLU6hMCjMI75M1A2tKUQC"}`, "playTrack"},
	} {
		resp := postJSON(t, srv.URL+tc.path, tc.body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, tc.path)
	}

	calls := up.recorded()
	assert.Contains(t, calls, "play")
	assert.Contains(t, calls, "seek")
	assert.Contains(t, calls, "setVolume")
	assert.Contains(t, calls, "playTrack")
}

func TestControlDisabledMapsToForbidden(t *testing.T) {
	up := &stubUpstream{}
	srv, _ := newTestServer(t, up, false)

	resp := postJSON(t, srv.URL+"/api/play", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, up.recorded())
}

func TestNotConfiguredMapsToServiceUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)

	resp := postJSON(t, srv.URL+"/api/pause", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRampConflictMapsToConflict(t *testing.T) {
	up := &stubUpstream{}
	srv, b := newTestServer(t, up, true)

	resp := postJSON(t, srv.URL+"/api/volume/ramp",
		`{"target": 80, "changePercent": 10, "rampTimeSeconds": 30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, b.Ramping())

	resp = postJSON(t, srv.URL+"/api/volume", `{"volume": 40}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBadBodyIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp := postJSON(t, srv.URL+"/api/volume", `{"volume": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlayTrackRequiresURI(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp := postJSON(t, srv.URL+"/api/play-track", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodGuards(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp, err := http.Get(srv.URL + "/api/play")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	postResp := postJSON(t, srv.URL+"/api/state", "")
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

// captureLog redirects the global logger to a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := zlog.Logger
	zlog.Logger = zerolog.New(&buf)
	t.Cleanup(func() { zlog.Logger = prev })
	return &buf
}

func TestPolicyRejectionIsNotLoggedAsWarning(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, false)
	buf := captureLog(t)

	resp := postJSON(t, srv.URL+"/api/play", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.NotContains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestUpstreamFailureIsLoggedAsWarning(t *testing.T) {
	up := &stubUpstream{callErr: assert.AnError}
	srv, _ := newTestServer(t, up, true)
	buf := captureLog(t)

	resp := postJSON(t, srv.URL+"/api/play", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubUpstream{}, true)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}
