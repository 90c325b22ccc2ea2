// Package spotify provides the upstream Spotify Web API client.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/domain/player"
)

// ErrNoActiveDevice marks playback calls that failed because Spotify has
// no active device. The poll loop treats this as benign.
var ErrNoActiveDevice = errors.New("no active device")

// Client is a Spotify playback client bound to a single account.
type Client struct {
	client     *spotify.Client
	deviceID   spotify.ID // set once by ResolveDevice, read-only afterwards
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// New creates a new Spotify client using the refresh-token flow. Token
// refresh (including the retry after a 401) is handled by the oauth2
// transport underneath.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)

	return &Client{
		client:     spotify.New(httpClient),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetPlaybackState fetches the current playback snapshot. It returns
// (nil, nil) when Spotify reports no playback session at all.
func (c *Client) GetPlaybackState(ctx context.Context) (*player.Snapshot, error) {
	var state *spotify.PlayerState
	err := c.retry(func() error {
		s, err := c.client.PlayerState(ctx)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, c.wrap(err, "failed to get playback state")
	}
	if state == nil || (state.Item == nil && state.Device.ID == "") {
		return nil, nil
	}

	return convertSnapshot(state), nil
}

// Play resumes playback on the bound device.
func (c *Client) Play(ctx context.Context) error {
	return c.playerCall(ctx, "play", c.client.Play, c.client.PlayOpt)
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	return c.playerCall(ctx, "pause", c.client.Pause, c.client.PauseOpt)
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return c.playerCall(ctx, "next", c.client.Next, c.client.NextOpt)
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return c.playerCall(ctx, "previous", c.client.Previous, c.client.PreviousOpt)
}

// Seek moves playback to the given position in milliseconds.
func (c *Client) Seek(ctx context.Context, positionMs int) error {
	err := c.retry(func() error {
		if opt := c.deviceOpt(); opt != nil {
			return c.client.SeekOpt(ctx, positionMs, opt)
		}
		return c.client.Seek(ctx, positionMs)
	})
	return c.wrap(err, "failed to seek")
}

// SetVolume sets the playback volume percentage (0-100).
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	err := c.retry(func() error {
		if opt := c.deviceOpt(); opt != nil {
			return c.client.VolumeOpt(ctx, percent, opt)
		}
		return c.client.Volume(ctx, percent)
	})
	return c.wrap(err, "failed to set volume")
}

// SetRepeat sets the repeat mode ("off", "track" or "context").
func (c *Client) SetRepeat(ctx context.Context, mode string) error {
	err := c.retry(func() error {
		if opt := c.deviceOpt(); opt != nil {
			return c.client.RepeatOpt(ctx, mode, opt)
		}
		return c.client.Repeat(ctx, mode)
	})
	return c.wrap(err, "failed to set repeat")
}

// SetShuffle enables or disables shuffle.
func (c *Client) SetShuffle(ctx context.Context, on bool) error {
	err := c.retry(func() error {
		if opt := c.deviceOpt(); opt != nil {
			return c.client.ShuffleOpt(ctx, on, opt)
		}
		return c.client.Shuffle(ctx, on)
	})
	return c.wrap(err, "failed to set shuffle")
}

// Device describes an available playback device.
type Device struct {
	ID     string
	Name   string
	Active bool
}

// GetDevices lists the account's available playback devices.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var raw []spotify.PlayerDevice
	err := c.retry(func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		raw = d
		return nil
	})
	if err != nil {
		return nil, c.wrap(err, "failed to list devices")
	}

	devices := make([]Device, len(raw))
	for i, d := range raw {
		devices[i] = Device{ID: string(d.ID), Name: d.Name, Active: d.Active}
	}
	return devices, nil
}

// TransferPlayback moves playback to the given device.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, autoplay bool) error {
	err := c.retry(func() error {
		return c.client.TransferPlayback(ctx, spotify.ID(deviceID), autoplay)
	})
	return c.wrap(err, "failed to transfer playback")
}

// PlayTrack starts playback of a single track by ID or URI.
func (c *Client) PlayTrack(ctx context.Context, track string) error {
	opt := &spotify.PlayOptions{
		URIs: []spotify.URI{TrackURI(track)},
	}
	if c.deviceID != "" {
		opt.DeviceID = &c.deviceID
	}
	err := c.retry(func() error {
		return c.client.PlayOpt(ctx, opt)
	})
	return c.wrap(err, "failed to play track")
}

// PlayTrackInContext starts playback of a track within an album or
// playlist context.
func (c *Client) PlayTrackInContext(ctx context.Context, track, playContext string) error {
	ctxURI := ContextURI(playContext)
	opt := &spotify.PlayOptions{
		PlaybackContext: &ctxURI,
		PlaybackOffset:  &spotify.PlaybackOffset{URI: TrackURI(track)},
	}
	if c.deviceID != "" {
		opt.DeviceID = &c.deviceID
	}
	err := c.retry(func() error {
		return c.client.PlayOpt(ctx, opt)
	})
	return c.wrap(err, "failed to play track in context")
}

// ResolveDevice binds the client to a device selected by ID or name and
// optionally transfers playback to it. It is called once at startup; the
// bound device ID is read-only afterwards.
func (c *Client) ResolveDevice(ctx context.Context, byID, byName string, autoTransfer bool) (Device, error) {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return Device{}, err
	}

	var selected *Device
	for i, d := range devices {
		if byID != "" && d.ID == byID {
			selected = &devices[i]
			break
		}
		if byID == "" && byName != "" && d.Name == byName {
			selected = &devices[i]
			break
		}
	}
	if selected == nil {
		return Device{}, errors.Newf("no matching device (id=%q name=%q, %d available)", byID, byName, len(devices))
	}

	c.deviceID = spotify.ID(selected.ID)

	if autoTransfer && !selected.Active {
		if err := c.TransferPlayback(ctx, selected.ID, true); err != nil {
			return *selected, err
		}
	}
	return *selected, nil
}

// playerCall issues a simple player command, routing through the device
// bound option variant when a device is configured.
func (c *Client) playerCall(ctx context.Context, name string,
	plain func(context.Context) error,
	withOpt func(context.Context, *spotify.PlayOptions) error,
) error {
	err := c.retry(func() error {
		if opt := c.deviceOpt(); opt != nil {
			return withOpt(ctx, opt)
		}
		return plain(ctx)
	})
	return c.wrap(err, "failed to "+name)
}

func (c *Client) deviceOpt() *spotify.PlayOptions {
	if c.deviceID == "" {
		return nil
	}
	return &spotify.PlayOptions{DeviceID: &c.deviceID}
}

// wrap annotates an upstream error, marking the benign no-active-device
// condition so callers can suppress it.
func (c *Client) wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isNoActiveDevice(err) {
		return errors.Mark(errors.Wrap(err, msg), ErrNoActiveDevice)
	}
	return errors.Wrap(err, msg)
}

// convertSnapshot converts a zmb3 player state to the domain snapshot.
func convertSnapshot(state *spotify.PlayerState) *player.Snapshot {
	snap := &player.Snapshot{
		IsPlaying:    state.Playing,
		ProgressMs:   int(state.Progress),
		Volume:       int(state.Device.Volume),
		RepeatMode:   state.RepeatState,
		Shuffle:      state.ShuffleState,
		DeviceName:   state.Device.Name,
		DeviceActive: state.Device.Active,
	}

	if t := state.Item; t != nil {
		artists := make([]string, len(t.Artists))
		for i, a := range t.Artists {
			artists[i] = a.Name
		}
		var albumArt string
		if len(t.Album.Images) > 0 {
			albumArt = t.Album.Images[0].URL
		}
		snap.Item = &player.Item{
			URI:         string(t.URI),
			Name:        t.Name,
			Artists:     artists,
			Album:       t.Album.Name,
			AlbumArtURL: albumArt,
			DurationMs:  int(t.Duration),
		}
	}
	return snap
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isNoActiveDevice detects Spotify's NO_ACTIVE_DEVICE player error.
func isNoActiveDevice(err error) bool {
	var se spotify.Error
	if errors.As(err, &se) {
		if se.Status == 404 && strings.Contains(strings.ToLower(se.Message), "device") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "no active device")
}

// TrackURI converts a bare track ID to a spotify:track: URI. Fully
// qualified URIs pass through unchanged.
func TrackURI(input string) spotify.URI {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:") {
		return spotify.URI(input)
	}
	return spotify.URI("spotify:track:" + input)
}

// ContextURI converts a bare context ID to a URI. A bare 22-character
// identifier is assumed to be an album, anything else a playlist. This is
// undocumented upstream convention, not a guarantee.
func ContextURI(input string) spotify.URI {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:") {
		return spotify.URI(input)
	}
	if len(input) == 22 {
		return spotify.URI("spotify:album:" + input)
	}
	return spotify.URI("spotify:playlist:" + input)
}
