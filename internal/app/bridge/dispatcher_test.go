package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_ControlDisabledRejectsWithoutUpstreamContact(t *testing.T) {
	up := &fakeUpstream{snapshot: testSnapshot(50)}
	b, bc, _ := newTestBridge(t, up, Config{ControlEnabled: false})
	ctx := context.Background()

	commands := map[string]func() error{
		"play":     func() error { return b.Play(ctx) },
		"pause":    func() error { return b.Pause(ctx) },
		"toggle":   func() error { return b.TogglePlayPause(ctx) },
		"next":     func() error { return b.NextTrack(ctx) },
		"previous": func() error { return b.PreviousTrack(ctx) },
		"seek":     func() error { return b.SeekTo(ctx, 10) },
		"seekBy":   func() error { return b.SeekBy(ctx, 10) },
		"volume":   func() error { return b.SetVolume(ctx, 50) },
		"up":       func() error { return b.VolumeUp(ctx) },
		"down":     func() error { return b.VolumeDown(ctx) },
		"mute":     func() error { return b.Mute(ctx) },
		"unmute":   func() error { return b.Unmute(ctx) },
		"ramp":     func() error { return b.RampVolume(80, 10, 3) },
		"repeat":   func() error { return b.SetRepeat(ctx, true) },
		"shuffle":  func() error { return b.SetShuffle(ctx, true) },
		"track":    func() error { return b.PlayTrack(ctx, "abc") },
		"context":  func() error { return b.PlayTrackInContext(ctx, "abc", "def") },
	}

	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, cmd(), ErrControlDisabled)
		})
	}
	assert.Empty(t, up.callNames(), "disabled control must never contact upstream")

	// State observation continues regardless of the control flag.
	b.pollOnce(ctx)
	assert.Equal(t, 1, bc.payloadCount())
}

func TestDispatcher_NotConfiguredRejection(t *testing.T) {
	b, _, _ := newTestBridge(t, nil, Config{ControlEnabled: true})
	ctx := context.Background()

	assert.ErrorIs(t, b.Play(ctx), ErrNotConfigured)
	assert.ErrorIs(t, b.SetVolume(ctx, 40), ErrNotConfigured)
	assert.ErrorIs(t, b.RampVolume(80, 10, 3), ErrNotConfigured)

	// Querying state still works and reports the empty Stopped shape.
	state := b.CurrentState()
	assert.Equal(t, "Stopped", string(state.PlaybackInfo.PlayerState))
}

func TestDispatcher_ToggleReadsUpstreamFirst(t *testing.T) {
	up := &fakeUpstream{snapshot: testSnapshot(50)}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()

	require.NoError(t, b.TogglePlayPause(ctx))
	assert.Equal(t, []string{"getPlaybackState", "pause"}, up.callNames())

	up.mu.Lock()
	up.snapshot.IsPlaying = false
	up.calls = nil
	up.mu.Unlock()

	require.NoError(t, b.TogglePlayPause(ctx))
	assert.Equal(t, []string{"getPlaybackState", "play"}, up.callNames())
}

func TestDispatcher_ToggleWithNothingLoadedIssuesPlay(t *testing.T) {
	up := &fakeUpstream{snapshot: nil}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})

	require.NoError(t, b.TogglePlayPause(context.Background()))
	assert.Equal(t, []string{"getPlaybackState", "play"}, up.callNames())
}

func TestDispatcher_PauseIsIdempotent(t *testing.T) {
	up := &fakeUpstream{snapshot: testSnapshot(50)}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()

	assert.NoError(t, b.Pause(ctx))
	assert.NoError(t, b.Pause(ctx), "a second pause must not error differently")
}

func TestDispatcher_RelativeVolumeResolvesAgainstLastBroadcast(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()
	seedVolume(t, b, up, 95)

	require.NoError(t, b.VolumeUp(ctx))
	require.NoError(t, b.VolumeDown(ctx))

	assert.Equal(t, []int{100, 85}, up.sentVolumes(), "up clamps to 100, down resolves from cached 95")
}

func TestDispatcher_VolumeAbsoluteClamped(t *testing.T) {
	up := &fakeUpstream{snapshot: testSnapshot(50)}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()

	require.NoError(t, b.SetVolume(ctx, 180))
	require.NoError(t, b.SetVolume(ctx, -5))

	assert.Equal(t, []int{100, 0}, up.sentVolumes())
}

func TestDispatcher_SeekRelativeClampsAtZero(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()
	seedVolume(t, b, up, 50) // position 42s

	require.NoError(t, b.SeekBy(ctx, -90))
	assert.Equal(t, []int{0}, up.sentVolumes())

	require.NoError(t, b.SeekBy(ctx, 8))
	assert.Equal(t, []int{0, 50000}, up.sentVolumes(), "42s + 8s in milliseconds")
}

func TestDispatcher_MuteAndUnmute(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()
	seedVolume(t, b, up, 65)

	require.NoError(t, b.Mute(ctx))
	require.NoError(t, b.Unmute(ctx))

	assert.Equal(t, []int{0, 65}, up.sentVolumes(), "unmute restores the last observed non-zero volume")
}

func TestDispatcher_UnmuteFallsBackToFifty(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()
	seedVolume(t, b, up, 0) // never observed a non-zero volume

	require.NoError(t, b.Unmute(ctx))
	assert.Equal(t, []int{50}, up.sentVolumes())
}

func TestDispatcher_DirectVolumeRejectedDuringRamp(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()
	seedVolume(t, b, up, 20)

	require.NoError(t, b.RampVolume(80, 10, 30))
	require.True(t, b.Ramping())

	sent := len(up.sentVolumes())
	assert.ErrorIs(t, b.SetVolume(ctx, 10), ErrRampInProgress)
	assert.ErrorIs(t, b.VolumeUp(ctx), ErrRampInProgress)
	assert.ErrorIs(t, b.VolumeDown(ctx), ErrRampInProgress)
	assert.ErrorIs(t, b.Mute(ctx), ErrRampInProgress)
	assert.ErrorIs(t, b.Unmute(ctx), ErrRampInProgress)
	assert.Len(t, up.sentVolumes(), sent, "rejected volume commands must not reach upstream")

	// Non-volume commands are unaffected by a live ramp.
	assert.NoError(t, b.Play(ctx))
}

func TestDispatcher_RepeatModes(t *testing.T) {
	up := &fakeUpstream{snapshot: testSnapshot(50)}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	ctx := context.Background()

	require.NoError(t, b.SetRepeat(ctx, true))
	require.NoError(t, b.SetRepeat(ctx, false))
	require.NoError(t, b.SetShuffle(ctx, true))

	assert.Equal(t, []string{"setRepeat:context", "setRepeat:off", "setShuffle:on"}, up.callNames())
}
