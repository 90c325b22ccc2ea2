package bridge

import (
	"context"
)

// volumeStep is the delta applied by the volume up/down verbs.
const volumeStep = 10

// unmuteFallbackVolume is restored on unmute when no non-zero volume has
// ever been observed.
const unmuteFallbackVolume = 50

// guard applies the global control policy. State observation continues
// regardless of the outcome.
func (b *Bridge) guard() error {
	if !b.controlEnabled {
		return ErrControlDisabled
	}
	if b.upstream == nil {
		return ErrNotConfigured
	}
	return nil
}

// volumeGuard additionally rejects direct volume commands while a ramp
// session is live.
func (b *Bridge) volumeGuard() error {
	if err := b.guard(); err != nil {
		return err
	}
	if b.Ramping() {
		return ErrRampInProgress
	}
	return nil
}

// Play resumes playback.
func (b *Bridge) Play(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.Play(ctx)
}

// Pause pauses playback.
func (b *Bridge) Pause(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.Pause(ctx)
}

// TogglePlayPause reads the upstream playing state immediately before
// deciding which action to issue. The fresh read (rather than cached poll
// state) keeps the race window minimal.
func (b *Bridge) TogglePlayPause(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}

	snap, err := b.upstream.GetPlaybackState(ctx)
	if err != nil {
		return err
	}
	if snap != nil && snap.IsPlaying {
		return b.upstream.Pause(ctx)
	}
	return b.upstream.Play(ctx)
}

// NextTrack skips to the next track.
func (b *Bridge) NextTrack(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.Next(ctx)
}

// PreviousTrack skips to the previous track.
func (b *Bridge) PreviousTrack(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.Previous(ctx)
}

// SeekTo jumps to an absolute position in seconds.
func (b *Bridge) SeekTo(ctx context.Context, seconds float64) error {
	if err := b.guard(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	return b.upstream.Seek(ctx, int(seconds*1000))
}

// SeekBy seeks relative to the last broadcast position. The delta is
// resolved against cached poll state, not a fresh upstream read.
func (b *Bridge) SeekBy(ctx context.Context, deltaSeconds float64) error {
	if err := b.guard(); err != nil {
		return err
	}
	target := b.lastKnownPosition() + deltaSeconds
	if target < 0 {
		target = 0
	}
	return b.upstream.Seek(ctx, int(target*1000))
}

// PlayTrack starts playback of a track by bare ID or URI.
func (b *Bridge) PlayTrack(ctx context.Context, track string) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.PlayTrack(ctx, track)
}

// PlayTrackInContext starts a track within an album or playlist context.
func (b *Bridge) PlayTrackInContext(ctx context.Context, track, playContext string) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.PlayTrackInContext(ctx, track, playContext)
}

// SetVolume sets an absolute volume, clamped to 0-100.
func (b *Bridge) SetVolume(ctx context.Context, volume int) error {
	if err := b.volumeGuard(); err != nil {
		return err
	}
	return b.upstream.SetVolume(ctx, clampVolume(volume))
}

// VolumeUp raises the volume by 10 relative to the last broadcast value.
func (b *Bridge) VolumeUp(ctx context.Context) error {
	if err := b.volumeGuard(); err != nil {
		return err
	}
	return b.upstream.SetVolume(ctx, clampVolume(b.lastKnownVolume()+volumeStep))
}

// VolumeDown lowers the volume by 10 relative to the last broadcast value.
func (b *Bridge) VolumeDown(ctx context.Context) error {
	if err := b.volumeGuard(); err != nil {
		return err
	}
	return b.upstream.SetVolume(ctx, clampVolume(b.lastKnownVolume()-volumeStep))
}

// Mute sets the volume to zero. The pre-mute volume is retained by the
// poll loop for Unmute.
func (b *Bridge) Mute(ctx context.Context) error {
	if err := b.volumeGuard(); err != nil {
		return err
	}
	return b.upstream.SetVolume(ctx, 0)
}

// Unmute restores the last non-zero volume the poll loop observed.
func (b *Bridge) Unmute(ctx context.Context) error {
	if err := b.volumeGuard(); err != nil {
		return err
	}

	b.mu.Lock()
	restore := b.lastNonZeroVolume
	b.mu.Unlock()
	if restore == 0 {
		restore = unmuteFallbackVolume
	}
	return b.upstream.SetVolume(ctx, restore)
}

// RampVolume starts a timed volume ramp, superseding any live one.
func (b *Bridge) RampVolume(target, changePercent, rampTimeSeconds float64) error {
	if err := b.guard(); err != nil {
		return err
	}
	b.startRamp(target, changePercent, rampTimeSeconds)
	return nil
}

// SetRepeat switches repeat on (context mode) or off.
func (b *Bridge) SetRepeat(ctx context.Context, on bool) error {
	if err := b.guard(); err != nil {
		return err
	}
	mode := "off"
	if on {
		mode = "context"
	}
	return b.upstream.SetRepeat(ctx, mode)
}

// SetShuffle switches shuffle on or off.
func (b *Bridge) SetShuffle(ctx context.Context, on bool) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.upstream.SetShuffle(ctx, on)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
