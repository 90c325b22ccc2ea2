// Package bridge implements the state reconciliation and control-dispatch
// engine: it polls the upstream provider, normalizes and de-duplicates
// snapshots, fans state changes out to subscribers, and maps inbound
// control verbs to upstream side effects.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/domain/player"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/infra/spotify"
)

// Version is the bridge API version reported to clients.
const Version = "2.1.0"

// Upstream is the capability set the bridge requires from the playback
// provider. All calls are fallible; authentication is the provider's
// concern.
type Upstream interface {
	GetPlaybackState(ctx context.Context) (*player.Snapshot, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, percent int) error
	SetRepeat(ctx context.Context, mode string) error
	SetShuffle(ctx context.Context, on bool) error
	PlayTrack(ctx context.Context, track string) error
	PlayTrackInContext(ctx context.Context, track, playContext string) error
}

// Broadcaster fans events out to connected subscribers.
type Broadcaster interface {
	BroadcastState(payload player.StateChangePayload)
	BroadcastRamping(active bool)
}

// Config holds bridge configuration.
type Config struct {
	PollInterval   time.Duration // default 1s
	ControlEnabled bool
}

// Bridge owns all shared mutable bridge state. Multiple independent
// instances can coexist, there are no package-level singletons.
type Bridge struct {
	upstream       Upstream // nil when credentials were never configured
	broadcaster    Broadcaster
	controlEnabled bool
	pollInterval   time.Duration

	mu                sync.Mutex
	lastPayload       *player.StateChangePayload
	lastNonZeroVolume int
	ramp              *rampSession

	pollWake chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}

	// startTimer schedules a ramp step. Swapped for a manual trigger in
	// tests so ramps run without real timers.
	startTimer func(d time.Duration, fn func()) (stop func())
}

// New creates a bridge. upstream may be nil; the bridge then serves the
// empty Stopped state and rejects every command as not configured.
func New(upstream Upstream, broadcaster Broadcaster, cfg Config) *Bridge {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Bridge{
		upstream:       upstream,
		broadcaster:    broadcaster,
		controlEnabled: cfg.ControlEnabled,
		pollInterval:   interval,
		pollWake:       make(chan struct{}, 1),
		startTimer: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
	}
}

// Version returns the bridge API version.
func (b *Bridge) Version() string { return Version }

// ControlEnabled reports whether commands are allowed to reach upstream.
func (b *Bridge) ControlEnabled() bool { return b.controlEnabled }

// Configured reports whether an upstream client is available.
func (b *Bridge) Configured() bool { return b.upstream != nil }

// CurrentState returns the last broadcast payload, or the empty Stopped
// payload when nothing has been observed yet.
func (b *Bridge) CurrentState() player.StateChangePayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastPayload == nil {
		return player.Normalize(nil)
	}
	return *b.lastPayload
}

// Ramping reports whether a volume ramp session is live.
func (b *Bridge) Ramping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ramp != nil
}

// Start launches the poll loop. The first poll happens immediately rather
// than after the first interval tick. Start is a no-op when the bridge is
// not configured.
func (b *Bridge) Start(ctx context.Context) {
	if b.upstream == nil {
		zlog.Warn().Msg("bridge: no upstream configured, state polling disabled")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)

		zlog.Info().Msgf("bridge: polling started: interval=%v", b.pollInterval)
		b.pollOnce(ctx)

		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				zlog.Info().Msg("bridge: polling stopped")
				return
			case <-ticker.C:
				b.pollOnce(ctx)
			case <-b.pollWake:
				b.pollOnce(ctx)
			}
		}
	}()
}

// Close stops the poll loop and cancels any live ramp session. The last
// broadcast payload is retained so new subscribers still receive it.
func (b *Bridge) Close() {
	b.cancelRamp()
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

// forcePoll requests an immediate poll, bypassing the interval. Used
// after a ramp completes to reconcile broadcast state with the just
// applied volume.
func (b *Bridge) forcePoll() {
	select {
	case b.pollWake <- struct{}{}:
	default:
	}
}

// pollOnce performs a single poll tick: fetch, normalize, detect change,
// broadcast. A failed tick is logged and skipped; it never stops the
// loop.
func (b *Bridge) pollOnce(ctx context.Context) {
	snap, err := b.upstream.GetPlaybackState(ctx)
	if err != nil {
		if errors.Is(err, spotify.ErrNoActiveDevice) {
			zlog.Debug().Msg("bridge: poll skipped, no active device")
		} else {
			zlog.Error().Err(err).Msg("bridge: poll failed")
		}
		return
	}

	payload := player.Normalize(snap)

	b.mu.Lock()
	if payload.State.Volume > 0 {
		b.lastNonZeroVolume = payload.State.Volume
	}
	changed := b.lastPayload == nil || !b.lastPayload.Equal(payload)
	if changed {
		p := payload
		b.lastPayload = &p
	}
	b.mu.Unlock()

	if changed {
		zlog.Debug().
			Str("track", payload.PlaybackInfo.Name).
			Str("state", string(payload.State.State)).
			Msg("bridge: state changed, broadcasting")
		b.broadcaster.BroadcastState(payload)
	}
}

// lastKnownVolume returns the volume of the last broadcast payload, or 0.
func (b *Bridge) lastKnownVolume() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastPayload == nil {
		return 0
	}
	return b.lastPayload.State.Volume
}

// lastKnownPosition returns the position of the last broadcast payload in
// seconds, or 0.
func (b *Bridge) lastKnownPosition() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastPayload == nil {
		return 0
	}
	return b.lastPayload.State.Position
}
