package bridge

import (
	"context"
	"math"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// rampSession is the ephemeral state of a timed volume ramp. At most one
// live instance exists per bridge; its existence is the sole source of
// the ramping flag.
type rampSession struct {
	startVolume  int
	targetVolume int
	stepSize     int
	totalSteps   int
	stepDelay    time.Duration
	currentStep  int
	stopTimer    func()
}

// startRamp begins a volume ramp toward target, superseding any live
// session. The first step is applied immediately, before the first delay
// elapses.
func (b *Bridge) startRamp(target, changePercent, rampTimeSeconds float64) {
	targetVolume := int(math.Round(target))
	if targetVolume < 0 {
		targetVolume = 0
	} else if targetVolume > 100 {
		targetVolume = 100
	}

	stepSize := int(math.Round(changePercent))
	if stepSize < 1 {
		stepSize = 1
	}

	startVolume := b.lastKnownVolume()

	totalSteps := int(math.Ceil(math.Abs(float64(targetVolume-startVolume)) / float64(stepSize)))
	if totalSteps < 1 {
		totalSteps = 1
	}

	stepDelayMs := math.Floor(rampTimeSeconds * 1000 / float64(totalSteps))
	if stepDelayMs < 100 {
		stepDelayMs = 100
	}

	session := &rampSession{
		startVolume:  startVolume,
		targetVolume: targetVolume,
		stepSize:     stepSize,
		totalSteps:   totalSteps,
		stepDelay:    time.Duration(stepDelayMs) * time.Millisecond,
	}

	b.mu.Lock()
	// Supersede: the old session's timer is stopped before the new one is
	// scheduled, so no two ramp timers ever run concurrently.
	b.stopRampLocked()
	b.ramp = session
	b.mu.Unlock()

	zlog.Info().
		Int("from", startVolume).
		Int("to", targetVolume).
		Int("steps", totalSteps).
		Dur("step_delay", session.stepDelay).
		Msg("bridge: volume ramp started")

	b.broadcaster.BroadcastRamping(true)
	b.rampTick(session)
}

// rampTick applies one ramp step and either schedules the next tick or
// completes the session.
func (b *Bridge) rampTick(session *rampSession) {
	b.mu.Lock()
	if b.ramp != session {
		// Superseded or cancelled while the timer was in flight.
		b.mu.Unlock()
		return
	}

	session.currentStep++
	progress := float64(session.currentStep) / float64(session.totalSteps)
	volume := int(math.Round(float64(session.startVolume) +
		float64(session.targetVolume-session.startVolume)*progress))

	completed := session.currentStep >= session.totalSteps
	if completed {
		b.ramp = nil
	} else {
		next := session
		session.stopTimer = b.startTimer(session.stepDelay, func() {
			b.rampTick(next)
		})
	}
	b.mu.Unlock()

	if b.controlEnabled {
		if err := b.upstream.SetVolume(context.Background(), volume); err != nil {
			// Non-fatal, the ramp continues.
			zlog.Warn().Err(err).Int("volume", volume).Msg("bridge: ramp step failed")
		}
	}

	if completed {
		zlog.Info().Int("volume", session.targetVolume).Msg("bridge: volume ramp completed")
		b.broadcaster.BroadcastRamping(false)
		// Reconcile broadcast state with the just-applied volume without
		// waiting for the next interval tick.
		b.forcePoll()
	}
}

// cancelRamp cancels a live ramp session, if any, and broadcasts the
// ramping transition.
func (b *Bridge) cancelRamp() {
	b.mu.Lock()
	cancelled := b.stopRampLocked()
	b.mu.Unlock()

	if cancelled {
		b.broadcaster.BroadcastRamping(false)
	}
}

// stopRampLocked stops the ramp timer and clears the session. Must be
// called with b.mu held.
func (b *Bridge) stopRampLocked() bool {
	if b.ramp == nil {
		return false
	}
	if b.ramp.stopTimer != nil {
		b.ramp.stopTimer()
	}
	b.ramp = nil
	return true
}
