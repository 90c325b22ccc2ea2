package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedVolume runs one poll so the bridge has a last known volume.
func seedVolume(t *testing.T, b *Bridge, up *fakeUpstream, volume int) {
	t.Helper()
	up.mu.Lock()
	up.snapshot = testSnapshot(volume)
	up.mu.Unlock()
	b.pollOnce(context.Background())
}

// drainSteps fires scheduled ramp steps until none remain.
func drainSteps(pending *[]func()) {
	for len(*pending) > 0 {
		step := (*pending)[0]
		*pending = (*pending)[1:]
		step()
	}
}

func TestRamp_TwentyToEighty(t *testing.T) {
	up := &fakeUpstream{}
	b, bc, pending := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 20)

	require.NoError(t, b.RampVolume(80, 10, 3))

	// 6 steps at |80-20|/10; the first fires immediately.
	drainSteps(pending)

	assert.Equal(t, []int{30, 40, 50, 60, 70, 80}, up.sentVolumes())
	assert.Equal(t, []bool{true, false}, bc.rampingLog())
	assert.False(t, b.Ramping())
	assert.Len(t, b.pollWake, 1, "completion must force a reconciliation poll")
}

func TestRamp_StepDelayDerivation(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 20)

	var captured time.Duration
	b.startTimer = func(d time.Duration, fn func()) func() {
		captured = d
		return func() {}
	}

	require.NoError(t, b.RampVolume(80, 10, 3))
	assert.Equal(t, 500*time.Millisecond, captured, "3s over 6 steps")
}

func TestRamp_StepDelayFloor(t *testing.T) {
	up := &fakeUpstream{}
	b, _, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 0)

	var captured time.Duration
	b.startTimer = func(d time.Duration, fn func()) func() {
		captured = d
		return func() {}
	}

	// 100 steps over 1 second would be 10ms each; floor is 100ms.
	require.NoError(t, b.RampVolume(100, 1, 1))
	assert.Equal(t, 100*time.Millisecond, captured)
}

func TestRamp_TargetClamped(t *testing.T) {
	up := &fakeUpstream{}
	b, _, pending := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 90)

	require.NoError(t, b.RampVolume(250, 5, 1))
	drainSteps(pending)

	volumes := up.sentVolumes()
	require.NotEmpty(t, volumes)
	assert.Equal(t, 100, volumes[len(volumes)-1])
}

func TestRamp_DownwardReachesTarget(t *testing.T) {
	up := &fakeUpstream{}
	b, _, pending := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 75)

	require.NoError(t, b.RampVolume(15, 20, 2))
	drainSteps(pending)

	// ceil(60/20) = 3 steps down.
	assert.Equal(t, []int{55, 35, 15}, up.sentVolumes())
}

func TestRamp_SupersedeCancelsPrevious(t *testing.T) {
	up := &fakeUpstream{}
	b, bc, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 0)

	stopped := 0
	var pending []func()
	b.startTimer = func(d time.Duration, fn func()) func() {
		pending = append(pending, fn)
		return func() { stopped++ }
	}

	require.NoError(t, b.RampVolume(100, 10, 10))
	firstSession := b.ramp
	require.NotNil(t, firstSession)

	require.NoError(t, b.RampVolume(40, 10, 10))
	assert.Equal(t, 1, stopped, "old session timer must be stopped before the new one is scheduled")
	assert.NotSame(t, firstSession, b.ramp)
	assert.Equal(t, []bool{true, true}, bc.rampingLog(), "supersede keeps the ramping flag raised")

	// A stale timer from the superseded session must be a no-op.
	before := len(up.sentVolumes())
	pending[0]()
	assert.Len(t, up.sentVolumes(), before, "stale tick must not issue setVolume")
}

func TestRamp_StepFailureIsNonFatal(t *testing.T) {
	up := &fakeUpstream{callErr: assert.AnError}
	b, bc, pending := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 40)

	require.NoError(t, b.RampVolume(60, 10, 1))
	drainSteps(pending)

	assert.Equal(t, []int{50, 60}, up.sentVolumes(), "ramp continues past failed steps")
	assert.Equal(t, []bool{true, false}, bc.rampingLog())
}

func TestRamp_CancelOnClose(t *testing.T) {
	up := &fakeUpstream{}
	b, bc, _ := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 0)

	stopped := 0
	b.startTimer = func(d time.Duration, fn func()) func() {
		return func() { stopped++ }
	}

	require.NoError(t, b.RampVolume(100, 10, 30))
	require.True(t, b.Ramping())

	b.Close()

	assert.False(t, b.Ramping())
	assert.Equal(t, 1, stopped)
	log := bc.rampingLog()
	assert.Equal(t, false, log[len(log)-1])
}

func TestRamp_MinimumOneStep(t *testing.T) {
	up := &fakeUpstream{}
	b, _, pending := newTestBridge(t, up, Config{ControlEnabled: true})
	seedVolume(t, b, up, 50)

	// Target equals start: still one step, still reaches the target.
	require.NoError(t, b.RampVolume(50, 10, 1))
	drainSteps(pending)

	assert.Equal(t, []int{50}, up.sentVolumes())
	assert.False(t, b.Ramping())
}
