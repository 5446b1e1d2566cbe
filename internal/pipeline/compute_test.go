package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracelatency/internal/trace"
	"tracelatency/pkg/api"
)

func ev(k trace.Kind, start, dur float64) trace.TimingEvent {
	return trace.TimingEvent{Kind: k, Start: trace.Micros(start), Duration: trace.Micros(dur), End: trace.Micros(start + dur)}
}

func click(start, dur float64) trace.TimingEvent  { return ev(trace.KindClick, start, dur) }
func layout(start, dur float64) trace.TimingEvent { return ev(trace.KindLayout, start, dur) }
func paint(start, dur float64) trace.TimingEvent  { return ev(trace.KindPaint, start, dur) }
func raf(start float64) trace.TimingEvent         { return ev(trace.KindRequestAnimationFrame, start, 0) }
func faf(start, dur float64) trace.TimingEvent    { return ev(trace.KindFireAnimationFrame, start, dur) }

var (
	lastPaint  = api.Options{Mode: api.LastPaint}
	firstPaint = api.Options{Mode: api.FirstPaintAfterLayout}
)

func noteCodes(c Computation) []string {
	codes := make([]string, 0, len(c.Notes))
	for _, n := range c.Notes {
		codes = append(codes, n.Code)
	}
	return codes
}

func TestBasicLatencyNoAnimationFrames(t *testing.T) {
	events := []trace.TimingEvent{click(0, 5), layout(10, 10), paint(25, 5)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, c.DurationMS, 1e-12)
	assert.Equal(t, c.RawDurationMS, c.DurationMS)
	assert.Zero(t, c.CorrectionMS)
	assert.Empty(t, c.Notes)
}

func TestMissingPaint(t *testing.T) {
	events := []trace.TimingEvent{click(0, 5), layout(10, 10)}
	_, err := Compute(events, lastPaint)
	assert.ErrorIs(t, err, api.ErrMissingPaint)

	_, err = Compute(events, firstPaint)
	assert.ErrorIs(t, err, api.ErrMissingPaint)
}

func TestPaintBeforeClickEndDoesNotQualify(t *testing.T) {
	events := []trace.TimingEvent{click(0, 50), paint(50, 5)}
	_, err := Compute(events, lastPaint)
	assert.ErrorIs(t, err, api.ErrMissingPaint)
}

func TestClickUniqueness(t *testing.T) {
	tests := []struct {
		name   string
		events []trace.TimingEvent
	}{
		{name: "no click", events: []trace.TimingEvent{layout(10, 10), paint(25, 5)}},
		{name: "two clicks", events: []trace.TimingEvent{click(0, 5), click(7, 1), layout(10, 10), paint(25, 5)}},
		{name: "empty", events: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, opt := range []api.Options{lastPaint, firstPaint} {
				_, err := Compute(tc.events, opt)
				assert.ErrorIs(t, err, api.ErrAmbiguousInteraction)
			}
		})
	}
}

func TestModeSensitivity(t *testing.T) {
	events := []trace.TimingEvent{
		paint(1500, 10),
		layout(1100, 100),
		click(0, 100),
		paint(1300, 10),
		layout(900, 100),
	}

	c, err := Compute(events, firstPaint)
	require.NoError(t, err)
	assert.Equal(t, trace.KindLayout, c.Pivot.Kind)
	assert.Equal(t, trace.Micros(1200), c.Pivot.End)
	assert.Equal(t, trace.Micros(1300), c.Paint.Start)
	assert.InDelta(t, 1.31, c.DurationMS, 1e-9)
	assert.Equal(t, []string{NoteMultipleLayouts, NoteMultiplePaints}, noteCodes(c))

	c, err = Compute(events, lastPaint)
	require.NoError(t, err)
	assert.Equal(t, trace.KindClick, c.Pivot.Kind)
	assert.Equal(t, trace.Micros(1500), c.Paint.Start)
	assert.InDelta(t, 1.51, c.DurationMS, 1e-9)
	assert.Equal(t, []string{NoteMultiplePaints}, noteCodes(c))
}

func TestFirstPaintAfterLayoutRequiresLayout(t *testing.T) {
	events := []trace.TimingEvent{click(0, 100), layout(50, 10), paint(300, 10)}
	_, err := Compute(events, firstPaint)
	assert.ErrorIs(t, err, api.ErrMissingLayout)

	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Layouts)
	assert.InDelta(t, 0.31, c.DurationMS, 1e-9)
}

func TestFirstPaintAfterLayoutIgnoresPaintBeforePivot(t *testing.T) {
	events := []trace.TimingEvent{click(0, 100), paint(150, 10), layout(200, 50), paint(400, 10)}
	c, err := Compute(events, firstPaint)
	require.NoError(t, err)
	assert.Equal(t, trace.Micros(400), c.Paint.Start)
	assert.Equal(t, 1, c.Paints)
}

func TestAnimationFrameDelayWithinBudget(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(950), faf(1030, 100), paint(2000, 500)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, c.DurationMS, 1e-9)
	assert.Zero(t, c.CorrectionMS)
	assert.Equal(t, []string{NoteRafDelayWithinFrame}, noteCodes(c))
}

func TestAnimationFrameCorrectionSkippedForLayout(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(950), layout(5000, 100), faf(21000, 2000), paint(30000, 500)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.InDelta(t, 30.5, c.DurationMS, 1e-9)
	assert.Zero(t, c.CorrectionMS)
	assert.Equal(t, []string{NoteRafDelayLayout}, noteCodes(c))
}

func TestAnimationFrameCorrectionApplied(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(950), faf(21000, 2000), layout(23500, 500), paint(25000, 1000)}

	for _, opt := range []api.Options{lastPaint, firstPaint} {
		c, err := Compute(events, opt)
		require.NoError(t, err)
		assert.InDelta(t, 26.0, c.RawDurationMS, 1e-9)
		assert.InDelta(t, 4.0, c.CorrectionMS, 1e-9)
		assert.InDelta(t, 22.0, c.DurationMS, 1e-9)
		assert.Contains(t, noteCodes(c), NoteRafDelayCorrected)
	}
}

func TestAnimationFrameCustomBudget(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(950), faf(21000, 2000), paint(25000, 1000)}
	c, err := Compute(events, api.Options{Mode: api.LastPaint, FrameBudgetMS: 25})
	require.NoError(t, err)
	assert.Zero(t, c.CorrectionMS)
	assert.InDelta(t, 26.0, c.DurationMS, 1e-9)
}

func TestInconsistentAnimationFrames(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(100), raf(200), faf(1500, 100), paint(3000, 100)}
	_, err := Compute(events, lastPaint)
	assert.ErrorIs(t, err, api.ErrInconsistentAnimationFrame)
}

func TestMultipleAnimationFramesUnhandled(t *testing.T) {
	events := []trace.TimingEvent{click(0, 1000), raf(100), raf(200), faf(20000, 100), faf(22000, 100), paint(30000, 100)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.InDelta(t, 30.1, c.DurationMS, 1e-9)
	assert.Equal(t, []string{NoteRafFafUnhandled}, noteCodes(c))
}

func TestAnimationFrameWindows(t *testing.T) {
	// raf after the click and faf after the paint start do not count.
	events := []trace.TimingEvent{click(0, 1000), raf(1001), faf(21000, 10), paint(20000, 100)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rafs)
	assert.Equal(t, 0, c.Fafs)
	assert.Empty(t, c.Notes)

	// Window bounds are inclusive for rafs at click start and end.
	events = []trace.TimingEvent{click(0, 1000), raf(0), raf(1000), faf(1500, 10), paint(20000, 100)}
	_, err = Compute(events, lastPaint)
	assert.ErrorIs(t, err, api.ErrInconsistentAnimationFrame)
}

func TestNegativeDuration(t *testing.T) {
	// Events built by hand may break the End >= Start invariant.
	broken := trace.TimingEvent{Kind: trace.KindClick, Start: 1000, End: 0}
	events := []trace.TimingEvent{broken, paint(10, 10)}
	_, err := Compute(events, lastPaint)
	assert.ErrorIs(t, err, api.ErrNegativeDuration)
}

func TestNonFiniteDuration(t *testing.T) {
	inf := trace.TimingEvent{Kind: trace.KindPaint, Start: 10, Duration: trace.Micros(math.Inf(1)), End: trace.Micros(math.Inf(1))}
	_, err := Compute([]trace.TimingEvent{click(0, 5), inf}, lastPaint)
	assert.ErrorIs(t, err, api.ErrNonFiniteDuration)
}

func TestAnimationFrameDelayAtBudget(t *testing.T) {
	// faf starts exactly one frame budget after the click ends.
	events := []trace.TimingEvent{click(0, 1000), raf(950), faf(17000, 100), paint(20000, 500)}
	c, err := Compute(events, lastPaint)
	require.NoError(t, err)
	assert.Zero(t, c.CorrectionMS)
	assert.InDelta(t, 20.5, c.DurationMS, 1e-9)
	assert.Equal(t, []string{NoteRafDelayWithinFrame}, noteCodes(c))
}

func TestInvalidMode(t *testing.T) {
	_, err := Compute([]trace.TimingEvent{click(0, 5), paint(25, 5)}, api.Options{})
	assert.ErrorIs(t, err, api.ErrInvalidMode)
}

func TestComputeDeterministicAndPure(t *testing.T) {
	events := []trace.TimingEvent{paint(1500, 10), layout(1100, 100), click(0, 100), paint(1300, 10), raf(50), faf(1250, 10)}
	snapshot := append([]trace.TimingEvent(nil), events...)

	first, err := Compute(events, firstPaint)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compute(events, firstPaint)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, snapshot, events)
}
