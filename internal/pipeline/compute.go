package pipeline

import (
	"fmt"
	"math"
	"strings"

	"tracelatency/internal/trace"
	"tracelatency/pkg/api"
)

const (
	NoteMultipleLayouts     = "multiple_layouts"
	NoteMultiplePaints      = "multiple_paints"
	NoteRafDelayWithinFrame = "raf_delay_within_budget"
	NoteRafDelayLayout      = "raf_delay_layout_before_faf"
	NoteRafDelayCorrected   = "raf_delay_corrected"
	NoteRafFafUnhandled     = "raf_faf_unhandled"
	NoteEmptyChunkStop      = "empty_chunk_stop"
)

// Note is a non-fatal observation made while computing a duration.
type Note struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Computation is the outcome of Compute. Durations are in milliseconds.
type Computation struct {
	DurationMS    float64
	RawDurationMS float64
	CorrectionMS  float64
	Click         trace.TimingEvent
	Pivot         trace.TimingEvent
	Paint         trace.TimingEvent
	Layouts       int
	Paints        int
	Rafs          int
	Fafs          int
	Notes         []Note
}

// Compute derives the interaction-to-paint latency from classified events.
// events is not modified.
func Compute(events []trace.TimingEvent, opt api.Options) (Computation, error) {
	if !opt.Mode.Valid() {
		return Computation{}, fmt.Errorf("%w: %v", api.ErrInvalidMode, opt.Mode)
	}
	sorted := append([]trace.TimingEvent(nil), events...)
	trace.SortByEnd(sorted)

	c := Computation{Notes: make([]Note, 0)}
	note := func(code, format string, args ...any) {
		c.Notes = append(c.Notes, Note{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	clicks := trace.Filter(sorted, trace.KindClick, nil)
	if len(clicks) != 1 {
		return Computation{}, fmt.Errorf("%w: found %d", api.ErrAmbiguousInteraction, len(clicks))
	}
	click := clicks[0]
	c.Click = click

	layouts := trace.Filter(sorted, trace.KindLayout, func(e trace.TimingEvent) bool { return e.Start > click.End })
	c.Layouts = len(layouts)

	pivot := click
	if opt.Mode == api.FirstPaintAfterLayout {
		if len(layouts) == 0 {
			return Computation{}, fmt.Errorf("%w: click ends at %v", api.ErrMissingLayout, float64(click.End))
		}
		if len(layouts) > 1 {
			note(NoteMultipleLayouts, "more than one layout event found (%d), layout ends after click ms: %s",
				len(layouts), offsets(layouts, click))
		}
		pivot = layouts[len(layouts)-1]
	}
	c.Pivot = pivot

	paints := trace.Filter(sorted, trace.KindPaint, func(e trace.TimingEvent) bool { return e.Start > pivot.End })
	c.Paints = len(paints)
	if len(paints) == 0 {
		return Computation{}, fmt.Errorf("%w: after %v", api.ErrMissingPaint, float64(pivot.End))
	}
	paint := paints[len(paints)-1]
	if opt.Mode == api.FirstPaintAfterLayout {
		paint = paints[0]
	}
	c.Paint = paint

	duration := (paint.End - click.Start).Millis()
	c.RawDurationMS = duration
	if len(paints) > 1 {
		note(NoteMultiplePaints, "more than one paint event found (%d), paint ends after click ms: %s; using %s",
			len(paints), offsets(paints, click), paintChoice(opt.Mode))
	}

	rafs := trace.Filter(sorted, trace.KindRequestAnimationFrame, func(e trace.TimingEvent) bool {
		return e.Start >= click.Start && e.Start <= click.End
	})
	fafs := trace.Filter(sorted, trace.KindFireAnimationFrame, func(e trace.TimingEvent) bool {
		return e.Start >= click.Start && e.Start < paint.Start
	})
	c.Rafs = len(rafs)
	c.Fafs = len(fafs)

	if len(rafs) > 0 && len(fafs) > 0 {
		budget := opt.FrameBudget()
		switch {
		case len(rafs) == 1 && len(fafs) == 1:
			faf := fafs[0]
			waitDelay := (faf.Start - click.End).Millis()
			if waitDelay <= budget {
				note(NoteRafDelayWithinFrame, "animation frame delay %.3f ms within %.0f ms frame budget", waitDelay, budget)
				break
			}
			if layoutBefore(layouts, faf.Start) {
				note(NoteRafDelayLayout, "animation frame delay %.3f ms not subtracted: layout before fired animation frame", waitDelay)
				break
			}
			c.CorrectionMS = waitDelay - budget
			duration -= c.CorrectionMS
			note(NoteRafDelayCorrected, "animation frame delay %.3f ms, subtracted %.3f ms", waitDelay, c.CorrectionMS)
		case len(fafs) == 1:
			return Computation{}, fmt.Errorf("%w: %d request animation frames within click", api.ErrInconsistentAnimationFrame, len(rafs))
		default:
			note(NoteRafFafUnhandled, "ignoring %d request animation frames and %d fired animation frames", len(rafs), len(fafs))
		}
	}

	if math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Computation{}, fmt.Errorf("%w: %v ms", api.ErrNonFiniteDuration, duration)
	}
	if duration < 0 {
		return Computation{}, fmt.Errorf("%w: %.3f ms", api.ErrNegativeDuration, duration)
	}
	c.DurationMS = duration
	return c, nil
}

func layoutBefore(layouts []trace.TimingEvent, ts trace.Micros) bool {
	for _, l := range layouts {
		if l.Start < ts {
			return true
		}
	}
	return false
}

func offsets(events []trace.TimingEvent, click trace.TimingEvent) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, fmt.Sprintf("%.3f", (e.End-click.Start).Millis()))
	}
	return strings.Join(parts, ", ")
}

func paintChoice(m api.Mode) string {
	if m == api.FirstPaintAfterLayout {
		return "the first"
	}
	return "the last"
}
