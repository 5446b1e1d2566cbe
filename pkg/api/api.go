package api

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which layout and paint events define the end of an interaction.
type Mode int

const (
	// FirstPaintAfterLayout pivots on the last layout after the click and
	// takes the earliest paint after it.
	FirstPaintAfterLayout Mode = iota + 1
	// LastPaint pivots on the click and takes the last paint after it.
	LastPaint
)

// DefaultFrameBudgetMS is the animation-frame delay tolerated before a
// deferred frame callback is subtracted from the measured latency.
const DefaultFrameBudgetMS = 16.0

func (m Mode) String() string {
	switch m {
	case FirstPaintAfterLayout:
		return "first_paint_after_layout"
	case LastPaint:
		return "last_paint"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) Valid() bool {
	return m == FirstPaintAfterLayout || m == LastPaint
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first_paint_after_layout", "first-paint-after-layout", "first":
		return FirstPaintAfterLayout, nil
	case "last_paint", "last-paint", "last":
		return LastPaint, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type Options struct {
	Mode Mode
	// FrameBudgetMS overrides DefaultFrameBudgetMS when positive.
	FrameBudgetMS float64
}

func (o Options) FrameBudget() float64 {
	if o.FrameBudgetMS > 0 {
		return o.FrameBudgetMS
	}
	return DefaultFrameBudgetMS
}

var (
	ErrCaptureRead                = errors.New("trace capture unreadable")
	ErrAmbiguousInteraction       = errors.New("exactly one click event is expected")
	ErrMissingLayout              = errors.New("no layout event after click")
	ErrMissingPaint               = errors.New("no paint event found")
	ErrInconsistentAnimationFrame = errors.New("one fire animation frame but inconsistent request animation frames")
	ErrNegativeDuration           = errors.New("negative duration")
	ErrNonFiniteDuration          = errors.New("duration is not a finite number")
	ErrInvalidMode                = errors.New("invalid measurement mode")
)

var failureKinds = []struct {
	err  error
	kind string
}{
	{ErrCaptureRead, "capture_read"},
	{ErrAmbiguousInteraction, "ambiguous_interaction"},
	{ErrMissingLayout, "missing_layout"},
	{ErrMissingPaint, "missing_paint"},
	{ErrInconsistentAnimationFrame, "inconsistent_animation_frame"},
	{ErrNegativeDuration, "negative_duration"},
	{ErrNonFiniteDuration, "non_finite_duration"},
	{ErrInvalidMode, "invalid_mode"},
}

// FailureKind returns the stable identifier of the failure wrapped by err,
// "" for nil and "unknown" for errors outside the taxonomy.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	for _, fk := range failureKinds {
		if errors.Is(err, fk.err) {
			return fk.kind
		}
	}
	return "unknown"
}
