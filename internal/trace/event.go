package trace

import (
	"fmt"
	"sort"
)

type Kind int

const (
	KindClick Kind = iota + 1
	KindLayout
	KindPaint
	KindCompositeLayers
	KindRequestAnimationFrame
	KindFireAnimationFrame
	// KindUpdateLayoutTree is kept for diagnostics only; the duration
	// algorithm never consumes it.
	KindUpdateLayoutTree
)

var kindNames = map[Kind]string{
	KindClick:                 "click",
	KindLayout:                "layout",
	KindPaint:                 "paint",
	KindCompositeLayers:       "compositelayers",
	KindRequestAnimationFrame: "requestAnimationFrame",
	KindFireAnimationFrame:    "fireAnimationFrame",
	KindUpdateLayoutTree:      "updateLayoutTree",
}

// Kinds lists every classified kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindClick, KindLayout, KindPaint, KindCompositeLayers,
		KindRequestAnimationFrame, KindFireAnimationFrame, KindUpdateLayoutTree}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// TimingEvent is the canonical form of a classified record. End is always
// Start + Duration and never precedes Start.
type TimingEvent struct {
	Kind     Kind       `json:"kind"`
	Start    Micros     `json:"ts"`
	Duration Micros     `json:"dur"`
	End      Micros     `json:"end"`
	Raw      *RawRecord `json:"-"`
}

func newEvent(k Kind, start, dur Micros, raw *RawRecord) TimingEvent {
	if dur < 0 {
		dur = 0
	}
	return TimingEvent{Kind: k, Start: start, Duration: dur, End: start + dur, Raw: raw}
}

// SortByEnd orders events ascending by End, keeping input order for ties.
func SortByEnd(events []TimingEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].End < events[j].End })
}

// Filter returns the events of kind k that satisfy keep (nil keeps all),
// preserving order.
func Filter(events []TimingEvent, k Kind, keep func(TimingEvent) bool) []TimingEvent {
	out := make([]TimingEvent, 0)
	for _, e := range events {
		if e.Kind != k {
			continue
		}
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// CountByKind tallies events per kind name. Every kind is present, with zero
// for kinds the capture lacks.
func CountByKind(events []TimingEvent) map[string]int {
	counts := make(map[string]int, len(kindNames))
	for _, k := range Kinds() {
		counts[k.String()] = 0
	}
	for _, e := range events {
		counts[e.Kind.String()]++
	}
	return counts
}
