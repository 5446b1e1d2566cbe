package trace

import (
	"context"
	"log/slog"
)

const phaseComplete = "X"

// ClassifyRecord maps one record to a timing event. The second result is false
// for records the latency computation does not care about.
func ClassifyRecord(r *RawRecord) (TimingEvent, bool) {
	switch r.Name {
	case "EventDispatch":
		if r.InteractionType() == "click" {
			return newEvent(KindClick, r.Ts, r.duration(), r), true
		}
	case "CompositeLayers":
		return completeEvent(KindCompositeLayers, r)
	case "Layout":
		return completeEvent(KindLayout, r)
	case "Paint":
		return completeEvent(KindPaint, r)
	case "FireAnimationFrame":
		return completeEvent(KindFireAnimationFrame, r)
	case "UpdateLayoutTree":
		return completeEvent(KindUpdateLayoutTree, r)
	case "RequestAnimationFrame":
		return newEvent(KindRequestAnimationFrame, r.Ts, 0, r), true
	}
	return TimingEvent{}, false
}

func completeEvent(k Kind, r *RawRecord) (TimingEvent, bool) {
	if r.Ph != phaseComplete {
		return TimingEvent{}, false
	}
	return newEvent(k, r.Ts, r.duration(), r), true
}

// Classify filters records down to timing events in input order. Every
// classified event is logged at debug level when logger is non-nil.
func Classify(records []RawRecord, logger *slog.Logger) []TimingEvent {
	events := make([]TimingEvent, 0)
	debug := logger != nil && logger.Enabled(context.Background(), slog.LevelDebug)
	for i := range records {
		e, ok := ClassifyRecord(&records[i])
		if !ok {
			continue
		}
		if debug {
			logger.Debug("classified trace event",
				"kind", e.Kind.String(), "ts", float64(e.Start), "dur", float64(e.Duration), "end", float64(e.End))
		}
		events = append(events, e)
	}
	return events
}
