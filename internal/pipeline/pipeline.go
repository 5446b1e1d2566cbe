package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"tracelatency/internal/ingest"
	"tracelatency/internal/metrics"
	"tracelatency/internal/telemetry"
	"tracelatency/internal/trace"
	"tracelatency/pkg/api"
)

type RunConfig struct {
	MaxBytes    int64
	Concurrency int
	Encoding    string
}

func (c RunConfig) ingestOptions() ingest.Options {
	return ingest.Options{MaxBytes: c.MaxBytes, Concurrency: c.Concurrency, Encoding: c.Encoding}
}

type Result struct {
	RunID         string               `json:"run_id"`
	DurationMS    float64              `json:"duration_ms"`
	RawDurationMS float64              `json:"raw_duration_ms"`
	CorrectionMS  float64              `json:"correction_ms"`
	Mode          api.Mode             `json:"mode"`
	FrameBudgetMS float64              `json:"frame_budget_ms"`
	ClickStart    trace.Micros         `json:"click_ts"`
	ClickEnd      trace.Micros         `json:"click_end"`
	PivotKind     string               `json:"pivot_kind"`
	PivotEnd      trace.Micros         `json:"pivot_end"`
	PaintStart    trace.Micros         `json:"paint_ts"`
	PaintEnd      trace.Micros         `json:"paint_end"`
	Sources       []string             `json:"sources"`
	Notes         []Note               `json:"notes"`
	Metrics       metrics.StageMetrics `json:"metrics"`
}

type instruments struct {
	computations metric.Int64Counter
	latency      metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     instruments
)

func getInstruments() instruments {
	instOnce.Do(func() {
		meter := telemetry.GetMeter()
		var err error
		inst.computations, err = meter.Int64Counter("tracelatency_computations_total",
			metric.WithDescription("Latency computations by outcome"))
		if err != nil {
			telemetry.GetLogger().Warn("create computations counter", "error", err)
		}
		inst.latency, err = meter.Float64Histogram("tracelatency_latency_ms",
			metric.WithDescription("Interaction to paint latency"), metric.WithUnit("ms"))
		if err != nil {
			telemetry.GetLogger().Warn("create latency histogram", "error", err)
		}
	})
	return inst
}

// RunFiles loads paths as the chunks of one capture and computes its latency.
func RunFiles(ctx context.Context, opt api.Options, cfg RunConfig, paths ...string) (Result, error) {
	return run(ctx, opt, paths, func(ctx context.Context) (ingest.Result, error) {
		return ingest.LoadFiles(ctx, cfg.ingestOptions(), paths...)
	})
}

// RunBytes is RunFiles for in-memory chunk contents.
func RunBytes(ctx context.Context, opt api.Options, cfg RunConfig, contents ...[]byte) (Result, error) {
	sources := make([]string, len(contents))
	for i := range contents {
		sources[i] = fmt.Sprintf("chunk-%d", i)
	}
	return run(ctx, opt, sources, func(ctx context.Context) (ingest.Result, error) {
		return ingest.LoadBytes(ctx, cfg.ingestOptions(), contents...)
	})
}

func run(ctx context.Context, opt api.Options, sources []string, load func(context.Context) (ingest.Result, error)) (Result, error) {
	runID := uuid.NewString()
	logger := telemetry.GetLogger().With("run_id", runID)
	ctx, span := telemetry.GetTracer().Start(ctx, "tracelatency.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("tracelatency.run_id", runID),
		attribute.String("tracelatency.mode", opt.Mode.String()),
		attribute.Int("tracelatency.sources", len(sources)),
	)
	ins := getInstruments()

	res, err := compute(ctx, opt, sources, load)
	if err != nil {
		kind := api.FailureKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		if ins.computations != nil {
			ins.computations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind)))
		}
		logger.ErrorContext(ctx, "latency computation failed", "mode", opt.Mode.String(), "failure", kind, "error", err)
		return Result{}, err
	}
	res.RunID = runID

	span.SetAttributes(
		attribute.Float64("tracelatency.duration_ms", res.DurationMS),
		attribute.Float64("tracelatency.correction_ms", res.CorrectionMS),
		attribute.Int("tracelatency.notes", len(res.Notes)),
	)
	if ins.computations != nil {
		ins.computations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	}
	if ins.latency != nil {
		ins.latency.Record(ctx, res.DurationMS, metric.WithAttributes(attribute.String("mode", opt.Mode.String())))
	}
	for _, n := range res.Notes {
		logger.DebugContext(ctx, n.Message, "note", n.Code)
	}
	logger.InfoContext(ctx, "latency computed",
		"mode", opt.Mode.String(),
		"duration_ms", res.DurationMS,
		"raw_duration_ms", res.RawDurationMS,
		"correction_ms", res.CorrectionMS,
		"events", res.Metrics.EventsTotal)
	return res, nil
}

func compute(ctx context.Context, opt api.Options, sources []string, load func(context.Context) (ingest.Result, error)) (Result, error) {
	m := metrics.StageMetrics{}

	loadStart := time.Now()
	loaded, err := load(ctx)
	if err != nil {
		return Result{}, err
	}
	m.LoadMS = metrics.SinceMS(loadStart)
	m.Chunks = loaded.Chunks
	m.BytesIn = loaded.Bytes
	m.PeakBytes = loaded.PeakBytes
	m.RecordsTotal = len(loaded.Records)

	classifyStart := time.Now()
	events := trace.Classify(loaded.Records, telemetry.GetLogger())
	m.ClassifyMS = metrics.SinceMS(classifyStart)
	m.EventsTotal = len(events)
	m.EventsByKind = trace.CountByKind(events)

	computeStart := time.Now()
	c, err := Compute(events, opt)
	if err != nil {
		return Result{}, err
	}
	m.ComputeMS = metrics.SinceMS(computeStart)
	m.LayoutsAfter = c.Layouts
	m.PaintsAfter = c.Paints
	m.RafsWithinClick = c.Rafs
	m.FafsBeforePaint = c.Fafs

	notes := make([]Note, 0, len(loaded.Warnings)+len(c.Notes))
	for _, w := range loaded.Warnings {
		notes = append(notes, Note{Code: NoteEmptyChunkStop, Message: w})
	}
	notes = append(notes, c.Notes...)

	return Result{
		DurationMS:    c.DurationMS,
		RawDurationMS: c.RawDurationMS,
		CorrectionMS:  c.CorrectionMS,
		Mode:          opt.Mode,
		FrameBudgetMS: opt.FrameBudget(),
		ClickStart:    c.Click.Start,
		ClickEnd:      c.Click.End,
		PivotKind:     c.Pivot.Kind.String(),
		PivotEnd:      c.Pivot.End,
		PaintStart:    c.Paint.Start,
		PaintEnd:      c.Paint.End,
		Sources:       sources,
		Notes:         notes,
		Metrics:       m,
	}, nil
}
