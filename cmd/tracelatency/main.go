package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tracelatency/internal/config"
	"tracelatency/internal/pipeline"
	"tracelatency/internal/telemetry"
	"tracelatency/internal/version"
	"tracelatency/pkg/api"
)

const schemaVersion = 1

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := runCLI(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintf(stderr, "config: %s\n", w)
	}
	shutdown, err := telemetry.SetupInstrumentation(ctx, telemetry.Settings{
		ServiceName:  "tracelatency",
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Output:       stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "telemetry: %v\n", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			fmt.Fprintf(stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	if len(args) > 0 && args[0] == "batch" {
		return runBatch(ctx, args[1:], cfg, stdout, stderr)
	}

	fs := flag.NewFlagSet("tracelatency", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version")
	showStats := fs.Bool("stats", false, "print stage stats")
	showNotes := fs.Bool("notes", false, "print diagnostic notes")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	def := cfg.Options()
	mode := fs.String("mode", def.Mode.String(), "measurement mode: last_paint|first_paint_after_layout")
	budget := fs.Float64("frame-budget", def.FrameBudget(), "animation frame budget in ms")
	encoding := fs.String("encoding", "auto", "chunk encoding: auto|json|gzip|brotli")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "%s (%s)\n", version.Current(), version.Build())
		return 0
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: tracelatency [--mode last_paint|first_paint_after_layout] [--json] [--stats] [--notes] <trace> [<chunk>...]")
		fmt.Fprintln(stderr, "   or: tracelatency batch [--mode M] [--concurrency n] <trace>...")
		return 2
	}
	opt, ok := parseOptions(*mode, *budget, stderr)
	if !ok {
		return 2
	}

	runCfg := pipeline.RunConfig{MaxBytes: cfg.MaxBytes, Concurrency: cfg.Concurrency, Encoding: *encoding}
	res, err := pipeline.RunFiles(ctx, opt, runCfg, fs.Args()...)
	if err != nil {
		if *asJSON {
			if jerr := writeJSON(stdout, failureReport(err)); jerr != nil {
				fmt.Fprintf(stderr, "tracelatency: encode report: %v\n", jerr)
			}
		}
		fmt.Fprintf(stderr, "tracelatency: %s: %v\n", api.FailureKind(err), err)
		return 1
	}

	switch {
	case *asJSON:
		if err := writeJSON(stdout, successReport(res)); err != nil {
			fmt.Fprintf(stderr, "tracelatency: encode report: %v\n", err)
			return 1
		}
	case *showStats:
		printStats(stdout, res)
	default:
		fmt.Fprintf(stdout, "%.3f\n", res.DurationMS)
	}
	if *showNotes && !*asJSON {
		for _, n := range res.Notes {
			fmt.Fprintf(stdout, "note %s: %s\n", n.Code, n.Message)
		}
	}
	return 0
}

func parseOptions(mode string, budget float64, stderr io.Writer) (api.Options, bool) {
	m, err := api.ParseMode(mode)
	if err != nil {
		fmt.Fprintln(stderr, "invalid --mode (must be last_paint|first_paint_after_layout)")
		return api.Options{}, false
	}
	if budget <= 0 {
		fmt.Fprintln(stderr, "invalid --frame-budget (must be > 0)")
		return api.Options{}, false
	}
	return api.Options{Mode: m, FrameBudgetMS: budget}, true
}

var valueFlags = map[string]bool{
	"--mode": true, "--frame-budget": true, "--encoding": true, "--concurrency": true,
}

func reorderArgs(args []string) []string {
	flags := make([]string, 0, len(args))
	pos := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if valueFlags["--"+strings.TrimLeft(a, "-")] {
			flags = append(flags, a)
			if i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		if strings.HasPrefix(a, "-") && a != "-" {
			flags = append(flags, a)
			continue
		}
		pos = append(pos, a)
	}
	if len(pos) == 0 {
		return flags
	}
	flags = append(flags, "--")
	return append(flags, pos...)
}

type report struct {
	SchemaVersion int    `json:"schema_version"`
	EngineVersion string `json:"engine_version"`
	Build         string `json:"build"`
	Failure       string `json:"failure,omitempty"`
	Error         string `json:"error,omitempty"`
	*pipeline.Result
}

func successReport(res pipeline.Result) report {
	return report{SchemaVersion: schemaVersion, EngineVersion: version.Current(), Build: version.Build(), Result: &res}
}

func failureReport(err error) report {
	return report{
		SchemaVersion: schemaVersion,
		EngineVersion: version.Current(),
		Build:         version.Build(),
		Failure:       api.FailureKind(err),
		Error:         err.Error(),
	}
}

// writeJSON encodes v fully before writing so a failed encode leaves w untouched.
func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

type batchRow struct {
	path string
	res  pipeline.Result
	err  error
}

func runBatch(ctx context.Context, args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tracelatency batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	def := cfg.Options()
	mode := fs.String("mode", def.Mode.String(), "measurement mode: last_paint|first_paint_after_layout")
	budget := fs.Float64("frame-budget", def.FrameBudget(), "animation frame budget in ms")
	concurrency := fs.Int("concurrency", cfg.Concurrency, "traces analyzed in parallel")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: tracelatency batch [--mode M] [--concurrency n] <trace>...")
		return 2
	}
	opt, ok := parseOptions(*mode, *budget, stderr)
	if !ok {
		return 2
	}
	if *concurrency <= 0 {
		fmt.Fprintln(stderr, "invalid --concurrency (must be > 0)")
		return 2
	}

	paths := fs.Args()
	rows := make([]batchRow, len(paths))
	var g errgroup.Group
	g.SetLimit(*concurrency)
	for i, p := range paths {
		g.Go(func() error {
			res, err := pipeline.RunFiles(ctx, opt, pipeline.RunConfig{MaxBytes: cfg.MaxBytes, Concurrency: 1}, p)
			rows[i] = batchRow{path: p, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintln(stdout, "| trace | duration ms | raw ms | correction ms | paints | notes | error |")
	fmt.Fprintln(stdout, "|---|---:|---:|---:|---:|---:|---|")
	failed := 0
	for _, r := range rows {
		if r.err != nil {
			failed++
			fmt.Fprintf(stdout, "| %s | | | | | | %s |\n", r.path, api.FailureKind(r.err))
			continue
		}
		fmt.Fprintf(stdout, "| %s | %.3f | %.3f | %.3f | %d | %d | |\n",
			r.path, r.res.DurationMS, r.res.RawDurationMS, r.res.CorrectionMS, r.res.Metrics.PaintsAfter, len(r.res.Notes))
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "%d of %d traces failed\n", failed, len(rows))
		return 1
	}
	return 0
}

func printStats(w io.Writer, res pipeline.Result) {
	m := res.Metrics
	fmt.Fprintf(w, "mode: %s\n", res.Mode)
	fmt.Fprintf(w, "duration ms: %.3f\n", res.DurationMS)
	fmt.Fprintf(w, "raw duration ms: %.3f\n", res.RawDurationMS)
	fmt.Fprintf(w, "correction ms: %.3f\n", res.CorrectionMS)
	fmt.Fprintf(w, "chunks: %d\n", m.Chunks)
	fmt.Fprintf(w, "bytes in: %d\n", m.BytesIn)
	fmt.Fprintf(w, "peak bytes: %d\n", m.PeakBytes)
	fmt.Fprintf(w, "records: %d\n", m.RecordsTotal)
	fmt.Fprintf(w, "events: %d\n", m.EventsTotal)
	fmt.Fprintf(w, "layouts after click: %d\n", m.LayoutsAfter)
	fmt.Fprintf(w, "paints after pivot: %d\n", m.PaintsAfter)
	fmt.Fprintf(w, "load ms: %.3f\n", m.LoadMS)
	fmt.Fprintf(w, "classify ms: %.3f\n", m.ClassifyMS)
	fmt.Fprintf(w, "compute ms: %.3f\n", m.ComputeMS)
}
