package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"tracelatency/internal/runtime"
	"tracelatency/internal/trace"
	"tracelatency/pkg/api"
)

const defaultConcurrency = 4

type Options struct {
	MaxBytes    int64
	Concurrency int
	// Encoding forces json|gzip|brotli; "" or "auto" detects per chunk.
	Encoding string
}

// Chunk is one decoded capture document.
type Chunk struct {
	Name    string
	Records []trace.RawRecord
	Bytes   int64
}

// ChunkSource yields the chunks of one logical capture in order. Next returns
// io.EOF once the source is exhausted.
type ChunkSource interface {
	Next(ctx context.Context) (Chunk, error)
}

type Result struct {
	Records []trace.RawRecord
	Chunks  int
	Bytes   int64
	// PeakBytes is the most bytes held against the budget, raw plus decompressed.
	PeakBytes int64
	Warnings  []string
}

func ReadFileLimited(path string, budget *runtime.ByteBudget) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lr := &io.LimitedReader{R: f, N: budget.Remaining() + 1}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	budget.Add(int64(len(b)))
	if err := budget.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// Load concatenates the chunks of src. An empty chunk means the capture has
// no more chunks; anything the source still holds is ignored with a warning.
func Load(ctx context.Context, src ChunkSource) (Result, error) {
	res := Result{Records: make([]trace.RawRecord, 0)}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			return Result{}, captureReadError(chunk.Name, err)
		}
		if len(chunk.Records) == 0 {
			if r, ok := src.(interface{ Remaining() int }); ok && r.Remaining() > 0 {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("chunk %q has no trace events; %d later chunk(s) ignored", chunk.Name, r.Remaining()))
			}
			break
		}
		res.Records = append(res.Records, chunk.Records...)
		res.Chunks++
		res.Bytes += chunk.Bytes
	}
	return res, nil
}

// LoadFiles reads and decodes paths concurrently, then concatenates them in
// argument order as chunks of one capture. A chunk that fails to read or
// decode only fails the load if it is reached before an empty chunk.
func LoadFiles(ctx context.Context, opt Options, paths ...string) (Result, error) {
	budget := runtime.NewByteBudget(opt.MaxBytes)
	src := newSliceSource(len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency(opt))
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src.chunks[i].Name = p
			raw, err := ReadFileLimited(p, budget)
			if err != nil {
				src.errs[i] = captureReadError(p, err)
				return nil
			}
			src.chunks[i], src.errs[i] = decodeChunk(p, raw, opt.Encoding, budget)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res, err := Load(ctx, src)
	res.PeakBytes = budget.Peak()
	return res, err
}

// LoadBytes is LoadFiles for in-memory chunk contents.
func LoadBytes(ctx context.Context, opt Options, contents ...[]byte) (Result, error) {
	budget := runtime.NewByteBudget(opt.MaxBytes)
	src := newSliceSource(len(contents))
	for i, raw := range contents {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		name := fmt.Sprintf("chunk-%d", i)
		src.chunks[i].Name = name
		budget.Add(int64(len(raw)))
		if err := budget.Err(); err != nil {
			src.errs[i] = captureReadError(name, err)
			continue
		}
		src.chunks[i], src.errs[i] = decodeChunk(name, raw, opt.Encoding, budget)
	}
	res, err := Load(ctx, src)
	res.PeakBytes = budget.Peak()
	return res, err
}

func decodeChunk(name string, raw []byte, override string, budget *runtime.ByteBudget) (Chunk, error) {
	enc, err := DetectEncoding(name, raw, override)
	if err != nil {
		return Chunk{Name: name}, captureReadError(name, err)
	}
	text, err := Decompress(raw, enc, budget)
	if err != nil {
		return Chunk{Name: name}, captureReadError(name, err)
	}
	records, err := Decode(text)
	if err != nil {
		return Chunk{Name: name}, captureReadError(name, err)
	}
	return Chunk{Name: name, Records: records, Bytes: int64(len(raw))}, nil
}

func captureReadError(name string, err error) error {
	if errors.Is(err, api.ErrCaptureRead) {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: %v", api.ErrCaptureRead, err)
	}
	return fmt.Errorf("%w: %s: %v", api.ErrCaptureRead, name, err)
}

func concurrency(opt Options) int {
	if opt.Concurrency > 0 {
		return opt.Concurrency
	}
	return defaultConcurrency
}

// sliceSource serves pre-decoded chunks. A chunk's decode error is returned
// only when Next reaches it.
type sliceSource struct {
	chunks []Chunk
	errs   []error
	next   int
}

func newSliceSource(n int) *sliceSource {
	return &sliceSource{chunks: make([]Chunk, n), errs: make([]error, n)}
}

func (s *sliceSource) Next(context.Context) (Chunk, error) {
	if s.next >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	i := s.next
	s.next++
	return s.chunks[i], s.errs[i]
}

func (s *sliceSource) Remaining() int { return len(s.chunks) - s.next }
