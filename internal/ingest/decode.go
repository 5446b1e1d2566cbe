package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"tracelatency/internal/runtime"
	"tracelatency/internal/trace"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Decompress returns the JSON text of a chunk. Decompressed bytes count
// against budget.
func Decompress(raw []byte, encoding string, budget *runtime.ByteBudget) ([]byte, error) {
	var r io.Reader
	switch encoding {
	case EncodingJSON:
		return raw, nil
	case EncodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case EncodingBrotli:
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	limit := budget.Remaining()
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	budget.Add(int64(len(out)))
	if err := budget.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode parses a capture chunk in either the object form
// {"traceEvents":[...]} or the bare array form. A missing traceEvents field
// yields an empty chunk.
func Decode(data []byte) ([]trace.RawRecord, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), utf8BOM)
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty trace document")
	}
	if data[0] == '[' {
		var records []trace.RawRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var doc struct {
		TraceEvents []trace.RawRecord `json:"traceEvents"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.TraceEvents, nil
}
