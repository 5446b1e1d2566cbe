package ingest

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

const (
	EncodingJSON   = "json"
	EncodingGzip   = "gzip"
	EncodingBrotli = "brotli"
)

var gzipMagic = []byte{0x1f, 0x8b}

// DetectEncoding reports how a capture chunk is stored. Gzip is recognized by
// its magic bytes, brotli only by extension since it has no header.
func DetectEncoding(path string, data []byte, override string) (string, error) {
	if override != "" && override != "auto" {
		switch override {
		case EncodingJSON, EncodingGzip, EncodingBrotli:
			return override, nil
		default:
			return "", errors.New("invalid encoding override")
		}
	}

	if bytes.HasPrefix(data, gzipMagic) {
		return EncodingGzip, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return EncodingGzip, nil
	case ".br":
		return EncodingBrotli, nil
	}

	trim := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trim) == 0 || trim[0] == '{' || trim[0] == '[' {
		return EncodingJSON, nil
	}

	nullCount := 0
	for _, b := range data {
		if b == 0 {
			nullCount++
		}
	}
	if len(data) > 0 && float64(nullCount)/float64(len(data)) > 0.02 {
		return "", errors.New("unsupported binary file")
	}
	return EncodingJSON, nil
}
