package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Micros is a trace timestamp or duration in microseconds. Captures encode it
// either as a JSON number or as a numeric string.
type Micros float64

func (m *Micros) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*m = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid microsecond value %q", s)
	}
	*m = Micros(v)
	return nil
}

// Millis converts to milliseconds.
func (m Micros) Millis() float64 { return float64(m) / 1000.0 }

// RawRecord is one entry of a capture's traceEvents array. Args stays raw and
// is only decoded for the records that need it.
type RawRecord struct {
	Name string          `json:"name"`
	Cat  string          `json:"cat,omitempty"`
	Ph   string          `json:"ph"`
	Ts   Micros          `json:"ts"`
	Dur  *Micros         `json:"dur,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
}

func (r RawRecord) duration() Micros {
	if r.Dur == nil {
		return 0
	}
	return *r.Dur
}

// InteractionType returns args.data.type, or "" when absent or not a string.
func (r RawRecord) InteractionType() string {
	if len(r.Args) == 0 {
		return ""
	}
	var args struct {
		Data struct {
			Type string `json:"type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(r.Args, &args); err != nil {
		return ""
	}
	return args.Data.Type
}
