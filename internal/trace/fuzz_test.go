package trace

import (
	"encoding/json"
	"testing"
)

func FuzzClassifyRecord(f *testing.F) {
	f.Add([]byte(`{"name":"EventDispatch","ph":"X","ts":1,"dur":2,"args":{"data":{"type":"click"}}}`))
	f.Add([]byte(`{"name":"RequestAnimationFrame","ph":"I","ts":"7"}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		var r RawRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return
		}
		e, ok := ClassifyRecord(&r)
		if ok && e.End < e.Start {
			t.Fatalf("end %v before start %v", e.End, e.Start)
		}
	})
}
