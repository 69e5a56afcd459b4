package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Result)
		wantErr bool
	}{
		{"valid", func(r *Result) {}, false},
		{"empty job id", func(r *Result) { r.JobID = "" }, true},
		{"unknown state", func(r *Result) { r.State = "running" }, true},
		{"negative size", func(r *Result) { r.Width = -1 }, true},
		{"rows beyond height", func(r *Result) { r.RowsDone = r.Height + 1 }, true},
		{"zero timestamp", func(r *Result) { r.Timestamp = time.Time{} }, true},
		{"missing input", func(r *Result) { r.Config.InputPath = "" }, true},
		{"completed partial", func(r *Result) { r.RowsDone = 3 }, true},
		{"completed bad filter", func(r *Result) { r.FilterParam = 0 }, true},
		{"completed bad border", func(r *Result) { r.Config.Border = "wrap" }, true},
		{"cancelled partial", func(r *Result) { r.State = StateCancelled; r.RowsDone = 3 }, false},
		{"failed without output", func(r *Result) {
			r.State = StateFailed
			r.Width, r.Height, r.RowsDone = 0, 0, 0
			r.Error = "decode failed"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestResult("job")
			tt.mutate(r)

			err := r.Validate()
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Expected ValidationError, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
		})
	}
}

func TestResult_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(createTestResult("job-json"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"jobId", "state", "width", "height", "filterParam", "rowsDone", "timestamp", "config"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Missing key %q in %s", key, data)
		}
	}
	if _, ok := raw["error"]; ok {
		t.Error("Empty error should be omitted")
	}
}

func TestResult_ToInfo(t *testing.T) {
	r := createTestResult("job-info")
	info := r.ToInfo()

	if info.JobID != r.JobID || info.State != r.State || info.FilterParam != r.FilterParam {
		t.Errorf("Info mismatch: %+v", info)
	}
	if info.Width != 64 || info.Height != 48 || info.InputPath != r.Config.InputPath {
		t.Errorf("Info mismatch: %+v", info)
	}
}

func TestJobConfig_Params(t *testing.T) {
	cfg := JobConfig{SampleRadius: 1, SearchRadius: 4, FilterParam: 12, Border: "reflect"}
	p := cfg.Params()

	if p.SampleRadius != 1 || p.SearchRadius != 4 || p.FilterParam != 12 || p.Border != "reflect" {
		t.Errorf("Unexpected params %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid params, got %v", err)
	}
}
