package logs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMetaValid(t *testing.T) {
	meta, err := ParseMeta(json.RawMessage(`{"intensity": 7, "tags": ["sleep", "headache"], "transcriptionConfidence": 0.93}`))
	if err != nil {
		t.Fatalf("ParseMeta: %v", err)
	}
	if meta.Intensity == nil || *meta.Intensity != 7 {
		t.Errorf("expected intensity 7, got %v", meta.Intensity)
	}
	if len(meta.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", meta.Tags)
	}
}

func TestParseMetaEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		meta, err := ParseMeta(json.RawMessage(raw))
		if err != nil {
			t.Errorf("%q: unexpected error %v", raw, err)
		}
		if meta.Intensity != nil || len(meta.Tags) != 0 {
			t.Errorf("%q: expected empty meta, got %+v", raw, meta)
		}
	}
}

func TestParseMetaInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"intensity too high", `{"intensity": 11}`},
		{"intensity too low", `{"intensity": 0}`},
		{"fractional intensity", `{"intensity": 2.5}`},
		{"confidence above one", `{"transcriptionConfidence": 1.5}`},
		{"tags not strings", `{"tags": [1, 2]}`},
		{"unknown field", `{"mood": "great"}`},
		{"not an object", `[1, 2, 3]`},
		{"malformed", `{"intensity":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMeta(json.RawMessage(tt.raw))
			var verr *MetaValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected MetaValidationError, got %v", err)
			}
			if len(verr.Problems) == 0 {
				t.Error("expected at least one problem")
			}
		})
	}
}
