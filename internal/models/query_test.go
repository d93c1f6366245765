package models

import (
	"testing"
)

func TestSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *SearchRequest
		wantErr bool
	}{
		{"empty query", &SearchRequest{Query: ""}, true},
		{"valid query", &SearchRequest{Query: "hello"}, false},
		{"sets default limit", &SearchRequest{Query: "x", Limit: 0}, false},
		{"caps limit at max", &SearchRequest{Query: "x", Limit: 200}, false},
		{"lexical mode", &SearchRequest{Query: "x", Mode: ModeLexical}, false},
		{"unknown mode", &SearchRequest{Query: "x", Mode: "psychic"}, true},
		{"document granularity", &SearchRequest{Query: "x", Granularity: GranularityDocument}, false},
		{"unknown granularity", &SearchRequest{Query: "x", Granularity: "sentence"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(10, 100)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.req.Limit == 0 {
				t.Error("expected default limit to be set")
			}
			if tt.req.Limit > 100 {
				t.Errorf("expected limit capped at 100, got %d", tt.req.Limit)
			}
			if tt.req.Mode == "" || tt.req.Granularity == "" {
				t.Error("expected mode and granularity to be normalized")
			}
		})
	}
}

func TestSearchFilter_Empty(t *testing.T) {
	if !(&SearchFilter{}).Empty() {
		t.Error("zero filter should be empty")
	}
	var nilFilter *SearchFilter
	if !nilFilter.Empty() {
		t.Error("nil filter should be empty")
	}
	year := 2020
	if (&SearchFilter{YearMin: &year}).Empty() {
		t.Error("filter with year should not be empty")
	}
	if (&SearchFilter{Conference: "NeurIPS"}).Empty() {
		t.Error("filter with conference should not be empty")
	}
}
