package main

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{50, 50 * time.Millisecond},
		{99, 99 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{0, time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input should give 0")
	}
}

func TestStatsRecordRequest(t *testing.T) {
	s := NewStats()
	s.RecordRequest(time.Millisecond, http.StatusAccepted, nil)
	s.RecordRequest(time.Millisecond, http.StatusServiceUnavailable, nil)
	s.RecordRequest(0, 0, errors.New("refused"))

	if s.totalRequests.Load() != 3 || s.successCount.Load() != 1 || s.errorCount.Load() != 2 {
		t.Errorf("total=%d success=%d errors=%d", s.totalRequests.Load(), s.successCount.Load(), s.errorCount.Load())
	}
	if len(s.latencies) != 2 {
		t.Errorf("latencies recorded = %d, want 2 (transport errors excluded)", len(s.latencies))
	}
	if s.statusCodes[http.StatusAccepted].Load() != 1 {
		t.Error("202 not counted")
	}
}
