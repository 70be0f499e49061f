package market

import (
	"testing"
	"time"
)

func TestSessionFor(t *testing.T) {
	t.Parallel()

	// January instants, so New York is UTC-5 regardless of DST.
	tests := []struct {
		name string
		utc  string
		want Session
	}{
		{"pre-market open", "2026-01-15T09:00:00Z", PreMarket},   // 04:00 ET
		{"pre-market late", "2026-01-15T14:29:00Z", PreMarket},   // 09:29 ET
		{"open rush", "2026-01-15T14:35:00Z", OpenRush},          // 09:35 ET
		{"power open", "2026-01-15T15:30:00Z", PowerOpen},        // 10:30 ET
		{"midday", "2026-01-15T18:00:00Z", Midday},               // 13:00 ET
		{"power hour", "2026-01-15T20:15:00Z", PowerHour},        // 15:15 ET
		{"close boundary", "2026-01-15T21:00:00Z", AfterHours},   // 16:00 ET
		{"after hours late", "2026-01-16T00:59:00Z", AfterHours}, // 19:59 ET
		{"overnight", "2026-01-16T01:00:00Z", Overnight},         // 20:00 ET
		{"early morning", "2026-01-15T08:59:00Z", Overnight},     // 03:59 ET
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			instant, err := time.Parse(time.RFC3339, tt.utc)
			if err != nil {
				t.Fatal(err)
			}
			if got := SessionFor(instant); got != tt.want {
				t.Errorf("SessionFor(%s) = %v, want %v", tt.utc, got, tt.want)
			}
		})
	}
}
