package observability

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"7d", obsTime.AddDate(0, 0, -7), false},
		{"30d", obsTime.AddDate(0, 0, -30), false},
		{"24h", obsTime.Add(-24 * time.Hour), false},
		{" 1h ", obsTime.Add(-time.Hour), false},
		{"", obsTime.AddDate(0, 0, -7), false},
		{"x", time.Time{}, true},
		{"7x", time.Time{}, true},
		{"-3d", time.Time{}, true},
		{"d", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSince(tt.input, obsTime)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
