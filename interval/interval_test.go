package interval

import (
	"testing"
	"time"
)

func t0(min int) time.Time {
	return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(min) * time.Minute)
}

func TestNewRejectsNonPositiveSpan(t *testing.T) {
	if _, err := New(t0(10), t0(10), 1.0); err == nil {
		t.Fatalf("expected error for zero-length interval")
	}
	if _, err := New(t0(10), t0(5), 1.0); err == nil {
		t.Fatalf("expected error for inverted interval")
	}
}

func TestOverlap(t *testing.T) {
	iv, err := New(t0(0), t0(10), 2.0)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		a, b     time.Time
		wantSecs float64
	}{
		{"fully contained", t0(2), t0(8), 6 * 60},
		{"fully covers", t0(-5), t0(20), 10 * 60},
		{"no overlap before", t0(-10), t0(-1), 0},
		{"no overlap after", t0(11), t0(20), 0},
		{"partial tail", t0(5), t0(15), 5 * 60},
		{"touches boundary only", t0(10), t0(15), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := iv.Overlap(tc.a, tc.b); got != tc.wantSecs {
				t.Errorf("Overlap(%v,%v) = %v, want %v", tc.a, tc.b, got, tc.wantSecs)
			}
		})
	}
}

func TestSeriesEarliestEndLatestStart(t *testing.T) {
	a, _ := New(t0(0), t0(5), 1)
	b, _ := New(t0(3), t0(12), 1)
	c, _ := New(t0(6), t0(9), 1)
	s := Series{a, b, c}

	end, ok := s.EarliestEnd()
	if !ok || !end.Equal(t0(5)) {
		t.Fatalf("EarliestEnd() = %v, %v, want %v", end, ok, t0(5))
	}
	start, ok := s.LatestStart()
	if !ok || !start.Equal(t0(6)) {
		t.Fatalf("LatestStart() = %v, %v, want %v", start, ok, t0(6))
	}
}

func TestSeriesTotalDuration(t *testing.T) {
	a, _ := New(t0(0), t0(5), 1)
	b, _ := New(t0(5), t0(15), 1)
	s := Series{a, b}
	if got, want := s.TotalDuration(), 15*time.Minute; got != want {
		t.Fatalf("TotalDuration() = %v, want %v", got, want)
	}
}
