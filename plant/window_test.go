package plant

import (
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
}

func TestTimeWindowContainsNonWrapping(t *testing.T) {
	w := TimeWindow{Start: "09:00", End: "17:00"}
	cases := []struct {
		t    time.Time
		want bool
	}{
		{at(8, 59), false},
		{at(9, 0), true},
		{at(12, 0), true},
		{at(16, 59), true},
		{at(17, 0), false},
	}
	for _, c := range cases {
		got, err := w.Contains(c.t)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("Contains(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestTimeWindowContainsWrapsMidnight(t *testing.T) {
	w := TimeWindow{Start: "22:00", End: "06:00"}
	cases := []struct {
		t    time.Time
		want bool
	}{
		{at(23, 0), true},
		{at(0, 0), true},
		{at(5, 59), true},
		{at(6, 0), false},
		{at(12, 0), false},
	}
	for _, c := range cases {
		got, err := w.Contains(c.t)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("Contains(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestAnyContainsEmptyMeansAlwaysAllowed(t *testing.T) {
	ok, err := AnyContains(nil, at(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("empty window list should mean always allowed")
	}
}
