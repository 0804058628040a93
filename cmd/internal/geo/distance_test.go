package geo

import (
	"math"
	"testing"
)

func TestDistanceSymmetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b Point
	}{
		{name: "seoul pair", a: Point{37.5665, 126.9780}, b: Point{37.5512, 126.9882}},
		{name: "equator", a: Point{0, 0}, b: Point{0, 1}},
		{name: "antimeridian", a: Point{10, 179.9}, b: Point{10, -179.9}},
		{name: "poles", a: Point{89.9, 0}, b: Point{-89.9, 0}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ab := Distance(tc.a, tc.b)
			ba := Distance(tc.b, tc.a)
			if math.Abs(ab-ba) > 1e-9 {
				t.Fatalf("Distance not symmetric: ab=%v ba=%v", ab, ba)
			}
		})
	}
}

func TestDistanceZeroForCoincidentPoints(t *testing.T) {
	t.Parallel()

	p := Point{37.5665, 126.9780}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("Distance(p, p)=%v want=0", d)
	}
}

func TestDistanceSeoulScenario(t *testing.T) {
	t.Parallel()

	// Seoul City Hall vs Namsan Tower: roughly 1.9-2.0 km apart.
	cityHall := Point{37.5665, 126.9780}
	namsan := Point{37.5512, 126.9882}

	d := Distance(cityHall, namsan)
	if d < 1900 || d > 2000 {
		t.Fatalf("Distance=%v want within [1900, 2000]", d)
	}
	if got := FormatDistance(d); got[len(got)-2:] != "km" {
		t.Fatalf("FormatDistance(%v)=%q want kilometers", d, got)
	}
}

func TestFormatDistance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		meters float64
		want   string
	}{
		{meters: 0, want: "0m"},
		{meters: 12.3, want: "12m"},
		{meters: 999.4, want: "999m"},
		// Rounds half-up to 1000 before the threshold check, so km wins.
		{meters: 999.6, want: "1.0km"},
		{meters: 1000.0, want: "1.0km"},
		{meters: 1500, want: "1.5km"},
		{meters: 12345, want: "12.3km"},
	}

	for _, tc := range cases {
		got := FormatDistance(tc.meters)
		if got != tc.want {
			t.Fatalf("FormatDistance(%v)=%q want=%q", tc.meters, got, tc.want)
		}
	}
}

func TestPointValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Point
		want bool
	}{
		{name: "ok", p: Point{37.5, 127.0}, want: true},
		{name: "lat edge", p: Point{90, 180}, want: true},
		{name: "lat too big", p: Point{90.0001, 0}, want: false},
		{name: "lon too small", p: Point{0, -180.5}, want: false},
		{name: "nan lat", p: Point{math.NaN(), 0}, want: false},
		{name: "inf lon", p: Point{0, math.Inf(1)}, want: false},
	}

	for _, tc := range cases {
		if got := tc.p.Valid(); got != tc.want {
			t.Fatalf("%s: Valid()=%v want=%v", tc.name, got, tc.want)
		}
	}
}
