package location

import (
	"math"
	"testing"
)

func TestHaversineM(t *testing.T) {
	// one thousandth of a degree of latitude is ~111.32m
	d := HaversineM(0, 0, 0.001, 0)
	if math.Abs(d-111.32) > 1 {
		t.Fatalf("expected ~111.32m, got %.2f", d)
	}
	if d := HaversineM(51.5, -0.12, 51.5, -0.12); d != 0 {
		t.Fatalf("zero distance expected, got %f", d)
	}
	// across the antimeridian: 179.999 and -179.999 at the equator are ~222m apart
	d = HaversineM(0, 179.999, 0, -179.999)
	if math.Abs(d-222.64) > 2 {
		t.Fatalf("seam distance wrong: %.2f", d)
	}
}

func TestWrapLng(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{-180, -180},
		{180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
	}
	for _, c := range cases {
		if got := WrapLng(c.in); got != c.want {
			t.Errorf("WrapLng(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestValidCoords(t *testing.T) {
	if !ValidCoords(45, 90) || !ValidCoords(-90, -180) || !ValidCoords(90, 180) {
		t.Fatal("valid coordinates rejected")
	}
	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		if ValidCoords(c[0], c[1]) {
			t.Errorf("expected (%v, %v) invalid", c[0], c[1])
		}
	}
}

func TestDegreesLng(t *testing.T) {
	atEquator := DegreesLng(1000, 0)
	atSixty := DegreesLng(1000, 60)
	if atSixty <= atEquator {
		t.Fatal("longitude degrees should widen toward the poles")
	}
	// near the pole the cosine clamp keeps the delta finite
	if d := DegreesLng(1000, 89.999); math.IsInf(d, 0) || math.IsNaN(d) {
		t.Fatalf("unbounded delta at pole: %v", d)
	}
}
