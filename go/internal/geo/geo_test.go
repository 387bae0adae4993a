package geo

import (
	"math"
	"testing"

	"github.com/mcdev12/manhunt/go/internal/models"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name  string
		a, b  models.Location
		wantM float64
		tolM  float64
	}{
		{
			name:  "same point",
			a:     models.Location{Lat: 52.52, Lng: 13.405},
			b:     models.Location{Lat: 52.52, Lng: 13.405},
			wantM: 0,
			tolM:  0.001,
		},
		{
			name:  "one degree of latitude",
			a:     models.Location{Lat: 0, Lng: 0},
			b:     models.Location{Lat: 1, Lng: 0},
			wantM: 111195,
			tolM:  100,
		},
		{
			name:  "short hop",
			a:     models.Location{Lat: 52.5200, Lng: 13.4050},
			b:     models.Location{Lat: 52.5204, Lng: 13.4050},
			wantM: 44.5,
			tolM:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolM {
				t.Errorf("Distance() = %.2fm, want %.2fm ± %.2fm", got, tt.wantM, tt.tolM)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Location{Lat: 40.7128, Lng: -74.0060}
	b := models.Location{Lat: 40.7138, Lng: -74.0050}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("Distance not symmetric: %.6f vs %.6f", d1, d2)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name    string
		a, b    models.Location
		wantDeg float64
		tolDeg  float64
	}{
		{"due north", models.Location{Lat: 0, Lng: 0}, models.Location{Lat: 1, Lng: 0}, 0, 0.01},
		{"due east", models.Location{Lat: 0, Lng: 0}, models.Location{Lat: 0, Lng: 1}, 90, 0.01},
		{"due south", models.Location{Lat: 1, Lng: 0}, models.Location{Lat: 0, Lng: 0}, 180, 0.01},
		{"due west", models.Location{Lat: 0, Lng: 1}, models.Location{Lat: 0, Lng: 0}, 270, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.a, tt.b)
			if math.Abs(got-tt.wantDeg) > tt.tolDeg {
				t.Errorf("Bearing() = %.4f°, want %.4f°", got, tt.wantDeg)
			}
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	origin := models.Location{Lat: 52.52, Lng: 13.405}
	for _, bearing := range []float64{0, 45, 137, 270, 359} {
		dest := Destination(origin, 500, bearing)
		if d := Distance(origin, dest); math.Abs(d-500) > 1 {
			t.Errorf("bearing %.0f°: Distance(origin, dest) = %.2fm, want 500m ± 1m", bearing, d)
		}
		if got := Bearing(origin, dest); math.Abs(got-bearing) > 0.5 {
			t.Errorf("bearing %.0f°: Bearing(origin, dest) = %.2f°", bearing, got)
		}
	}
}
