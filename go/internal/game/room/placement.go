package room

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/manhunt/go/internal/geo"
	"github.com/mcdev12/manhunt/go/internal/models"
)

// ScatterSkillchecks places the configured number of skillchecks at random
// bearings and distances around origin, inside the search radius. Called
// once at room creation; the slice is never resized afterward.
func ScatterSkillchecks(origin models.Location, settings models.Settings, rng *rand.Rand) []models.Skillcheck {
	if !settings.SkillchecksEnabled() {
		return nil
	}
	sc := settings.Skillchecks
	out := make([]models.Skillcheck, sc.Count)
	for i := range out {
		bearing := rng.Float64() * 360
		// Keep a floor distance so checks don't spawn on top of the host.
		distance := sc.SearchRadiusM * (0.2 + 0.8*rng.Float64())
		out[i] = models.Skillcheck{
			ID:       fmt.Sprintf("sc-%s", uuid.New().String()[:8]),
			Location: geo.Destination(origin, distance, bearing),
		}
	}
	return out
}

// RevealEscapeArea flips the escape area to revealed and starts the escape
// timer, creating the area lazily on first reveal. Safe to re-apply: an
// already revealed area is left untouched, so RevealedAt and
// EscapeTimerStartedAt are set exactly once.
func RevealEscapeArea(r *models.Room, now time.Time, rng *rand.Rand) {
	if r.EscapeRevealed() {
		return
	}
	if r.EscapeArea == nil {
		r.EscapeArea = &models.EscapeArea{
			ID:       fmt.Sprintf("ea-%s", uuid.New().String()[:8]),
			Location: escapeLocation(r, rng),
		}
	}
	ts := now.UTC()
	r.EscapeArea.IsRevealed = true
	r.EscapeArea.RevealedAt = &ts
	if r.EscapeTimerStartedAt == nil {
		r.EscapeTimerStartedAt = &ts
	}
}

// escapeLocation picks where the escape area appears: offset from the
// centroid of the room's skillchecks, falling back to the centroid of known
// player locations when skillchecks are disabled.
func escapeLocation(r *models.Room, rng *rand.Rand) models.Location {
	var pts []models.Location
	for _, sc := range r.Skillchecks {
		pts = append(pts, sc.Location)
	}
	if len(pts) == 0 {
		for _, p := range r.Players {
			if p.Location != nil {
				pts = append(pts, *p.Location)
			}
		}
	}
	if len(pts) == 0 {
		return models.Location{}
	}

	var lat, lng float64
	for _, pt := range pts {
		lat += pt.Lat
		lng += pt.Lng
	}
	centroid := models.Location{Lat: lat / float64(len(pts)), Lng: lng / float64(len(pts))}

	radius := 200.0
	if r.Settings.Skillchecks != nil && r.Settings.Skillchecks.SearchRadiusM > 0 {
		radius = r.Settings.Skillchecks.SearchRadiusM / 2
	}
	return geo.Destination(centroid, radius*rng.Float64(), rng.Float64()*360)
}
