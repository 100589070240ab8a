package service

import (
	"sort"

	"github.com/placepicker/backend/internal/models"
	"github.com/placepicker/backend/internal/utils"
)

// DistanceKm is the great-circle distance from (lat, lng) to the place.
func DistanceKm(p models.Place, lat, lng float64) float64 {
	return utils.HaversineKm(lat, lng, p.Lat, p.Lng)
}

// RankByDistance returns a new slice of places ordered nearest first.
// Places at equal distance keep their input order; the input is not modified.
func RankByDistance(places []models.Place, lat, lng float64) []models.Place {
	type ranked struct {
		place    models.Place
		distance float64
	}
	rs := make([]ranked, len(places))
	for i, p := range places {
		rs[i] = ranked{place: p, distance: DistanceKm(p, lat, lng)}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].distance < rs[j].distance
	})

	out := make([]models.Place, len(rs))
	for i, r := range rs {
		out[i] = r.place
	}
	return out
}
