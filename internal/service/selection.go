package service

import (
	"encoding/json"

	"github.com/placepicker/backend/internal/models"
)

// DefaultSelectionKey is the store key holding the JSON array of picked ids.
const DefaultSelectionKey = "selectedPlaces"

// decodeIDs parses a persisted selection. The bool is false when raw is not
// a JSON array of strings.
func decodeIDs(raw string) ([]string, bool) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func encodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func indexOfPlace(places []models.Place, id string) int {
	for i, p := range places {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func withoutPlace(places []models.Place, id string) []models.Place {
	out := make([]models.Place, 0, len(places))
	for _, p := range places {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func placeIDs(places []models.Place) []string {
	out := make([]string, len(places))
	for i, p := range places {
		out[i] = p.ID
	}
	return out
}
