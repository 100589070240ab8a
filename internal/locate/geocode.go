package locate

import (
	"context"
	"errors"
	"fmt"

	"github.com/placepicker/backend/internal/geocode"
	"github.com/placepicker/backend/internal/models"
)

// GeocodeLocator resolves a fixed place query (for example a city name)
// into a position.
type GeocodeLocator struct {
	Geocoder geocode.Geocoder
	Query    string
}

func (g GeocodeLocator) Locate(ctx context.Context) (models.Position, error) {
	lat, lng, _, _, err := g.Geocoder.Geocode(ctx, g.Query)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			return models.Position{}, fmt.Errorf("%w: %q not found", ErrUnavailable, g.Query)
		}
		return models.Position{}, err
	}
	return models.Position{Lat: lat, Lng: lng}, nil
}
