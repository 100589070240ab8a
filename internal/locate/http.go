package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/placepicker/backend/internal/models"
)

// HTTPLocator asks an IP geolocation service (ip-api.com compatible JSON)
// where the server is.
type HTTPLocator struct {
	URL    string
	Client *http.Client
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (h HTTPLocator) Locate(ctx context.Context) (models.Position, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return models.Position{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return models.Position{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Position{}, fmt.Errorf("ip lookup http error: %s", resp.Status)
	}

	var r ipLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Position{}, err
	}
	return parseIPLookup(r)
}

func parseIPLookup(r ipLookupResponse) (models.Position, error) {
	if r.Status != "" && !strings.EqualFold(r.Status, "success") {
		if r.Message != "" {
			return models.Position{}, fmt.Errorf("%w: %s", ErrUnavailable, r.Message)
		}
		return models.Position{}, ErrUnavailable
	}
	if r.Lat == 0 && r.Lon == 0 {
		return models.Position{}, ErrUnavailable
	}
	return models.Position{Lat: r.Lat, Lng: r.Lon}, nil
}
