// Package catalog holds the static, read-only list of places users can pick from.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/placepicker/backend/internal/models"
)

//go:embed places.json
var embedded []byte

type Catalog struct {
	places []models.Place
	byID   map[string]int
}

// Load reads the catalog from path, or from the embedded data when path is empty.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	var places []models.Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(places)
}

// New validates places and builds a catalog keeping their order.
func New(places []models.Place) (*Catalog, error) {
	v := validator.New()
	c := &Catalog{
		places: make([]models.Place, 0, len(places)),
		byID:   make(map[string]int, len(places)),
	}
	for i, p := range places {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, p.ID)
		}
		c.byID[p.ID] = len(c.places)
		c.places = append(c.places, p)
	}
	return c, nil
}

// All returns a copy of every place in catalog order.
func (c *Catalog) All() []models.Place {
	out := make([]models.Place, len(c.places))
	copy(out, c.places)
	return out
}

func (c *Catalog) Find(id string) (models.Place, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Place{}, false
	}
	return c.places[i], true
}

func (c *Catalog) Len() int {
	return len(c.places)
}
