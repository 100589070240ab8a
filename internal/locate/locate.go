// Package locate provides one-shot sources for the user's current position.
package locate

import (
	"context"
	"errors"

	"github.com/placepicker/backend/internal/models"
)

var ErrUnavailable = errors.New("position unavailable")

type Locator interface {
	Locate(ctx context.Context) (models.Position, error)
}
