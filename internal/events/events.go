// Package events publishes selection changes to interested consumers.
package events

import (
	"context"
	"time"
)

const (
	TypePlacePicked  = "place_picked"
	TypePlaceRemoved = "place_removed"
)

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	PlaceID   string    `json:"place_id"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e Event) error { return nil }
