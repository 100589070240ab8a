package models

type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type Place struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Image       Image   `json:"image"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng         float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const (
	StateIdle           = "idle"
	StateRemovalPending = "removal_pending"

	LocationPending = "pending"
	LocationLocated = "located"
	LocationFailed  = "failed"
)

// SelectionView is the read model of one session returned by the API.
type SelectionView struct {
	SessionID      string    `json:"session_id"`
	Picked         []Place   `json:"picked"`
	Available      []Place   `json:"available"`
	State          string    `json:"state"`
	PendingRemoval *string   `json:"pending_removal"`
	DialogOpen     bool      `json:"dialog_open"`
	Location       string    `json:"location"`
	Position       *Position `json:"position,omitempty"`
}
