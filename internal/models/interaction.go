package models

import "time"

// InteractionType enumerates the recognized interaction types.
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionClick    InteractionType = "click"
	InteractionLike     InteractionType = "like"
	InteractionSave     InteractionType = "save"
	InteractionShare    InteractionType = "share"
	InteractionRegister InteractionType = "register"
	InteractionComment  InteractionType = "comment"
	InteractionRate     InteractionType = "rate"
)

// Interaction is the append-only tuple ingested from the event stream or
// recorded directly. Never mutated once stored.
type Interaction struct {
	UserID           string                 `json:"user_id" validate:"required"`
	EventID          string                 `json:"event_id" validate:"required"`
	Type             InteractionType        `json:"type" validate:"required"`
	Rating           *float64               `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	DurationSeconds  *int                   `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	Context          map[string]string      `json:"context,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// DerivedRating synthesizes a 1..5 rating from interaction type and
// duration when an explicit rating is absent.
func (i Interaction) DerivedRating() float64 {
	if i.Rating != nil {
		return clip(*i.Rating, 1.0, 5.0)
	}

	var base float64
	switch i.Type {
	case InteractionRegister:
		base = 5.0
	case InteractionLike, InteractionSave, InteractionShare:
		base = 4.0
	case InteractionComment:
		base = 3.5
	case InteractionClick:
		base = 3.0
	case InteractionView:
		base = 2.0
		if i.DurationSeconds != nil {
			switch {
			case *i.DurationSeconds >= 300:
				base += 1.0
			case *i.DurationSeconds >= 60:
				base += 0.5
			}
		}
	default:
		base = 2.0
	}

	if base > 5.0 {
		base = 5.0
	}
	return base
}

// ProfileWeight is the content-profile accumulation weight for this
// interaction type.
func (i Interaction) ProfileWeight() float64 {
	switch i.Type {
	case InteractionRegister:
		return 1.0
	case InteractionRate:
		return 0.9
	case InteractionLike, InteractionSave:
		return 0.8
	case InteractionShare:
		return 0.7
	case InteractionComment:
		return 0.6
	case InteractionClick:
		return 0.5
	case InteractionView:
		return 0.3
	default:
		return 0.3
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
