// Package events publishes domain events about generated shots and images.
package events

import "time"

const (
	TypeShotSetGenerated = "shotset.generated"
	TypeImageRendered    = "image.rendered"
)

// Event is the JSON payload written to the broker. Fields that do not apply to
// an event type are omitted.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id,omitempty"`
	ShotSetID  string    `json:"shot_set_id,omitempty"`
	ShotNum    int       `json:"shot_num,omitempty"`
	NumShots   int       `json:"num_shots,omitempty"`
	ImageIDs   []string  `json:"image_ids,omitempty"`
	ModelName  string    `json:"model_name,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
