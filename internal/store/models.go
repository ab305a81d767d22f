package store

import "time"

type User struct {
	ID           string    `json:"id"` // UUID
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

type Project struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	ShotSetCount int       `json:"shot_set_count"` // Filled by list queries only
}

// Shot lives inside a ShotSet's shot_data payload and is never stored on its own.
type Shot struct {
	Num                   int    `json:"num"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	DescriptionTranslated string `json:"description_translated,omitempty"`
}

// ShotSet is one LLM invocation's output. Rows live in the `shots` table.
type ShotSet struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	SceneDescription string    `json:"scene_description"`
	Genre            string    `json:"genre"`
	Mood             string    `json:"mood"`
	Language         string    `json:"language"`
	ModelName        string    `json:"model_name"`
	NumShots         int       `json:"num_shots"`
	Shots            []Shot    `json:"shots"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasShot reports whether num is the ordinal of one of the set's shots.
func (s *ShotSet) HasShot(num int) bool {
	return s.ShotByNum(num) != nil
}

func (s *ShotSet) ShotByNum(num int) *Shot {
	for i := range s.Shots {
		if s.Shots[i].Num == num {
			return &s.Shots[i]
		}
	}
	return nil
}

type ShotImage struct {
	ID          string    `json:"id"`
	ShotSetID   string    `json:"shot_set_id"`
	ShotNum     int       `json:"shot_num"`
	Prompt      string    `json:"prompt"`
	ModelName   string    `json:"model_name"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Conditioned bool      `json:"conditioned"`
	ImageData   string    `json:"image_data,omitempty"` // base64 PNG
	CreatedAt   time.Time `json:"created_at"`
}
