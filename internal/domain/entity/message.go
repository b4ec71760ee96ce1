package entity

import "github.com/google/uuid"

// KeyframeRequestMessage is the inbound message from the keyframes.request
// queue. Threshold and MinTimeGap are optional per-job overrides; zero
// values fall back to the service defaults. SelectedFilenames limits which
// keyframes end up in the zip; empty means all of them.
type KeyframeRequestMessage struct {
	JobID             uuid.UUID `json:"job_id"`
	UserID            string    `json:"user_id"`
	VideoKey          string    `json:"video_key"`
	FileSize          int64     `json:"file_size"`
	Threshold         float64   `json:"threshold,omitempty"`
	MinTimeGap        float64   `json:"min_time_gap,omitempty"`
	SelectedFilenames []string  `json:"selected_filenames,omitempty"`
	UserEmail         string    `json:"user_email"`
}

// KeyframeStatusMessage is the outbound message published to the
// keyframes.status queue.
type KeyframeStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Status        JobStatus `json:"status"`
	VideoKey      string    `json:"video_key"`
	ZipKey        string    `json:"zip_key,omitempty"`
	KeyframeCount int       `json:"keyframe_count,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	Hint          string    `json:"hint,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
