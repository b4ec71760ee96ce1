package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	// JobStatusCompletedEmpty means the video was read fine but no visual
	// changes cleared the threshold; the operator should try a lower one.
	JobStatusCompletedEmpty JobStatus = "COMPLETED_EMPTY"
	JobStatusFailed         JobStatus = "FAILED"
)

type Job struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	ZipKey        string
	Status        JobStatus
	KeyframeCount int
	FileSize      int64
	VideoDuration float64
	Threshold     float64
	MinTimeGap    float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewJob(userID, videoKey string, fileSize int64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(zipKey string, keyframes int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ZipKey = zipKey
	j.KeyframeCount = keyframes
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// MarkCompletedEmpty records a run that produced no keyframes. No zip is
// written for such runs.
func (j *Job) MarkCompletedEmpty(duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompletedEmpty
	j.ZipKey = ""
	j.KeyframeCount = 0
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
