package entity

// Keyframe is one saved frame from a sampling run: where the image was
// written, the frame's timestamp in seconds and its archive filename.
type Keyframe struct {
	ImagePath string  `json:"image_path"`
	Timestamp float64 `json:"timestamp"`
	Filename  string  `json:"filename"`
}
