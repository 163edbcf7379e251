package detector

import "gocv.io/x/gocv"

// Extractor finds the landmarks of one hand in a frame.
type Extractor interface {
	// Extract analyzes a frame and returns the keypoints of the first hand
	// found, or nil when the frame holds no hand. Calls are independent:
	// no tracking state is carried from one frame to the next.
	Extract(frame *gocv.Mat) (*KeypointSet, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// ScriptPath points at the MediaPipe helper script. Empty means search
	// the usual install locations.
	ScriptPath string

	// Python is the interpreter used to run the script. Empty means use a
	// virtual environment when one is found, python3 otherwise.
	Python string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
	}
}
