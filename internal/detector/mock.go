package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Extractor interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hand  *KeypointSet
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector that reports no hand.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHand sets the keypoints returned by Extract. Nil means no hand.
func (m *MockDetector) SetHand(hand *KeypointSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hand == nil {
		m.hand = nil
		return
	}
	h := *hand
	m.hand = &h
}

// SetError sets the error that will be returned by Extract.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Extract has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Extract returns the pre-configured hand or error.
func (m *MockDetector) Extract(frame *gocv.Mat) (*KeypointSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.hand == nil {
		return nil, nil
	}
	h := *m.hand
	return &h, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// LetterAKeypoints returns a closed fist with the thumb resting against the
// side of the index finger, the alphabet letter A.
func LetterAKeypoints() KeypointSet {
	var k KeypointSet

	k[Wrist] = Keypoint{X: 0.50, Y: 0.80}

	// Thumb upright along the index finger
	k[ThumbCMC] = Keypoint{X: 0.56, Y: 0.76}
	k[ThumbMCP] = Keypoint{X: 0.60, Y: 0.68}
	k[ThumbIP] = Keypoint{X: 0.61, Y: 0.61}
	k[ThumbTip] = Keypoint{X: 0.61, Y: 0.55}

	// Fingers curled into the palm
	k[IndexMCP] = Keypoint{X: 0.55, Y: 0.60}
	k[IndexPIP] = Keypoint{X: 0.55, Y: 0.54}
	k[IndexDIP] = Keypoint{X: 0.54, Y: 0.60}
	k[IndexTip] = Keypoint{X: 0.54, Y: 0.64}

	k[MiddleMCP] = Keypoint{X: 0.50, Y: 0.59}
	k[MiddlePIP] = Keypoint{X: 0.50, Y: 0.53}
	k[MiddleDIP] = Keypoint{X: 0.49, Y: 0.59}
	k[MiddleTip] = Keypoint{X: 0.49, Y: 0.63}

	k[RingMCP] = Keypoint{X: 0.45, Y: 0.60}
	k[RingPIP] = Keypoint{X: 0.45, Y: 0.55}
	k[RingDIP] = Keypoint{X: 0.44, Y: 0.60}
	k[RingTip] = Keypoint{X: 0.44, Y: 0.64}

	k[PinkyMCP] = Keypoint{X: 0.41, Y: 0.63}
	k[PinkyPIP] = Keypoint{X: 0.40, Y: 0.58}
	k[PinkyDIP] = Keypoint{X: 0.40, Y: 0.62}
	k[PinkyTip] = Keypoint{X: 0.40, Y: 0.66}

	return k
}

// LetterBKeypoints returns a flat hand with the fingers together and
// pointing up and the thumb folded across the palm, the alphabet letter B.
func LetterBKeypoints() KeypointSet {
	var k KeypointSet

	k[Wrist] = Keypoint{X: 0.50, Y: 0.80}

	// Thumb folded across the palm
	k[ThumbCMC] = Keypoint{X: 0.55, Y: 0.75}
	k[ThumbMCP] = Keypoint{X: 0.57, Y: 0.69}
	k[ThumbIP] = Keypoint{X: 0.53, Y: 0.66}
	k[ThumbTip] = Keypoint{X: 0.49, Y: 0.65}

	// Fingers extended and held together
	k[IndexMCP] = Keypoint{X: 0.55, Y: 0.60}
	k[IndexPIP] = Keypoint{X: 0.55, Y: 0.47}
	k[IndexDIP] = Keypoint{X: 0.55, Y: 0.38}
	k[IndexTip] = Keypoint{X: 0.55, Y: 0.31}

	k[MiddleMCP] = Keypoint{X: 0.51, Y: 0.59}
	k[MiddlePIP] = Keypoint{X: 0.51, Y: 0.45}
	k[MiddleDIP] = Keypoint{X: 0.51, Y: 0.35}
	k[MiddleTip] = Keypoint{X: 0.51, Y: 0.27}

	k[RingMCP] = Keypoint{X: 0.47, Y: 0.60}
	k[RingPIP] = Keypoint{X: 0.47, Y: 0.47}
	k[RingDIP] = Keypoint{X: 0.47, Y: 0.38}
	k[RingTip] = Keypoint{X: 0.47, Y: 0.31}

	k[PinkyMCP] = Keypoint{X: 0.43, Y: 0.62}
	k[PinkyPIP] = Keypoint{X: 0.43, Y: 0.52}
	k[PinkyDIP] = Keypoint{X: 0.43, Y: 0.45}
	k[PinkyTip] = Keypoint{X: 0.43, Y: 0.40}

	return k
}
