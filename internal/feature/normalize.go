// Package feature turns hand keypoints into the vector fed to the classifier.
package feature

import "github.com/ayusman/signa/internal/detector"

// Size is the length of a feature vector: one (x, y) pair per landmark.
const Size = detector.NumLandmarks * 2

// Vector is the translation-normalized encoding of one hand pose, laid out
// as x0, y0, x1, y1, ... in landmark order.
type Vector [Size]float64

// Normalize subtracts the smallest x and the smallest y of the set from every
// keypoint. Shifting the whole hand by a constant offset yields the same
// vector, and the smallest component on each axis is always zero.
func Normalize(k detector.KeypointSet) Vector {
	minX, minY, _, _ := k.Bounds()

	var v Vector
	for i, p := range k {
		v[2*i] = p.X - minX
		v[2*i+1] = p.Y - minY
	}
	return v
}

// Slice returns the vector as a slice sharing no memory with v.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}
