// Package classifiertest builds small artifacts for tests.
package classifiertest

import (
	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/feature"
)

// Centroid names one reference hand pose.
type Centroid struct {
	Label     string
	Keypoints detector.KeypointSet
}

// CentroidArtifact returns a linear model that acts as a nearest-centroid
// classifier over the normalized reference poses: the score of class k is
// -sharpness * |x - c_k|^2 with the |x|^2 term dropped, since it is shared by
// every class and cancels in the softmax.
func CentroidArtifact(sharpness float64, centroids ...Centroid) (*classifier.Artifact, error) {
	model := &classifier.Model{}
	labels := &classifier.LabelEncoder{}

	for _, c := range centroids {
		v := feature.Normalize(c.Keypoints)

		row := make([]float64, feature.Size)
		var norm float64
		for i, x := range v {
			row[i] = 2 * sharpness * x
			norm += x * x
		}

		model.Weights = append(model.Weights, row)
		model.Bias = append(model.Bias, -sharpness*norm)
		labels.Classes = append(labels.Classes, c.Label)
	}

	return classifier.NewArtifact(model, labels)
}

// LetterArtifact returns an artifact recognizing the A and B fixture poses.
func LetterArtifact() *classifier.Artifact {
	a, err := CentroidArtifact(50,
		Centroid{Label: "A", Keypoints: detector.LetterAKeypoints()},
		Centroid{Label: "B", Keypoints: detector.LetterBKeypoints()},
	)
	if err != nil {
		panic(err)
	}
	return a
}
