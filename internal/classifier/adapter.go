package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/signa/internal/feature"
)

// ErrClassification is returned when the artifact rejects a feature vector.
var ErrClassification = errors.New("classification failed")

// Result is the outcome of classifying one feature vector.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // max class posterior, in percent
}

// Adapter classifies feature vectors with an Artifact.
type Adapter struct {
	artifact *Artifact
}

// NewAdapter creates an Adapter around a loaded artifact.
func NewAdapter(artifact *Artifact) *Adapter {
	return &Adapter{artifact: artifact}
}

// Classify returns the most probable letter for v and its probability as a
// percentage in [0, 100]. Errors wrap ErrClassification.
func (a *Adapter) Classify(v feature.Vector) (Result, error) {
	proba, err := a.artifact.model.PredictProba(v[:])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	class, p := argmax(proba)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Result{}, fmt.Errorf("%w: model produced no finite probability", ErrClassification)
	}
	label, err := a.artifact.labels.InverseTransform(class)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	return Result{
		Label:      label,
		Confidence: math.Min(100, math.Max(0, p*100)),
	}, nil
}

// Labels returns the letters the adapter can produce.
func (a *Adapter) Labels() []string {
	return a.artifact.Labels()
}
