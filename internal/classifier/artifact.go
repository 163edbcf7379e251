// Package classifier runs the pre-trained sign alphabet model against
// feature vectors.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/signa/internal/feature"
)

// Model is a multinomial logistic regression: one weight row and one bias
// per class, with softmax over the class scores.
type Model struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// NumClasses returns the number of classes the model distinguishes.
func (m *Model) NumClasses() int {
	return len(m.Weights)
}

// NumFeatures returns the input length the model was trained on.
func (m *Model) NumFeatures() int {
	if len(m.Weights) == 0 {
		return 0
	}
	return len(m.Weights[0])
}

// Validate checks that the weight matrix is rectangular and matches the bias.
func (m *Model) Validate() error {
	if len(m.Weights) == 0 {
		return errors.New("model has no classes")
	}
	if len(m.Bias) != len(m.Weights) {
		return fmt.Errorf("model has %d weight rows but %d biases", len(m.Weights), len(m.Bias))
	}
	n := len(m.Weights[0])
	if n == 0 {
		return errors.New("model has no features")
	}
	for i, row := range m.Weights {
		if len(row) != n {
			return fmt.Errorf("weight row %d has %d features, expected %d", i, len(row), n)
		}
	}
	return nil
}

// PredictProba returns the posterior probability of every class for x.
func (m *Model) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.NumFeatures() {
		return nil, fmt.Errorf("input has %d features, model expects %d", len(x), m.NumFeatures())
	}

	scores := make([]float64, len(m.Weights))
	maxScore := math.Inf(-1)
	for k, row := range m.Weights {
		s := m.Bias[k]
		for i, w := range row {
			s += w * x[i]
		}
		scores[k] = s
		maxScore = math.Max(maxScore, s)
	}

	// Shift by the largest score so exp never overflows
	var sum float64
	for k, s := range scores {
		scores[k] = math.Exp(s - maxScore)
		sum += scores[k]
	}
	for k := range scores {
		scores[k] /= sum
	}

	return scores, nil
}

// Predict returns the index of the most probable class for x.
func (m *Model) Predict(x []float64) (int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best, _ := argmax(proba)
	return best, nil
}

// LabelEncoder maps class indices to alphabet letters.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// InverseTransform returns the letter for a class index.
func (e *LabelEncoder) InverseTransform(class int) (string, error) {
	if class < 0 || class >= len(e.Classes) {
		return "", fmt.Errorf("class %d out of range [0, %d)", class, len(e.Classes))
	}
	return e.Classes[class], nil
}

// Transform returns the class index for a letter.
func (e *LabelEncoder) Transform(letter string) (int, error) {
	for i, c := range e.Classes {
		if c == letter {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", letter)
}

// Artifact pairs a model with the encoder that names its classes.
// It is immutable once built and safe for concurrent use.
type Artifact struct {
	model  *Model
	labels *LabelEncoder
}

// NewArtifact validates the pair and returns an Artifact. The model must take
// feature vectors of feature.Size and every class needs a distinct label.
func NewArtifact(model *Model, labels *LabelEncoder) (*Artifact, error) {
	if model == nil || labels == nil {
		return nil, errors.New("model and labels are required")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if n := model.NumFeatures(); n != feature.Size {
		return nil, fmt.Errorf("model expects %d features, feature vectors have %d", n, feature.Size)
	}
	if len(labels.Classes) != model.NumClasses() {
		return nil, fmt.Errorf("label encoder has %d classes, model has %d", len(labels.Classes), model.NumClasses())
	}
	seen := make(map[string]bool, len(labels.Classes))
	for i, c := range labels.Classes {
		if c == "" {
			return nil, fmt.Errorf("class %d has an empty label", i)
		}
		if seen[c] {
			return nil, fmt.Errorf("label %q appears more than once", c)
		}
		seen[c] = true
	}
	return &Artifact{model: model, labels: labels}, nil
}

// DecodeArtifact parses the JSON documents of a model and its label encoder.
func DecodeArtifact(modelJSON, labelsJSON []byte) (*Artifact, error) {
	var model Model
	if err := json.Unmarshal(modelJSON, &model); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	var labels LabelEncoder
	if err := json.Unmarshal(labelsJSON, &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return NewArtifact(&model, &labels)
}

// Encode returns the JSON documents of the model and its label encoder.
func (a *Artifact) Encode() (modelJSON, labelsJSON []byte, err error) {
	modelJSON, err = json.Marshal(a.model)
	if err != nil {
		return nil, nil, fmt.Errorf("encode model: %w", err)
	}
	labelsJSON, err = json.Marshal(a.labels)
	if err != nil {
		return nil, nil, fmt.Errorf("encode labels: %w", err)
	}
	return modelJSON, labelsJSON, nil
}

// Labels returns a copy of the letters the artifact can recognize.
func (a *Artifact) Labels() []string {
	out := make([]string, len(a.labels.Classes))
	copy(out, a.labels.Classes)
	return out
}

// NumFeatures returns the input length the model expects.
func (a *Artifact) NumFeatures() int {
	return a.model.NumFeatures()
}

func argmax(v []float64) (int, float64) {
	best, bestVal := 0, math.Inf(-1)
	for i, x := range v {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best, bestVal
}
