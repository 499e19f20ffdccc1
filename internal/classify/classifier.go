// Package classify provides the opaque per-domain risk classifiers.
//
// Each classifier exposes predict-proba semantics: given a fixed-order
// feature vector it returns a three-class probability vector summing to
// one, with the class label equal to the argmax.
package classify

import (
	"fmt"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// Domain identifies which trained model scores a feature vector.
type Domain string

const (
	Environmental Domain = "environmental"
	Health        Domain = "health"
	Food          Domain = "food"
)

// Classifier is the opaque model abstraction. Implementations must be
// safe for concurrent use and hold nothing but trained parameters.
type Classifier interface {
	// PredictProba scores a feature vector in the fixed ordering for the
	// domain and returns the class label with the full distribution.
	PredictProba(d Domain, features []float64) (domain.RiskLevel, domain.Distribution, error)
}

// featureCount is the expected vector length per domain.
var featureCount = map[Domain]int{
	Environmental: 4,
	Health:        5,
	Food:          5,
}

func checkVector(d Domain, features []float64) error {
	want, ok := featureCount[d]
	if !ok {
		return fmt.Errorf("unknown classifier domain %q", d)
	}
	if len(features) != want {
		return fmt.Errorf("domain %s expects %d features, got %d", d, want, len(features))
	}
	return nil
}
