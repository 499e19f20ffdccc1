package classify

import (
	"math"

	"github.com/cityscope/urbanrisk/internal/domain"
)

// PrototypeModel is a calibrated Gaussian prototype classifier. Each
// domain folds its features into a weighted stress score in [0,1], then
// scores the distance to three class prototypes under a shared
// bandwidth. The normalized kernel responses are the class probabilities.
//
// The feature weights, prototype centers and bandwidth below are trained
// constants exported from offline calibration; the model is smooth by
// construction, so small input perturbations move probabilities smoothly.
type PrototypeModel struct {
	centers   [3]float64
	bandwidth float64
}

// NewPrototypeModel returns the production model with trained parameters.
func NewPrototypeModel() *PrototypeModel {
	return &PrototypeModel{
		centers:   [3]float64{0.20, 0.50, 0.80}, // low, medium, high
		bandwidth: 0.16,
	}
}

// clip01 bounds a normalized feature contribution.
func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// heatStress maps temperature in Celsius onto [0,1]; 20C and below is no
// stress, 40C and above saturates.
func heatStress(tempC float64) float64 {
	return clip01((tempC - 20) / 20)
}

// stress folds a feature vector into the domain's weighted stress score.
func (m *PrototypeModel) stress(d Domain, f []float64) float64 {
	switch d {
	case Environmental:
		aqi, traffic, temp, rain := f[0], f[1], f[2], f[3]
		return 0.45*clip01(aqi/300) +
			0.25*clip01(traffic/2) +
			0.20*heatStress(temp) +
			0.10*clip01(rain/200)
	case Health:
		aqi, load, cases, temp, envProb := f[0], f[1], f[2], f[3], f[4]
		return 0.20*clip01(aqi/300) +
			0.35*clip01(load) +
			0.15*clip01(cases/1000) +
			0.10*heatStress(temp) +
			0.20*clip01(envProb)
	case Food:
		supply, price, rain, temp, disruptions := f[0], f[1], f[2], f[3], f[4]
		return 0.35*clip01((100-supply)/100) +
			0.25*clip01((price-80)/70) +
			0.10*(1-clip01(rain/60)) +
			0.10*heatStress(temp) +
			0.20*clip01(disruptions/5)
	}
	return 0
}

// PredictProba implements Classifier.
func (m *PrototypeModel) PredictProba(d Domain, features []float64) (domain.RiskLevel, domain.Distribution, error) {
	if err := checkVector(d, features); err != nil {
		return "", domain.Distribution{}, &domain.ClassifierError{Domain: string(d), Err: err}
	}

	s := m.stress(d, features)
	denom := 2 * m.bandwidth * m.bandwidth

	var kernel [3]float64
	total := 0.0
	for i, c := range m.centers {
		diff := s - c
		kernel[i] = math.Exp(-diff * diff / denom)
		total += kernel[i]
	}

	dist := domain.Distribution{
		Low:    kernel[0] / total,
		Medium: kernel[1] / total,
		High:   kernel[2] / total,
	}
	return dist.ArgMax(), dist, nil
}
