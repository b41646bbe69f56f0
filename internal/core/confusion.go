package core

// DecisionThreshold converts a raw sigmoid output into a binary class
const DecisionThreshold = 0.5

// ConfusionMatrix is the 2x2 tally of binary classification outcomes
type ConfusionMatrix struct {
	TP, FP, TN, FN int
}

// Observe tallies one prediction against the true label
func (m *ConfusionMatrix) Observe(score float64, positive bool) {
	predicted := score >= DecisionThreshold
	switch {
	case predicted && positive:
		m.TP++
	case predicted && !positive:
		m.FP++
	case !predicted && !positive:
		m.TN++
	default:
		m.FN++
	}
}

// Total is the number of evaluated examples
func (m *ConfusionMatrix) Total() int {
	return m.TP + m.FP + m.TN + m.FN
}

// Accuracy is the fraction of correct predictions
func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.TP+m.TN) / float64(total)
}

// Precision is TP over all predicted positives
func (m *ConfusionMatrix) Precision() float64 {
	if m.TP+m.FP == 0 {
		return 0
	}
	return float64(m.TP) / float64(m.TP+m.FP)
}

// Recall is TP over all actual positives
func (m *ConfusionMatrix) Recall() float64 {
	if m.TP+m.FN == 0 {
		return 0
	}
	return float64(m.TP) / float64(m.TP+m.FN)
}

// F1 is the harmonic mean of precision and recall
func (m *ConfusionMatrix) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Metrics packages the four derived metrics
func (m *ConfusionMatrix) Metrics() ModelMetrics {
	return ModelMetrics{
		Accuracy:  m.Accuracy(),
		Precision: m.Precision(),
		Recall:    m.Recall(),
		F1:        m.F1(),
	}
}
