package magika

const (
	// LabelEmpty is returned for zero-length inputs without running the model.
	LabelEmpty = "empty"
	// LabelUnknown is returned when the best score has no matching label.
	LabelUnknown = "unknown"
)

// Prediction is a resolved label and the raw model score behind it.
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// LabelPolicy post-processes a prediction. Model configs carry thresholds
// and an overwrite map for this purpose; the scanner applies none unless a
// policy is installed with WithLabelPolicy.
type LabelPolicy interface {
	Apply(p Prediction, cfg *ModelConfig) Prediction
}

// LabelPolicyFunc adapts a function to LabelPolicy.
type LabelPolicyFunc func(p Prediction, cfg *ModelConfig) Prediction

func (f LabelPolicyFunc) Apply(p Prediction, cfg *ModelConfig) Prediction {
	return f(p, cfg)
}

// ResolveLabel picks the highest score. Ties keep the lowest index.
func ResolveLabel(scores []float32, labels []string) Prediction {
	if len(scores) == 0 {
		return Prediction{Label: LabelUnknown}
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	if best < len(labels) {
		return Prediction{Label: labels[best], Score: scores[best]}
	}
	return Prediction{Label: LabelUnknown, Score: scores[best]}
}
