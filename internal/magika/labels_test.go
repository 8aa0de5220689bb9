package magika

import "testing"

func TestResolveLabel(t *testing.T) {
	labels := []string{"a", "b", "c"}
	cases := []struct {
		name   string
		scores []float32
		want   Prediction
	}{
		{name: "max in middle", scores: []float32{0.1, 0.8, 0.1}, want: Prediction{Label: "b", Score: 0.8}},
		{name: "tie keeps lower index", scores: []float32{0.4, 0.2, 0.4}, want: Prediction{Label: "a", Score: 0.4}},
		{name: "tie later in vector", scores: []float32{0.1, 0.45, 0.45}, want: Prediction{Label: "b", Score: 0.45}},
		{name: "negative logits", scores: []float32{-3, -1, -2}, want: Prediction{Label: "b", Score: -1}},
		{name: "index beyond labels", scores: []float32{0.1, 0.1, 0.1, 0.7}, want: Prediction{Label: LabelUnknown, Score: 0.7}},
		{name: "no scores", scores: nil, want: Prediction{Label: LabelUnknown}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveLabel(tc.scores, labels); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
