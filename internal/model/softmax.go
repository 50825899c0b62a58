package model

import "math"

// Softmax converts logits into a probability distribution.
func Softmax(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	if len(logits) == 0 {
		return probs
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	exps := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxVal))
		sum += exps[i]
	}
	for i, e := range exps {
		probs[i] = float32(e / sum)
	}
	return probs
}
