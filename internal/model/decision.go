package model

import (
	"errors"
	"fmt"
)

const (
	// Threshold is the minimum confidence for a prediction to be trusted.
	Threshold float32 = 0.70

	// NotRecognizedMessage accompanies predictions below Threshold.
	NotRecognizedMessage = "Bukan traffic sign"
)

var ErrEmptyProbabilities = errors.New("empty probability vector")

// Argmax returns the first index holding the maximum value.
func Argmax(probs []float32) (int, float32) {
	maxIdx := 0
	maxVal := probs[0]
	for i, val := range probs {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx, maxVal
}

// Decide turns a probability vector into a PredictionResult.
func Decide(probs []float32, labels *LabelTable) (PredictionResult, error) {
	if len(probs) == 0 {
		return PredictionResult{}, ErrEmptyProbabilities
	}

	classID, confidence := Argmax(probs)

	if confidence < Threshold {
		return PredictionResult{
			IsTrafficSign: false,
			Confidence:    confidence,
			Message:       NotRecognizedMessage,
		}, nil
	}

	label, ok := labels.Lookup(classID)
	if !ok {
		return PredictionResult{}, fmt.Errorf("class %d outside label table of %d", classID, labels.Len())
	}

	return PredictionResult{
		IsTrafficSign: true,
		Confidence:    confidence,
		Label:         &label,
		ClassID:       &classID,
	}, nil
}
