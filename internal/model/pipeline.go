package model

import (
	"fmt"
	"image"
	"math"
)

// Pipeline is the read-only inference context shared by every request.
type Pipeline struct {
	labels       *LabelTable
	preprocessor *Preprocessor
	classifier   Classifier
}

func NewPipeline(labels *LabelTable, preprocessor *Preprocessor, classifier Classifier) *Pipeline {
	return &Pipeline{
		labels:       labels,
		preprocessor: preprocessor,
		classifier:   classifier,
	}
}

func (p *Pipeline) Labels() *LabelTable {
	return p.labels
}

// Predict classifies an RGB image and applies the decision rule.
func (p *Pipeline) Predict(img image.Image) (PredictionResult, error) {
	inputData := p.preprocessor.Preprocess(img)

	probs, err := p.classifier.Classify(inputData)
	if err != nil {
		return PredictionResult{}, err
	}
	if len(probs) != p.labels.Len() {
		return PredictionResult{}, fmt.Errorf("classifier returned %d probabilities for %d labels", len(probs), p.labels.Len())
	}
	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return PredictionResult{}, fmt.Errorf("classifier returned non-finite probability %v for class %d", v, i)
		}
	}

	return Decide(probs, p.labels)
}
