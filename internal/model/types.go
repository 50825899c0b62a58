package model

// Output kinds reported by the model metadata.
const (
	OutputLogits        = "logits"
	OutputProbabilities = "probabilities"
)

// Metadata describes the exported ONNX graph and the transform it was trained with.
type Metadata struct {
	InputName   string     `json:"input_name"`
	OutputName  string     `json:"output_name"`
	InputShape  []int64    `json:"input_shape"`
	OutputShape []int64    `json:"output_shape"`
	ResizeSize  int        `json:"resize_size"`
	CropSize    int        `json:"crop_size"`
	Mean        [3]float32 `json:"mean"`
	Std         [3]float32 `json:"std"`
	Output      string     `json:"output"`
}

// DefaultMetadata matches the ResNet50 IMAGENET1K_V2 eval transform with a
// classification head of numClasses outputs.
func DefaultMetadata(numClasses int) Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, 3, 224, 224},
		OutputShape: []int64{1, int64(numClasses)},
		ResizeSize:  232,
		CropSize:    224,
		Mean:        [3]float32{0.485, 0.456, 0.406},
		Std:         [3]float32{0.229, 0.224, 0.225},
		Output:      OutputLogits,
	}
}

// NumClasses is the size of the last output dimension.
func (m Metadata) NumClasses() int {
	if len(m.OutputShape) == 0 {
		return 0
	}
	return int(m.OutputShape[len(m.OutputShape)-1])
}

// InputSize is the number of float32 values the input tensor holds.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}

// PredictionResult is the response body of a prediction. Label and ClassID
// are null together when the image is not recognized as a sign.
type PredictionResult struct {
	IsTrafficSign bool    `json:"is_traffic_sign"`
	Confidence    float32 `json:"confidence"`
	Label         *string `json:"label"`
	ClassID       *int    `json:"class_id"`
	Message       string  `json:"message,omitempty"`
}
