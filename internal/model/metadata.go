package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadMetadata reads the model sidecar at path. A missing file yields
// DefaultMetadata sized to numClasses; unset fields fall back to the defaults.
func LoadMetadata(path string, numClasses int) (Metadata, error) {
	metadata := DefaultMetadata(numClasses)

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var parsed Metadata
	if err := json.Unmarshal(metaFile, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if parsed.InputName != "" {
		metadata.InputName = parsed.InputName
	}
	if parsed.OutputName != "" {
		metadata.OutputName = parsed.OutputName
	}
	if len(parsed.InputShape) > 0 {
		metadata.InputShape = parsed.InputShape
	}
	if len(parsed.OutputShape) > 0 {
		metadata.OutputShape = parsed.OutputShape
	}
	if parsed.ResizeSize > 0 {
		metadata.ResizeSize = parsed.ResizeSize
	}
	if parsed.CropSize > 0 {
		metadata.CropSize = parsed.CropSize
	}
	if parsed.Mean != ([3]float32{}) {
		metadata.Mean = parsed.Mean
	}
	if parsed.Std != ([3]float32{}) {
		metadata.Std = parsed.Std
	}
	if parsed.Output != "" {
		metadata.Output = parsed.Output
	}

	return metadata, nil
}

// Validate checks the metadata against itself and the label table size.
func (m Metadata) Validate(numLabels int) error {
	if m.NumClasses() != numLabels {
		return fmt.Errorf("label table has %d entries but model outputs %d classes", numLabels, m.NumClasses())
	}
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.InputShape[1] != 3 {
		return fmt.Errorf("input shape %v is not [1 3 H W]", m.InputShape)
	}
	if m.CropSize <= 0 || int64(m.CropSize) != m.InputShape[2] || int64(m.CropSize) != m.InputShape[3] {
		return fmt.Errorf("crop size %d does not match input shape %v", m.CropSize, m.InputShape)
	}
	if m.ResizeSize < m.CropSize {
		return fmt.Errorf("resize size %d is smaller than crop size %d", m.ResizeSize, m.CropSize)
	}
	for i, s := range m.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] is zero", i)
		}
	}
	switch m.Output {
	case OutputLogits, OutputProbabilities:
	default:
		return fmt.Errorf("unknown output kind %q", m.Output)
	}
	return nil
}
