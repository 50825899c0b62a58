package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMetadata_MissingFileUsesDefaults(t *testing.T) {
	metadata, err := LoadMetadata(filepath.Join(t.TempDir(), "absent.json"), 4)
	require.NoError(t, err)

	assert.Equal(t, DefaultMetadata(4), metadata)
	assert.Equal(t, 4, metadata.NumClasses())
	assert.Equal(t, 3*224*224, metadata.InputSize())
	assert.NoError(t, metadata.Validate(4))
}

func TestLoadMetadata_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "meta.json", `{
		"input_name": "pixel_values",
		"output_shape": [1, 2],
		"resize_size": 256,
		"output": "probabilities"
	}`)

	metadata, err := LoadMetadata(path, 2)
	require.NoError(t, err)

	assert.Equal(t, "pixel_values", metadata.InputName)
	assert.Equal(t, "output", metadata.OutputName)
	assert.Equal(t, 256, metadata.ResizeSize)
	assert.Equal(t, 224, metadata.CropSize)
	assert.Equal(t, OutputProbabilities, metadata.Output)
	assert.Equal(t, [3]float32{0.485, 0.456, 0.406}, metadata.Mean)
}

func TestLoadMetadata_Malformed(t *testing.T) {
	_, err := LoadMetadata(writeFile(t, "meta.json", `{`), 2)
	assert.Error(t, err)
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Metadata)
		labels int
	}{
		{"label count mismatch", func(m *Metadata) {}, 3},
		{"wrong input rank", func(m *Metadata) { m.InputShape = []int64{3, 224, 224} }, 2},
		{"single channel input", func(m *Metadata) { m.InputShape = []int64{1, 1, 224, 224} }, 2},
		{"crop does not match input", func(m *Metadata) { m.CropSize = 200 }, 2},
		{"resize smaller than crop", func(m *Metadata) { m.ResizeSize = 100 }, 2},
		{"zero std", func(m *Metadata) { m.Std[1] = 0 }, 2},
		{"unknown output kind", func(m *Metadata) { m.Output = "sigmoid" }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := DefaultMetadata(2)
			tt.mutate(&metadata)
			assert.Error(t, metadata.Validate(tt.labels))
		})
	}
}
