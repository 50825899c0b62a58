package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LabelTable maps class indices to label strings. It is read-only after load.
type LabelTable struct {
	labels []string
}

func NewLabelTable(labels []string) (*LabelTable, error) {
	if len(labels) == 0 {
		return nil, errors.New("label table is empty")
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
	}
	return &LabelTable{labels: append([]string(nil), labels...)}, nil
}

// LoadLabels reads a JSON array of strings.
func LoadLabels(path string) (*LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}

	return NewLabelTable(labels)
}

func (t *LabelTable) Len() int {
	return len(t.labels)
}

// Lookup returns the label for a class index.
func (t *LabelTable) Lookup(classID int) (string, bool) {
	if classID < 0 || classID >= len(t.labels) {
		return "", false
	}
	return t.labels[classID], true
}

// Labels returns a copy of the ordered labels.
func (t *LabelTable) Labels() []string {
	return append([]string(nil), t.labels...)
}
