package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Run   RunMetadata  `json:"run"`
	Steps []ExportStep `json:"steps"`
}

type ExportStep struct {
	Episode     int       `json:"episode"`
	Step        int       `json:"step"`
	Time        float64   `json:"time"`
	Reward      float64   `json:"reward"`
	Done        bool      `json:"done"`
	Observation []float64 `json:"observation"`
	Action      []float64 `json:"action"`
}

// ExportJSON writes a run and all its steps as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	steps, err := s.LoadSteps(runID)
	if err != nil {
		return err
	}

	data := ExportData{Run: *meta, Steps: make([]ExportStep, len(steps))}
	for i, st := range steps {
		data.Steps[i] = ExportStep(st)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (s *Store) ExportJSONFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(file, runID)
}
