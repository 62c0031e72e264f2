package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	metadataFile = "metadata.json"
	stepsFile    = "steps.csv"

	obsPrefix    = "o:"
	actionPrefix = "u"
)

var ErrRunClosed = errors.New("storage: run already closed")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID                string             `json:"id"`
	Task              string             `json:"task"`
	Controller        string             `json:"controller"`
	Endpoint          string             `json:"endpoint"`
	Timestamp         time.Time          `json:"timestamp"`
	Seed              int64              `json:"seed"`
	StepsPerSecond    float64            `json:"steps_per_second"`
	ObservationLabels []string           `json:"observation_labels"`
	ActionSize        int                `json:"action_size"`
	Episodes          []EpisodeSummary   `json:"episodes"`
	Metrics           map[string]float64 `json:"metrics"`
}

type EpisodeSummary struct {
	Episode     int                `json:"episode"`
	Steps       int                `json:"steps"`
	TotalReward float64            `json:"total_reward"`
	Seconds     float64            `json:"seconds"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Step is one row of steps.csv.
type Step struct {
	Episode     int
	Step        int
	Time        float64
	Reward      float64
	Done        bool
	Observation []float64
	Action      []float64
}

// Run is an open recording. Steps are streamed to CSV; metadata is
// rewritten after every episode so a crashed run still lists.
type Run struct {
	mu     sync.Mutex
	dir    string
	meta   RunMetadata
	file   *os.File
	w      *csv.Writer
	closed bool
}

// Create starts a new run with a fresh ID.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	meta.ID = uuid.NewString()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.Metrics == nil {
		meta.Metrics = map[string]float64{}
	}
	if meta.Episodes == nil {
		meta.Episodes = []EpisodeSummary{}
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}

	file, err := os.Create(filepath.Join(runDir, stepsFile))
	if err != nil {
		return nil, err
	}

	r := &Run{dir: runDir, meta: meta, file: file, w: csv.NewWriter(file)}
	if err := r.w.Write(r.header()); err != nil {
		file.Close()
		return nil, err
	}
	if err := r.writeMetadata(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Run) ID() string { return r.meta.ID }

func (r *Run) header() []string {
	header := []string{"episode", "step", "time", "reward", "done"}
	for _, label := range r.meta.ObservationLabels {
		header = append(header, obsPrefix+label)
	}
	for i := 0; i < r.meta.ActionSize; i++ {
		header = append(header, fmt.Sprintf("%s%d", actionPrefix, i))
	}
	return header
}

func (r *Run) WriteStep(st Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunClosed
	}

	row := []string{
		strconv.Itoa(st.Episode),
		strconv.Itoa(st.Step),
		strconv.FormatFloat(st.Time, 'f', 6, 64),
		strconv.FormatFloat(st.Reward, 'f', 6, 64),
		strconv.FormatBool(st.Done),
	}
	row = appendPadded(row, st.Observation, len(r.meta.ObservationLabels))
	row = appendPadded(row, st.Action, r.meta.ActionSize)
	return r.w.Write(row)
}

func appendPadded(row []string, vals []float64, n int) []string {
	for i := 0; i < n; i++ {
		v := 0.0
		if i < len(vals) {
			v = vals[i]
		}
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	return row
}

// EndEpisode records an episode summary and flushes pending steps.
func (r *Run) EndEpisode(sum EpisodeSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunClosed
	}
	r.meta.Episodes = append(r.meta.Episodes, sum)
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return err
	}
	return r.writeMetadata()
}

// Close stores the run-level metrics and closes the step file.
func (r *Run) Close(runMetrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	for k, v := range runMetrics {
		r.meta.Metrics[k] = v
	}
	r.w.Flush()
	flushErr := r.w.Error()
	metaErr := r.writeMetadata()
	closeErr := r.file.Close()
	return errors.Join(flushErr, metaErr, closeErr)
}

func (r *Run) writeMetadata() error {
	data, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(r.dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(r.dir, metadataFile))
}

// List returns all runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, metadataFile)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadSteps(runID string) ([]Step, error) {
	csvPath := filepath.Join(s.baseDir, runID, stepsFile)
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return []Step{}, nil
	}

	var obsCols, actCols []int
	for i, name := range records[0] {
		switch {
		case strings.HasPrefix(name, obsPrefix):
			obsCols = append(obsCols, i)
		case i >= 5 && strings.HasPrefix(name, actionPrefix):
			actCols = append(actCols, i)
		}
	}

	steps := make([]Step, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 5 {
			continue
		}

		var st Step
		var perr error
		parse := func(s string) float64 {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil && perr == nil {
				perr = err
			}
			return v
		}

		st.Episode, perr = strconv.Atoi(record[0])
		if perr != nil {
			continue
		}
		if st.Step, perr = strconv.Atoi(record[1]); perr != nil {
			continue
		}
		st.Time = parse(record[2])
		st.Reward = parse(record[3])
		st.Done = record[4] == "true"
		st.Observation = pick(record, obsCols, parse)
		st.Action = pick(record, actCols, parse)
		if perr != nil {
			continue
		}
		steps = append(steps, st)
	}

	return steps, nil
}

func pick(record []string, cols []int, parse func(string) float64) []float64 {
	out := make([]float64, 0, len(cols))
	for _, c := range cols {
		if c < len(record) {
			out = append(out, parse(record[c]))
		}
	}
	return out
}

// Resolve accepts a full run ID or a unique prefix of one.
func (s *Store) Resolve(prefix string) (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("storage: run prefix %q is ambiguous", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("storage: run %q not found", prefix)
	}
	return match, nil
}
