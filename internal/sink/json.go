package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/RishiKendai/contestguard/internal/models"
)

// JSONSink writes <dir>/<contest>/<question_id>.json and contest.json.
// Records delivered for a question are appended to the existing file.
type JSONSink struct {
	mu  sync.Mutex
	dir string
}

func NewJSONSink(resultsDir, contestSlug string) (*JSONSink, error) {
	dir := filepath.Join(resultsDir, contestSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &JSONSink{dir: dir}, nil
}

func (s *JSONSink) Dir() string {
	return s.dir
}

func (s *JSONSink) SaveContest(ctx context.Context, contest *models.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, "contest.json"), contest)
}

func (s *JSONSink) DeliverQuestion(ctx context.Context, questionID int, records []models.PlagiarismRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, strconv.Itoa(questionID)+".json")
	existing, err := ReadRecords(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeJSON(path, append(existing, records...))
}

func (s *JSONSink) Close(ctx context.Context) error {
	return nil
}

// ReadRecords loads a question file written by JSONSink.
func ReadRecords(path string) ([]models.PlagiarismRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.PlagiarismRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
