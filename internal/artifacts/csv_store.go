package artifacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/rs/zerolog/log"
)

var header = []string{"username", "userslug", "contest_rank", "question_id", "language", "code", "submission_id"}

// CSVStore is the append-only acquisition artifact for one contest.
// Append is safe for concurrent use; writes are serialized.
type CSVStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// PathFor returns the artifact path of a contest inside dir.
func PathFor(dir, contestSlug string) string {
	return filepath.Join(dir, contestSlug+".csv")
}

// OpenCSV opens (or creates) the contest artifact. The header is written only
// when the file is empty.
func OpenCSV(dir, contestSlug string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	path := PathFor(dir, contestSlug)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat artifact file: %w", err)
	}

	store := &CSVStore{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
	}

	if info.Size() == 0 {
		if err := store.writeRow(header); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to write artifact header: %w", err)
		}
	}

	return store, nil
}

func (s *CSVStore) Path() string {
	return s.path
}

// Append writes one submission and syncs it to disk before returning.
func (s *CSVStore) Append(sub *models.Submission) error {
	row := []string{
		sub.Username,
		sub.UserSlug,
		strconv.Itoa(sub.ContestRank),
		strconv.Itoa(sub.QuestionID),
		sub.Language,
		sub.Code,
		sub.SubmissionID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeRow(row); err != nil {
		return fmt.Errorf("failed to append submission %s: %w", sub.SubmissionID, err)
	}
	return nil
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	return errors.Join(flushErr, closeErr)
}

func (s *CSVStore) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Load reads a contest artifact wholesale. Rows with unparsable numbers are
// skipped, and a submission id seen twice keeps its first row.
func Load(path string) ([]models.Submission, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact header: %w", err)
	}

	columns := make(map[string]int, len(first))
	for i, name := range first {
		columns[name] = i
	}
	for _, name := range header {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("artifact header is missing column %q", name)
		}
	}

	var submissions []models.Submission
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact line %d: %w", line, err)
		}
		if len(record) < len(first) {
			log.Warn().Str("path", path).Int("line", line).Msg("Skipping short artifact row")
			continue
		}

		rank, rankErr := strconv.Atoi(record[columns["contest_rank"]])
		questionID, qErr := strconv.Atoi(record[columns["question_id"]])
		if rankErr != nil || qErr != nil {
			log.Warn().Str("path", path).Int("line", line).Msg("Skipping artifact row with malformed numbers")
			continue
		}

		sub := models.Submission{
			Username:     record[columns["username"]],
			UserSlug:     record[columns["userslug"]],
			ContestRank:  rank,
			QuestionID:   questionID,
			Language:     record[columns["language"]],
			Code:         record[columns["code"]],
			SubmissionID: record[columns["submission_id"]],
		}
		if seen[sub.SubmissionID] {
			continue
		}
		seen[sub.SubmissionID] = true
		submissions = append(submissions, sub)
	}

	return submissions, nil
}
