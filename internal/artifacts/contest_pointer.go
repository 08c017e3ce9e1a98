package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const pointerFile = "contest_slug.json"

// ErrNoContestPointer is returned when no crawl has recorded a contest yet.
var ErrNoContestPointer = errors.New("no crawled contest recorded")

type contestPointer struct {
	ContestSlug string `json:"contest_slug"`
}

// SaveContestSlug records the most recently crawled contest so a later
// analysis can run without arguments.
func SaveContestSlug(dir, slug string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	data, err := json.Marshal(contestPointer{ContestSlug: slug})
	if err != nil {
		return fmt.Errorf("failed to encode contest pointer: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, pointerFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write contest pointer: %w", err)
	}
	return nil
}

func LoadContestSlug(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, pointerFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoContestPointer
	}
	if err != nil {
		return "", fmt.Errorf("failed to read contest pointer: %w", err)
	}

	var p contestPointer
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("failed to decode contest pointer: %w", err)
	}
	if p.ContestSlug == "" {
		return "", ErrNoContestPointer
	}
	return p.ContestSlug, nil
}
