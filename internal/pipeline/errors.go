package pipeline

import (
	"errors"
	"fmt"

	"github.com/RishiKendai/contestguard/internal/models"
)

// ErrNoSubmissions means acquisition finished without a single submission.
var ErrNoSubmissions = errors.New("no submissions acquired")

// StageError is a failure that ends a run. Processed counts the items the
// stage had handled when it failed.
type StageError struct {
	Stage     models.Step
	Processed int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed after %d items: %v", e.Stage, e.Processed, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
