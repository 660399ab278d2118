package refresh

import (
	"errors"
	"fmt"
)

// Stage is the position of one item in the pipeline.
type Stage string

const (
	StagePending     Stage = "pending"
	StageFetching    Stage = "fetching"
	StageNormalizing Stage = "normalizing"
	StageExtracting  Stage = "extracting"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage     Stage
	URL       string
	ProductID string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageOf(err error) (Stage, bool) {
	var se *StageError
	if !errors.As(err, &se) {
		return "", false
	}
	return se.Stage, true
}

// IsRenderFailure reports whether the page could not be fetched.
func IsRenderFailure(err error) bool {
	s, ok := stageOf(err)
	return ok && s == StageFetching
}

// IsExtractionFailure reports whether the page was fetched but no fields could be derived.
func IsExtractionFailure(err error) bool {
	s, ok := stageOf(err)
	return ok && (s == StageNormalizing || s == StageExtracting)
}

// IsStoreFailure reports whether the commit (or a lookup) failed.
func IsStoreFailure(err error) bool {
	s, ok := stageOf(err)
	return ok && s == StagePersisting
}
