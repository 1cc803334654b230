package pipeline

import (
	"errors"
	"fmt"
)

// Stages that abort a run when they fail.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageIndex   = "index"
)

var (
	ErrFetch      = errors.New("document fetch failed")
	ErrExtraction = errors.New("text extraction failed")
	ErrChunking   = errors.New("chunking failed")
	ErrIndex      = errors.New("index build failed")
)

var stageSentinels = map[string]error{
	StageFetch:   ErrFetch,
	StageExtract: ErrExtraction,
	StageChunk:   ErrChunking,
	StageIndex:   ErrIndex,
}

// StageError is a failure shared by every question of a run. It matches the
// stage sentinel and the underlying cause with errors.Is and errors.As.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	if sentinel, ok := stageSentinels[e.Stage]; ok {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

func stageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// questionErrorPrefix starts the answer slot of a question that failed.
const questionErrorPrefix = "Error processing question: "
