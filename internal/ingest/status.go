// Package ingest runs the background note-generation pipeline: a bounded
// queue drained by a worker pool, cooperative per-task cancellation, and
// stage-based progress reporting. The actual download/transcribe/summarize
// work is delegated to a Generator capability.
package ingest

// TaskStatus is the lifecycle stage of an ingestion task, persisted in the
// task's status file.
type TaskStatus string

// Pipeline stages in execution order, plus terminal outcomes.
const (
	StatusPending      TaskStatus = "PENDING"
	StatusParsing      TaskStatus = "PARSING"
	StatusDownloading  TaskStatus = "DOWNLOADING"
	StatusTranscribing TaskStatus = "TRANSCRIBING"
	StatusSummarizing  TaskStatus = "SUMMARIZING"
	StatusFormatting   TaskStatus = "FORMATTING"
	StatusSaving       TaskStatus = "SAVING"
	StatusSuccess      TaskStatus = "SUCCESS"
	StatusFailed       TaskStatus = "FAILED"
	StatusCancelled    TaskStatus = "CANCELLED"
)

// progressTable maps stages to the user-facing percentage. Stage-based, not
// byte-accurate, but stable across long tasks.
var progressTable = map[TaskStatus]int{
	StatusPending:      0,
	StatusParsing:      5,
	StatusDownloading:  20,
	StatusTranscribing: 55,
	StatusSummarizing:  85,
	StatusFormatting:   92,
	StatusSaving:       97,
	StatusSuccess:      100,
	StatusFailed:       0,
	StatusCancelled:    0,
}

// Progress returns the stage's percentage (0 for unknown stages).
func (s TaskStatus) Progress() int {
	return progressTable[s]
}

// Terminal reports whether the status is a final outcome.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
