package domain

// EventKind enumerates the progress event types pushed to observers.
type EventKind string

const (
	EventConnected          EventKind = "connected"
	EventPing               EventKind = "ping"
	EventBatchStarted       EventKind = "batch_started"
	EventProgressUpdate     EventKind = "progress_update"
	EventMidjourneyProgress EventKind = "midjourney_progress"
	EventMidjourneyFailed   EventKind = "midjourney_prompt_failed"
	EventMidjourneyTimeout  EventKind = "midjourney_timeout"
	EventItemCompleted      EventKind = "item_completed"
	EventItemFailed         EventKind = "item_failed"
	EventOpenAIComplete     EventKind = "openai_processing_complete"
	EventBatchCompleted     EventKind = "batch_completed"
	EventBatchAborted       EventKind = "batch_aborted"
)

// Terminal reports whether the event ends a session's progress stream.
func (k EventKind) Terminal() bool {
	return k == EventBatchCompleted || k == EventBatchAborted
}

// CurrentItem names the job currently in flight inside a progress event.
type CurrentItem struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName,omitempty"`
	ClothingPart string `json:"clothingPart,omitempty"`
	PromptType   string `json:"promptType,omitempty"`
}

// RelayProgress is the nested sub-progress for the relay stage of the
// active job: which prompt is in flight and how far along the job is.
type RelayProgress struct {
	PromptIndex  int    `json:"promptIndex"`
	TotalPrompts int    `json:"totalPrompts"`
	Status       string `json:"status,omitempty"`
}

// ErrorDetail carries structured failure context for error-typed
// relay events, including recovery guidance for timeouts.
type ErrorDetail struct {
	PromptIndex          int    `json:"promptIndex,omitempty"`
	TotalPrompts         int    `json:"totalPrompts,omitempty"`
	FailedPrompt         string `json:"failedPrompt,omitempty"`
	Error                string `json:"error,omitempty"`
	ErrorType            string `json:"errorType,omitempty"`
	TimeoutDuration      string `json:"timeoutDuration,omitempty"`
	RecoveryInstructions string `json:"recoveryInstructions,omitempty"`
}

// ProgressEvent is the wire record pushed through the broadcaster.
// Field names are camelCase to match the browser-side projector.
// Timestamp is stamped by the broadcaster at publish time if unset.
type ProgressEvent struct {
	Type      EventKind `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp int64     `json:"timestamp"` // unix milliseconds

	Total      int    `json:"total,omitempty"`
	Completed  int    `json:"completed"`
	Processing int    `json:"processing"`
	Status     string `json:"status,omitempty"`

	CurrentItem        *CurrentItem   `json:"currentItem,omitempty"`
	MidjourneyProgress *RelayProgress `json:"midjourneyProgress,omitempty"`
	ItemResult         *JobResult     `json:"itemResult,omitempty"`
	Details            *ErrorDetail   `json:"details,omitempty"`

	SuccessCount int `json:"successCount,omitempty"`
	ErrorCount   int `json:"errorCount,omitempty"`
	AbortedAt    int `json:"abortedAt,omitempty"`
}
