package domain

import "time"

// BatchStatus represents the terminal status of a persisted batch run.
type BatchStatus string

const (
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusAborted   BatchStatus = "aborted"
)

// BatchRecord is the persisted summary of one batch invocation.
type BatchRecord struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	SessionID    string      `gorm:"type:text;not null;index" json:"session_id"`
	Status       BatchStatus `gorm:"default:completed" json:"status"`
	TotalJobs    int         `gorm:"default:0" json:"total_jobs"`
	SuccessCount int         `gorm:"default:0" json:"success_count"`
	ErrorCount   int         `gorm:"default:0" json:"error_count"`
	AbortedAt    int         `gorm:"default:0" json:"aborted_at,omitempty"`
	RelayEnabled bool        `gorm:"default:false" json:"relay_enabled"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	CreatedAt    time.Time   `json:"created_at"`
}

// TableName returns the database table name for BatchRecord.
func (BatchRecord) TableName() string {
	return "batch_runs"
}

// JobRecord is the persisted outcome of one job within a batch run.
// Prompt and name lists are stored newline-joined; the authoritative
// structured result is the batch HTTP response.
type JobRecord struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	BatchID     string    `gorm:"type:text;not null;index" json:"batch_id"`
	JobID       string    `gorm:"type:text;not null" json:"job_id"`
	Position    int       `gorm:"default:0" json:"position"`
	FileName    string    `gorm:"type:text" json:"file_name,omitempty"`
	PromptType  string    `gorm:"type:text" json:"prompt_type"`
	Success     bool      `gorm:"default:false" json:"success"`
	Prompts     string    `gorm:"type:text" json:"prompts,omitempty"`
	OutfitNames string    `gorm:"type:text" json:"outfit_names,omitempty"`
	CDNImageURL string    `gorm:"type:text" json:"cdn_image_url,omitempty"`
	ArchiveURL  string    `gorm:"type:text" json:"archive_url,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	ErrorKind   string    `gorm:"type:text" json:"error_kind,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "batch_jobs"
}
