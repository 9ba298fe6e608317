package database

import "time"

// TaskModel is the GORM row backing a Task Store record.
//
// Dataset is persisted alongside the task so resume can rebuild a job
// message without requiring the client to resubmit the input.
type TaskModel struct {
	ID              string     `gorm:"primaryKey;size:64" json:"task_id"`
	Status          string     `gorm:"size:32;not null;index" json:"status"`
	Mode            string     `gorm:"size:16;not null" json:"mode"`
	DatasetSize     int        `gorm:"not null" json:"dataset_size"`
	BatchSize       int        `gorm:"not null" json:"batch_size"`
	TotalBatches    int        `gorm:"not null" json:"total_batches"`
	CompletedBatches int       `gorm:"not null;default:0" json:"completed_batches"`
	Progress        float64    `gorm:"not null;default:0" json:"progress"`
	CurrentPhase    string     `gorm:"size:32" json:"current_phase"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Error           string     `gorm:"type:text" json:"error,omitempty"`
	Statistics      string     `gorm:"type:text" json:"-"` // JSON-encoded map
	Dataset         string     `gorm:"type:text" json:"-"` // JSON-encoded []Record, internal use only
	KnowledgeBase   string     `gorm:"type:text" json:"-"` // JSON-encoded []string
	Guidance        string     `gorm:"type:text" json:"-"` // JSON-encoded guidance map
	SaveReports     bool       `gorm:"default:false" json:"-"`
}

func (TaskModel) TableName() string { return "tasks" }

// BatchResultModel is the GORM row backing a BatchResult
type BatchResultModel struct {
	TaskID     string `gorm:"primaryKey;size:64" json:"task_id"`
	BatchIndex int    `gorm:"primaryKey" json:"batch_index"`
	Stage      string `gorm:"size:32;not null" json:"stage"`
	Records    string `gorm:"type:text" json:"-"` // JSON-encoded []Record
	Counters   string `gorm:"type:text" json:"-"` // JSON-encoded map[string]int
	CreatedAt  time.Time
}

func (BatchResultModel) TableName() string { return "batch_results" }
