package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tmalldedede/agentbox/internal/apperr"
	"github.com/tmalldedede/agentbox/internal/database"
	"github.com/tmalldedede/agentbox/internal/logger"
	"gorm.io/gorm"
)

var log = logger.Module("task.store")

// GormStore is the Store implementation backed by internal/database's GORM
// connection (sqlite by default, postgres for production, per
// STORE_DRIVER). Grounded on the teacher's database.go driver-selection
// pattern and gorm_store.go's dual-use of hand-rolled SQL alongside GORM
// for JSON-encoded columns.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-initialized *gorm.DB (see
// database.Initialize).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateTask(ctx context.Context, t *Task) error {
	row, err := toRow(t)
	if err != nil {
		return apperr.Internalf("encode task: %v", err)
	}
	err = s.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateErr(err) {
			return apperr.AlreadyExists("task")
		}
		return apperr.TransientStore(err)
	}
	return nil
}

func (s *GormStore) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) error {
	updates := map[string]interface{}{}
	if upd.Status != nil {
		updates["status"] = string(*upd.Status)
	}
	if upd.Mode != nil {
		updates["mode"] = string(*upd.Mode)
	}
	if upd.Progress != nil {
		updates["progress"] = *upd.Progress
	}
	if upd.CompletedBatches != nil {
		updates["completed_batches"] = *upd.CompletedBatches
	}
	if upd.CurrentPhase != nil {
		updates["current_phase"] = string(*upd.CurrentPhase)
	}
	if upd.EndTime != nil {
		updates["end_time"] = *upd.EndTime
	}
	if upd.Error != nil {
		updates["error"] = *upd.Error
	}
	if upd.Statistics != nil {
		b, err := json.Marshal(upd.Statistics)
		if err != nil {
			return apperr.Internalf("encode statistics: %v", err)
		}
		updates["statistics"] = string(b)
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&database.TaskModel{}).Where("id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return apperr.TransientStore(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("task")
	}
	return nil
}

// PutBatchResult is the one place atomicity matters end to end: the batch
// result, the incremented counter, and the recomputed progress all commit
// together or not at all
func (s *GormStore) PutBatchResult(ctx context.Context, taskID string, batchIndex int, stage Phase, result BatchResult, weigher ProgressWeigher) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row database.TaskModel
		if err := tx.Where("id = ?", taskID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("task")
			}
			return apperr.TransientStore(err)
		}

		recordsJSON, err := json.Marshal(result.Records)
		if err != nil {
			return apperr.Internalf("encode batch records: %v", err)
		}
		countersJSON, err := json.Marshal(result.Counters)
		if err != nil {
			return apperr.Internalf("encode batch counters: %v", err)
		}

		br := database.BatchResultModel{
			TaskID:     taskID,
			BatchIndex: batchIndex,
			Stage:      string(stage),
			Records:    string(recordsJSON),
			Counters:   string(countersJSON),
			CreatedAt:  time.Now(),
		}
		if err := tx.Save(&br).Error; err != nil {
			return apperr.TransientStore(err)
		}

		completed := row.CompletedBatches + 1
		stageTotal := result.StageTotal
		stageIndex := result.StageIndex
		if stageTotal <= 0 {
			stageTotal = 1
		}
		if stageIndex <= 0 {
			stageIndex = 1
		}
		progress := weigher(stage, stageIndex, stageTotal)

		// completed_batches is a single monotonic counter across every
		// stage's batches (diagnose, optimize, generate, verify, redact),
		// but total_batches is fixed at creation to the overall planning
		// estimate ceil(dataset_size/batch_size). Generation batch counts
		// in particular are driven by cluster targets, not dataset size,
		// and can exceed that planning estimate. Widening total_batches
		// here keeps completed_batches <= total_batches true at every
		// observation point without ever resetting the counter, which is
		// forbidden outside of deletion.
		updates := map[string]interface{}{
			"completed_batches": completed,
			"progress":          progress,
			"current_phase":     string(stage),
			"status":            string(StatusProcessing),
		}
		if completed > row.TotalBatches {
			updates["total_batches"] = completed
		}

		if err := tx.Model(&database.TaskModel{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
			return apperr.TransientStore(err)
		}
		return nil
	})
}

func (s *GormStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var row database.TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, apperr.TransientStore(err)
	}
	return fromRow(&row)
}

func (s *GormStore) GetBatchResults(ctx context.Context, taskID string) ([]BatchResult, error) {
	var rows []database.BatchResultModel
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("batch_index asc").Find(&rows).Error; err != nil {
		return nil, apperr.TransientStore(err)
	}
	out := make([]BatchResult, 0, len(rows))
	for _, r := range rows {
		var records []Record
		if r.Records != "" {
			if err := json.Unmarshal([]byte(r.Records), &records); err != nil {
				log.Warn("corrupt batch records", "task_id", taskID, "batch_index", r.BatchIndex, "error", err)
			}
		}
		var counters map[string]int
		if r.Counters != "" {
			if err := json.Unmarshal([]byte(r.Counters), &counters); err != nil {
				log.Warn("corrupt batch counters", "task_id", taskID, "batch_index", r.BatchIndex, "error", err)
			}
		}
		out = append(out, BatchResult{
			TaskID:     r.TaskID,
			BatchIndex: r.BatchIndex,
			Stage:      Phase(r.Stage),
			Records:    records,
			Counters:   counters,
		})
	}
	return out, nil
}

func (s *GormStore) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	q := s.db.WithContext(ctx).Model(&database.TaskModel{}).Order("start_time desc")
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []database.TaskModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.TransientStore(err)
	}
	out := make([]*Task, 0, len(rows))
	for i := range rows {
		t, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *GormStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&database.BatchResultModel{}).Error; err != nil {
			return apperr.TransientStore(err)
		}
		res := tx.Where("id = ?", taskID).Delete(&database.TaskModel{})
		if res.Error != nil {
			return apperr.TransientStore(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("task")
		}
		return nil
	})
}

func (s *GormStore) NextBatchToProcess(ctx context.Context, taskID string) (*int, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		return nil, nil
	}
	k := t.CompletedBatches
	return &k, nil
}

func (s *GormStore) Stats(ctx context.Context) (map[Status]int, error) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&database.TaskModel{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, apperr.TransientStore(err)
	}
	out := make(map[Status]int, len(rows))
	for _, r := range rows {
		out[Status(r.Status)] = r.Count
	}
	return out, nil
}

func toRow(t *Task) (*database.TaskModel, error) {
	statsJSON, err := json.Marshal(t.Statistics)
	if err != nil {
		return nil, err
	}
	datasetJSON, err := json.Marshal(t.Dataset)
	if err != nil {
		return nil, err
	}
	kbJSON, err := json.Marshal(t.KnowledgeBase)
	if err != nil {
		return nil, err
	}
	guidanceJSON, err := json.Marshal(t.Guidance)
	if err != nil {
		return nil, err
	}
	return &database.TaskModel{
		ID:               t.TaskID,
		Status:           string(t.Status),
		Mode:             string(t.Mode),
		DatasetSize:      t.DatasetSize,
		BatchSize:        t.BatchSize,
		TotalBatches:     t.TotalBatches,
		CompletedBatches: t.CompletedBatches,
		Progress:         t.Progress,
		CurrentPhase:     string(t.CurrentPhase),
		StartTime:        t.StartTime,
		EndTime:          t.EndTime,
		Error:            t.Error,
		Statistics:       string(statsJSON),
		Dataset:          string(datasetJSON),
		KnowledgeBase:    string(kbJSON),
		Guidance:         string(guidanceJSON),
		SaveReports:      t.SaveReports,
	}, nil
}

func fromRow(row *database.TaskModel) (*Task, error) {
	t := &Task{
		TaskID:           row.ID,
		Status:           Status(row.Status),
		Mode:             Mode(row.Mode),
		DatasetSize:      row.DatasetSize,
		BatchSize:        row.BatchSize,
		TotalBatches:     row.TotalBatches,
		CompletedBatches: row.CompletedBatches,
		Progress:         row.Progress,
		CurrentPhase:     Phase(row.CurrentPhase),
		StartTime:        row.StartTime,
		EndTime:          row.EndTime,
		Error:            row.Error,
		SaveReports:      row.SaveReports,
	}
	if row.Statistics != "" {
		if err := json.Unmarshal([]byte(row.Statistics), &t.Statistics); err != nil {
			return nil, apperr.Internalf("decode statistics: %v", err)
		}
	}
	if row.Dataset != "" {
		if err := json.Unmarshal([]byte(row.Dataset), &t.Dataset); err != nil {
			return nil, apperr.Internalf("decode dataset: %v", err)
		}
	}
	if row.KnowledgeBase != "" {
		if err := json.Unmarshal([]byte(row.KnowledgeBase), &t.KnowledgeBase); err != nil {
			return nil, apperr.Internalf("decode knowledge_base: %v", err)
		}
	}
	if row.Guidance != "" && row.Guidance != "null" {
		if err := json.Unmarshal([]byte(row.Guidance), &t.Guidance); err != nil {
			return nil, apperr.Internalf("decode guidance: %v", err)
		}
	}
	return t, nil
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
