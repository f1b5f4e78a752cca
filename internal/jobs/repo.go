package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound indicates the job id is unknown.
	ErrNotFound = errors.New("jobs: job not found")
	// ErrAlreadyFinal indicates a terminal transition lost the race: the job
	// already left pending, and the existing terminal state stands.
	ErrAlreadyFinal = errors.New("jobs: job already in a terminal state")
)

// Open opens (creating if needed) the embedded job database and migrates the
// schema.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jobs: ensure db directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: open database: %w", err)
	}
	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("jobs: migrate schema: %w", err)
	}
	return db, nil
}

// Repo persists job records. Terminal transitions are guarded updates so that
// racing writers (direct submit vs. recovery sweep) converge on a single
// outcome.
type Repo struct {
	db *gorm.DB
}

// NewRepo wraps the given database handle.
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a new record. The id must be unique.
func (r *Repo) Create(ctx context.Context, job *Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("jobs: create: %w", err)
	}
	return nil
}

// Get returns the record for id, including failed ones.
func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("jobs: get: %w", err)
	}
	return &job, nil
}

// Active returns jobs with status pending or completed, oldest first. Failed
// jobs are intentionally excluded: failures surface through the push
// notification at failure time, not through polling.
func (r *Repo) Active(ctx context.Context) ([]Job, error) {
	var list []Job
	err := r.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusCompleted}).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("jobs: list active: %w", err)
	}
	return list, nil
}

// Pending returns jobs still awaiting a terminal state, oldest first.
func (r *Repo) Pending(ctx context.Context) ([]Job, error) {
	var list []Job
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("jobs: list pending: %w", err)
	}
	return list, nil
}

// MarkCompleted transitions a pending job to completed with its result
// reference. The update only matches status=pending, so exactly one terminal
// write wins.
func (r *Repo) MarkCompleted(ctx context.Context, id, resultKey, resultMIME string, at time.Time) error {
	return r.finalize(ctx, id, map[string]any{
		"status":       StatusCompleted,
		"result_key":   resultKey,
		"result_mime":  resultMIME,
		"completed_at": at,
	})
}

// MarkFailed transitions a pending job to failed with its error message.
func (r *Repo) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	return r.finalize(ctx, id, map[string]any{
		"status":    StatusFailed,
		"error":     message,
		"failed_at": at,
	})
}

func (r *Repo) finalize(ctx context.Context, id string, updates map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("jobs: finalize: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyFinal
	}
	return nil
}
