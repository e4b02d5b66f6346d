package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("jobs: not found")

// Store persists jobs and bookmarks with GORM.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared and avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	return NewStore(db)
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Job{}, &Bookmark{}); err != nil {
		return nil, fmt.Errorf("jobs: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert replaces the job with the same id or inserts it.
// It reports whether the job was new.
func (s *Store) Upsert(ctx context.Context, job *Job) (bool, error) {
	if job.ID == "" {
		return false, errors.New("jobs: job has no id")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Job{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return err
		}
		created = count == 0
		return tx.Save(job).Error
	})
	if err != nil {
		return false, fmt.Errorf("jobs: upsert %s: %w", job.ID, err)
	}
	return created, nil
}

// Get returns the job with id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	return &job, nil
}

// ListOptions filters List.
type ListOptions struct {
	Limit  int
	Offset int
	Search string // matched against title, company and location
}

// List returns jobs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Job, error) {
	q := s.db.WithContext(ctx).Model(&Job{}).Order("created_at DESC")
	if opts.Search != "" {
		like := "%" + opts.Search + "%"
		q = q.Where("title LIKE ? OR company LIKE ? OR location LIKE ?", like, like, like)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	return jobs, nil
}

// AddBookmark bookmarks jobID. Adding an existing bookmark is a no-op.
func (s *Store) AddBookmark(ctx context.Context, jobID string) error {
	err := s.db.WithContext(ctx).
		Where(Bookmark{JobID: jobID}).
		FirstOrCreate(&Bookmark{JobID: jobID}).Error
	if err != nil {
		return fmt.Errorf("jobs: add bookmark %s: %w", jobID, err)
	}
	return nil
}

// RemoveBookmark deletes the bookmark for jobID if present.
func (s *Store) RemoveBookmark(ctx context.Context, jobID string) error {
	if err := s.db.WithContext(ctx).Delete(&Bookmark{}, "job_id = ?", jobID).Error; err != nil {
		return fmt.Errorf("jobs: remove bookmark %s: %w", jobID, err)
	}
	return nil
}

// IsBookmarked reports whether jobID is bookmarked.
func (s *Store) IsBookmarked(ctx context.Context, jobID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Bookmark{}).Where("job_id = ?", jobID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("jobs: check bookmark %s: %w", jobID, err)
	}
	return count > 0, nil
}

// ToggleBookmark flips the bookmark for jobID and returns the new state.
func (s *Store) ToggleBookmark(ctx context.Context, jobID string) (bool, error) {
	marked, err := s.IsBookmarked(ctx, jobID)
	if err != nil {
		return false, err
	}
	if marked {
		return false, s.RemoveBookmark(ctx, jobID)
	}
	return true, s.AddBookmark(ctx, jobID)
}

// Bookmarks returns bookmarked job ids in the order they were added.
func (s *Store) Bookmarks(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Bookmark{}).Order("created_at ASC, rowid ASC").Pluck("job_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("jobs: list bookmarks: %w", err)
	}
	return ids, nil
}
