package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

// ArtifactRecord is the persisted metadata of one stored waveform.
type ArtifactRecord struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Stage       string `gorm:"index:idx_stage;type:varchar(16)"`
	ParentID    string `gorm:"index:idx_parent;type:varchar(36)"`
	Index       int    `gorm:"column:seq"`
	SourceName  string
	SourceCodec string
	SourceMs    int64
	Key         string
	SampleRate  int
	Channels    int
	Frames      int
	DurationMs  int64
	StartMs     int64
	EndMs       int64
	CreatedAt   time.Time
}

// Index is the artifact metadata index.
type Index struct {
	DB *gorm.DB
}

// MemoryDSN returns a private shared-cache in-memory database name.
func MemoryDSN() string {
	return "file:spectralsplit-" + uuid.NewString() + "?mode=memory&cache=shared"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// OpenIndex opens (and migrates) the index at dsn. An empty dsn selects a
// fresh in-memory database.
func OpenIndex(dsn string) (*Index, error) {
	if dsn == "" {
		dsn = MemoryDSN()
	}

	if !isMemoryDSN(dsn) {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	if isMemoryDSN(dsn) {
		// the database lives only as long as a connection holds it open
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&ArtifactRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Index{DB: db}, nil
}

func (x *Index) Close() error {
	if x == nil || x.DB == nil {
		return nil
	}
	sqlDB, err := x.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (x *Index) Create(rec *ArtifactRecord) error {
	if rec.ID == "" {
		return errors.New("artifact record has no id")
	}
	if err := x.DB.Create(rec).Error; err != nil {
		return fmt.Errorf("creating artifact %s: %w", rec.ID, err)
	}
	return nil
}

func (x *Index) Get(id string) (*ArtifactRecord, error) {
	var rec ArtifactRecord
	err := x.DB.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting artifact %s: %w", id, err)
	}
	return &rec, nil
}

// List returns artifacts ordered by creation time, optionally filtered by
// stage.
func (x *Index) List(stage string) ([]ArtifactRecord, error) {
	var recs []ArtifactRecord
	q := x.DB.Order("created_at ASC, id ASC")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return recs, nil
}

// Children returns the artifacts derived from parentID in segment order.
func (x *Index) Children(parentID string) ([]ArtifactRecord, error) {
	var recs []ArtifactRecord
	err := x.DB.Where("parent_id = ?", parentID).Order("created_at ASC, seq ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", parentID, err)
	}
	return recs, nil
}

func (x *Index) Delete(id string) error {
	res := x.DB.Where("id = ?", id).Delete(&ArtifactRecord{})
	if res.Error != nil {
		return fmt.Errorf("deleting artifact %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStage returns the number of artifacts per stage.
func (x *Index) CountByStage() (map[string]int64, error) {
	var rows []struct {
		Stage string
		N     int64
	}
	err := x.DB.Model(&ArtifactRecord{}).
		Select("stage, count(*) as n").
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting artifacts: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Stage] = r.N
	}
	return counts, nil
}
