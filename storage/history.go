package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"pubmed-loader/config"
	"pubmed-loader/models"
)

// DefaultHistoryLimit ist die Anzahl Einträge, die Recent ohne Angabe liefert.
const DefaultHistoryLimit = 50

// SearchHistory schreibt beendete Jobs als Protokoll in die Datenbank.
// Jobs werden daraus nicht wiederhergestellt.
type SearchHistory struct {
	DB *gorm.DB
}

// OpenHistory verbindet sich mit PostgreSQL und migriert die Tabelle.
func OpenHistory(cfg *config.Config) (*SearchHistory, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	return NewSearchHistory(db)
}

// NewSearchHistory verwendet eine bestehende Verbindung und migriert die Tabelle.
func NewSearchHistory(db *gorm.DB) (*SearchHistory, error) {
	if err := db.AutoMigrate(&models.SearchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate search_records: %w", err)
	}
	return &SearchHistory{DB: db}, nil
}

// RecordFromJob überträgt einen beendeten Job in einen Historieneintrag.
func RecordFromJob(job models.Job) models.SearchRecord {
	rec := models.SearchRecord{
		JobID:      job.ID,
		Term:       job.Query.Term,
		MaxResults: job.Query.MaxResults,
		Status:     string(job.Status),
		Total:      job.Total,
		Progress:   job.Progress,
		Skipped:    job.Skipped,
		Error:      job.Error,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Result != nil {
		rec.Articles = job.Result.Articles
	}
	return rec
}

// Record speichert einen Job; ein erneuter Aufruf für dieselbe Job-ID aktualisiert den Eintrag.
func (h *SearchHistory) Record(ctx context.Context, job models.Job) error {
	rec := RecordFromJob(job)
	return h.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "total", "progress", "skipped", "articles", "error", "started_at", "finished_at"}),
	}).Create(&rec).Error
}

// Recent liefert die neuesten Einträge zuerst.
func (h *SearchHistory) Recent(ctx context.Context, limit int) ([]models.SearchRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []models.SearchRecord
	err := h.DB.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
