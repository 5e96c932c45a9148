package models

import "time"

// SearchRecord ist ein Eintrag der Suchhistorie für einen beendeten Job.
type SearchRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	JobID      string `json:"job_id" gorm:"column:job_id;uniqueIndex;not null"`
	Term       string `json:"term" gorm:"type:text;not null"`
	MaxResults int    `json:"max_results"`
	Status     string `json:"status" gorm:"index"`
	Total      int    `json:"total"`
	Progress   int    `json:"progress"`
	Skipped    int    `json:"skipped"`
	Articles   int    `json:"articles"`
	Error      string `json:"error,omitempty" gorm:"type:text"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (SearchRecord) TableName() string {
	return "search_records"
}
