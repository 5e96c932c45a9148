package models

import "time"

// JobStatus ist der Zustand eines Ladejobs.
type JobStatus string

const (
	StatusPending   JobStatus = "Pending"
	StatusRunning   JobStatus = "Running"
	StatusCompleted JobStatus = "Completed"
	StatusFailed    JobStatus = "Failed"
)

// Terminal meldet, ob aus diesem Zustand keine Übergänge mehr möglich sind.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobPhase beschreibt, woran ein laufender Job gerade arbeitet.
type JobPhase string

const (
	PhaseSearching JobPhase = "searching"
	PhaseFetching  JobPhase = "fetching"
	PhaseExporting JobPhase = "exporting"
)

// ErrorLabelPrefix leitet das Status-Label eines fehlgeschlagenen Jobs ein.
// Clients erkennen den Endzustand Failed an diesem Präfix.
const ErrorLabelPrefix = "Error"

// ResultSet hält die fertigen Artefakte eines abgeschlossenen Jobs.
// Die Byte-Slices werden nach dem Erzeugen nicht mehr verändert.
type ResultSet struct {
	JSON     []byte
	ZIP      []byte
	Articles int
	// Links auf gespiegelte Kopien, leer wenn kein Spiegel konfiguriert ist.
	JSONLink string
	ZIPLink  string
}

// Job ist der Zustand einer Suche samt Fortschritt.
type Job struct {
	ID       string      `json:"id"`
	Status   JobStatus   `json:"status"`
	Phase    JobPhase    `json:"phase,omitempty"`
	Progress int         `json:"progress"`
	Total    int         `json:"total"`
	Skipped  int         `json:"skipped"`
	Query    SearchQuery `json:"-"`
	Error    string      `json:"error,omitempty"`
	Result   *ResultSet  `json:"-"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StatusLabel rendert den Status so, wie ihn das Frontend erwartet.
func (j Job) StatusLabel() string {
	switch j.Status {
	case StatusRunning:
		switch j.Phase {
		case PhaseSearching:
			return "Searching..."
		case PhaseExporting:
			return "Creating archives..."
		default:
			return "Downloading..."
		}
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		if j.Error == "" {
			return ErrorLabelPrefix
		}
		return ErrorLabelPrefix + ": " + j.Error
	default:
		return "Pending"
	}
}
